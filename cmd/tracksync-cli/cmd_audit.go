package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

func newAuditCmd() *cobra.Command {
	var failOnDivergence bool
	cmd := &cobra.Command{
		Use:   "audit [entity_type]",
		Short: "Compare canonical and mirror counts",
		Long: `Compare canonical, graph and search counts per entity type.
Audits only report; repair with "tracksync-cli sync full <entity_type>".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				reports  []client.AuditReport
				diverged int
			)
			if len(args) == 1 {
				r, err := apiClient.Audit.One(cmd.Context(), args[0])
				if err != nil {
					fatal("audit", err)
				}
				reports = []client.AuditReport{*r}
				if r.Diverged {
					diverged = 1
				}
			} else {
				var err error
				reports, diverged, err = apiClient.Audit.All(cmd.Context())
				if err != nil {
					fatal("audit", err)
				}
			}

			rows := make([][]string, 0, len(reports))
			for _, r := range reports {
				rows = append(rows, []string{
					r.EntityType,
					strconv.FormatInt(r.CanonicalCount, 10),
					strconv.FormatInt(r.GraphCount, 10),
					strconv.FormatInt(r.SearchCount, 10),
					strconv.FormatInt(r.Divergence, 10),
					strconv.FormatBool(r.Diverged),
				})
			}
			if !table([]string{"TYPE", "CANONICAL", "GRAPH", "SEARCH", "DIVERGENCE", "DIVERGED"}, rows) {
				output(reports, strconv.Itoa(diverged))
			}

			if failOnDivergence && diverged > 0 {
				return fmt.Errorf("%d entity type(s) diverged", diverged)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnDivergence, "fail-on-divergence", false, "Exit non-zero when any entity type diverged")
	return cmd
}
