package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

func newSearchCmd() *cobra.Command {
	var (
		entityType string
		filters    []string
		size       int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over the search mirror",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			parsed, err := parseFilters(filters)
			if err != nil {
				fatal("parse filters", err)
			}

			var hits []client.SearchHit
			if entityType == "" || entityType == "all" {
				if len(parsed) > 0 {
					fatal("search", fmt.Errorf("--filter requires --type"))
				}
				hits, err = apiClient.Search.All(cmd.Context(), args[0], size)
			} else {
				hits, err = apiClient.Search.ByType(cmd.Context(), entityType, args[0], parsed, size)
			}
			if err != nil {
				fatal("search", err)
			}

			rows := make([][]string, 0, len(hits))
			ids := make([]string, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, []string{h.EntityType, h.EntityID, h.Name, fmt.Sprintf("%.3f", h.Score)})
				ids = append(ids, h.EntityID)
			}
			if table([]string{"TYPE", "ID", "NAME", "SCORE"}, rows) {
				return
			}
			output(hits, strings.Join(ids, "\n"))
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "Entity type: song|album|playlist|user (default all)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Exact-match field filter key=value (repeatable)")
	cmd.Flags().IntVar(&size, "size", 0, "Max results")

	cmd.AddCommand(searchAutocompleteCmd())
	return cmd
}

func searchAutocompleteCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "autocomplete <entity_type> <prefix>",
		Short: "Complete names by prefix",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			sugg, err := apiClient.Search.Autocomplete(cmd.Context(), args[0], args[1], size)
			if err != nil {
				fatal("autocomplete", err)
			}

			texts := make([]string, 0, len(sugg))
			for _, s := range sugg {
				texts = append(texts, s.Text)
			}
			if flagFmt == "table" || flagFmt == "quiet" {
				fmt.Println(strings.Join(texts, "\n"))
				return
			}
			output(sugg, "")
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Max suggestions")
	return cmd
}

func parseFilters(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, f := range raw {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("filter %q must be key=value", f)
		}
		if k == "q" || k == "size" {
			return nil, fmt.Errorf("filter key %q is reserved", k)
		}
		out[k] = v
	}
	return out, nil
}
