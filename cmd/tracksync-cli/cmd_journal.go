package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read and purge the sync journal",
	}
	cmd.AddCommand(journalQueryCmd())
	cmd.AddCommand(journalPurgeCmd())
	return cmd
}

func journalQueryCmd() *cobra.Command {
	var (
		opts  client.JournalQueryOptions
		since string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List journal entries",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			var err error
			if opts.Since, err = parseTimeFlag(since); err != nil {
				fatal("parse --since", err)
			}
			entries, more, err := apiClient.Journal.Query(cmd.Context(), &opts)
			if err != nil {
				fatal("query journal", err)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.CreatedAt.Format(time.RFC3339), e.Action, e.EntityType, e.EntityID, e.Mirror, e.RunID,
				})
			}
			if table([]string{"AT", "ACTION", "TYPE", "ID", "MIRROR", "RUN"}, rows) {
				if more {
					fmt.Fprintf(os.Stderr, "more entries: --offset %d\n", opts.Offset+len(entries))
				}
				return
			}
			output(map[string]any{"data": entries, "has_more": more}, strconv.Itoa(len(entries)))
		},
	}
	cmd.Flags().StringVar(&opts.Action, "action", "", "Action, e.g. sync.skipped")
	cmd.Flags().StringVar(&opts.EntityType, "type", "", "Entity type")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "Sync run id")
	cmd.Flags().StringVar(&since, "since", "", "Earliest created_at (RFC3339)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Max entries")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Entries to skip")
	return cmd
}

func journalPurgeCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete journal entries older than the retention period",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			deleted, err := apiClient.Journal.Purge(cmd.Context(), days)
			if err != nil {
				fatal("purge journal", err)
			}
			output(map[string]int{"deleted": deleted}, strconv.Itoa(deleted))
		},
	}
	cmd.Flags().IntVar(&days, "retention-days", 90, "Keep entries newer than this many days")
	return cmd
}
