package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

var entityTypes = []string{client.EntitySong, client.EntityAlbum, client.EntityPlaylist, client.EntityUser}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger syncs and inspect cursors",
	}
	cmd.AddCommand(syncFullCmd())
	cmd.AddCommand(syncIncrementalCmd())
	cmd.AddCommand(syncCursorsCmd())
	return cmd
}

// typesArg expands "all" to every entity type.
func typesArg(arg string) []string {
	if arg == "all" {
		return entityTypes
	}
	return []string{arg}
}

func syncFullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "full <entity_type|all>",
		Short: "Rebuild both mirrors of an entity type from the canonical store",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var results []*client.FullSyncResult
			for _, et := range typesArg(args[0]) {
				res, err := apiClient.Sync.Full(cmd.Context(), et)
				if err != nil {
					fatal("full sync "+et, err)
				}
				for _, s := range res.Skipped {
					fmt.Fprintf(os.Stderr, "skipped %s %s: %s\n", et, s.EntityID, s.Reason)
				}
				results = append(results, res)
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					r.EntityType,
					strconv.Itoa(r.Migrated),
					strconv.Itoa(len(r.Skipped)),
					strconv.Itoa(r.Pruned["graph"] + r.Pruned["search"]),
					strconv.FormatInt(r.Cursor, 10),
					(time.Duration(r.ElapsedMS) * time.Millisecond).String(),
				})
			}
			if table([]string{"TYPE", "MIGRATED", "SKIPPED", "PRUNED", "CURSOR", "ELAPSED"}, rows) {
				return
			}
			output(results, strconv.Itoa(len(results)))
		},
	}
}

func syncIncrementalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "incremental <entity_type|all>",
		Short: "Apply pending ledger entries to both mirrors",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var results []*client.IncrementalResult
			for _, et := range typesArg(args[0]) {
				res, err := apiClient.Sync.Incremental(cmd.Context(), et)
				if err != nil {
					if res != nil {
						fmt.Fprintf(os.Stderr, "%s: applied %d, skipped %d, failed %d before the error\n",
							et, res.Applied, res.Skipped, res.Failed)
					}
					fatal("incremental sync "+et, err)
				}
				results = append(results, res)
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					r.EntityType,
					strconv.Itoa(r.Applied),
					strconv.Itoa(r.Skipped),
					strconv.Itoa(r.Failed),
					fmt.Sprintf("%d→%d", r.CursorBefore, r.CursorAfter),
				})
			}
			if table([]string{"TYPE", "APPLIED", "SKIPPED", "FAILED", "CURSOR"}, rows) {
				return
			}
			output(results, strconv.Itoa(len(results)))
		},
	}
}

func syncCursorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cursors",
		Short: "List the last applied ledger sequence per mirror and entity type",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cursors, err := apiClient.Sync.Cursors(cmd.Context())
			if err != nil {
				fatal("list cursors", err)
			}

			rows := make([][]string, 0, len(cursors))
			for _, c := range cursors {
				rows = append(rows, []string{c.Mirror, c.EntityType, strconv.FormatInt(c.LastAppliedSequence, 10), c.UpdatedAt.Format(time.RFC3339)})
			}
			if table([]string{"MIRROR", "TYPE", "SEQUENCE", "UPDATED"}, rows) {
				return
			}
			output(cursors, strconv.Itoa(len(cursors)))
		},
	}
}
