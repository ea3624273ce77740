package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow live sync activity",
	}
	cmd.AddCommand(eventsWatchCmd())
	return cmd
}

func eventsWatchCmd() *cobra.Command {
	var (
		types   []string
		sinceID uint64
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream ledger appends, sync outcomes and divergence until interrupted",
		Long: `Stream events as JSON lines (or one row per event with --format table).
--since-id replays buffered events after that ID; a "reset" event means they
are gone and a full audit is the way to catch up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			opts := &client.WatchOptions{EntityTypes: types, LastEventID: sinceID}
			return apiClient.Events.Watch(ctx, opts, printEvent)
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "Entity types to follow (repeatable; default all)")
	cmd.Flags().Uint64Var(&sinceID, "since-id", 0, "Replay buffered events after this ID")
	return cmd
}

func printEvent(e client.Event) error {
	switch flagFmt {
	case "table":
		detail := string(e.Data)
		if e.Reason != "" {
			detail = e.Reason
		}
		fmt.Printf("%s  %-6s  %-16s  %-8s  %s\n",
			e.Time.Format(time.RFC3339), strconv.FormatUint(e.ID, 10), e.Type, e.EntityType, detail)
	case "quiet":
		fmt.Println(e.ID)
	default:
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}
