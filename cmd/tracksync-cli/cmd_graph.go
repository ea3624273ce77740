package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the graph mirror and sync playlist relationships",
	}
	cmd.AddCommand(graphSyncPlaylistCmd())
	cmd.AddCommand(graphOverviewCmd())
	cmd.AddCommand(graphNeighborsCmd())
	return cmd
}

func graphSyncPlaylistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-playlist <playlist_id>",
		Short: "Reconcile a playlist's CONTAINS and CREATED edges",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Graph.SyncPlaylist(cmd.Context(), args[0])
			if err != nil {
				fatal("sync playlist", err)
			}
			output(res, fmt.Sprintf("+%d -%d", res.Added, res.Removed))
		},
	}
}

func graphOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Count nodes per label and edges per type",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ov, err := apiClient.Graph.Overview(cmd.Context())
			if err != nil {
				fatal("graph overview", err)
			}

			var rows [][]string
			for _, k := range sortedKeys(ov.Nodes) {
				rows = append(rows, []string{"node", k, strconv.FormatInt(ov.Nodes[k], 10)})
			}
			for _, k := range sortedKeys(ov.Edges) {
				rows = append(rows, []string{"edge", k, strconv.FormatInt(ov.Edges[k], 10)})
			}
			if table([]string{"KIND", "NAME", "COUNT"}, rows) {
				return
			}
			output(ov, fmt.Sprintf("%d %d", ov.TotalNodes, ov.TotalEdges))
		},
	}
}

func graphNeighborsCmd() *cobra.Command {
	var edge, direction string
	cmd := &cobra.Command{
		Use:   "neighbors <node_type> <id>",
		Short: "List nodes adjacent over one edge type",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			neighbors, err := apiClient.Graph.Neighbors(cmd.Context(), args[0], args[1], strings.ToUpper(edge), direction)
			if err != nil {
				fatal("graph neighbors", err)
			}

			rows := make([][]string, 0, len(neighbors))
			ids := make([]string, 0, len(neighbors))
			for _, n := range neighbors {
				rows = append(rows, []string{n.Node.Type, n.Node.ExternalID, strconv.FormatFloat(n.Weight, 'f', -1, 64)})
				ids = append(ids, n.Node.ExternalID)
			}
			if table([]string{"TYPE", "ID", "WEIGHT"}, rows) {
				return
			}
			output(neighbors, strings.Join(ids, "\n"))
		},
	}
	cmd.Flags().StringVar(&edge, "edge", "", "Edge type: CREATED|CONTAINS|LISTENED_TO|BELONGS_TO")
	cmd.Flags().StringVar(&direction, "direction", "out", "Direction: out|in")
	_ = cmd.MarkFlagRequired("edge")
	return cmd
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
