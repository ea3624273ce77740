package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

func newRecommendCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend songs from the graph mirror",
	}
	cmd.PersistentFlags().IntVar(&limit, "limit", 0, "Max recommendations (server default 10)")

	cmd.AddCommand(&cobra.Command{
		Use:   "playlist <playlist_id>",
		Short: "Songs that co-occur with a playlist's songs",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			recs, err := apiClient.Graph.FromPlaylist(cmd.Context(), args[0], limit)
			if err != nil {
				fatal("recommend from playlist", err)
			}
			printRecommendations(recs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deep <user_id>",
		Short: "Songs scored from a user's listening history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			recs, err := apiClient.Graph.Deep(cmd.Context(), args[0], limit)
			if err != nil {
				fatal("deep recommendations", err)
			}
			printRecommendations(recs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "similar <user_id>",
		Short: "Songs played by listeners with overlapping history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			recs, err := apiClient.Graph.SimilarListeners(cmd.Context(), args[0], limit)
			if err != nil {
				fatal("similar listener recommendations", err)
			}
			printRecommendations(recs)
		},
	})

	var maxDepth int
	pathCmd := &cobra.Command{
		Use:   "path <from_song_id> <to_song_id>",
		Short: "Shortest chain of shared artists and genres between two songs",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			path, err := apiClient.Graph.ShortestPath(cmd.Context(), args[0], args[1], maxDepth)
			if err != nil {
				fatal("song path", err)
			}
			printSongPath(path)
		},
	}
	pathCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Max edges to search, 1-10 (server default 6)")
	cmd.AddCommand(pathCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "stats <user_id>",
		Short: "Listening summary with top genres and artists",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stats, err := apiClient.Graph.Stats(cmd.Context(), args[0])
			if err != nil {
				fatal("listener stats", err)
			}
			printListenerStats(stats)
		},
	})

	return cmd
}

func printSongPath(path *client.SongPath) {
	steps := make([]string, 0, len(path.Nodes))
	for _, n := range path.Nodes {
		steps = append(steps, n.Type+":"+n.ID)
	}
	summary := "no connection"
	if path.Connected {
		summary = fmt.Sprintf("%d hops: %s", path.Length, strings.Join(steps, " -> "))
	}
	output(path, summary)
}

func printListenerStats(stats *client.ListenerStats) {
	rows := make([][]string, 0, len(stats.TopGenres)+len(stats.TopArtists))
	for _, g := range stats.TopGenres {
		rows = append(rows, []string{"genre", g.Name, fmt.Sprintf("%.0f", g.Plays)})
	}
	for _, a := range stats.TopArtists {
		rows = append(rows, []string{"artist", a.Name, fmt.Sprintf("%.0f", a.Plays)})
	}
	if table([]string{"KIND", "NAME", "PLAYS"}, rows) {
		return
	}
	output(stats, fmt.Sprintf("%d songs, %.0f plays", stats.SongsListened, stats.TotalPlays))
}

func printRecommendations(recs []client.Recommendation) {
	rows := make([][]string, 0, len(recs))
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.SongID, r.Name, fmt.Sprintf("%.3f", r.Score)})
		ids = append(ids, r.SongID)
	}
	if table([]string{"SONG", "NAME", "SCORE"}, rows) {
		return
	}
	output(recs, strings.Join(ids, "\n"))
}
