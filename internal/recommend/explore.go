package recommend

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

const (
	topNames         = 5
	defaultPathDepth = 6
	maxPathDepth     = 10
)

func nodeName(n models.GraphNode) string {
	if name, ok := n.Attributes["name"].(string); ok && name != "" {
		return name
	}

	return n.ExternalID
}

func playCount(weight float64) float64 {
	if weight <= 0 {
		return 1
	}

	return weight
}

// topByPlays ranks names by plays, then alphabetically, keeping at most topNames.
func topByPlays(a *arena, plays map[int]float64) []models.NameCount {
	out := make([]models.NameCount, 0, len(plays))
	for id, p := range plays {
		out = append(out, models.NameCount{Name: nodeName(a.nodes[id]), Plays: p})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}

		return out[i].Name < out[j].Name
	})

	return out[:min(len(out), topNames)]
}

// Stats summarizes what a user listened to and which genres and artists
// those plays reached.
func (e *Engine) Stats(ctx context.Context, userID string) (*models.ListenerStats, error) {
	root := models.NodeRef{Type: models.NodeUser, ID: userID}
	if err := e.requireNode(ctx, root); err != nil {
		return nil, err
	}

	a := newArena()

	history, err := e.neighbors(ctx, a, root, models.EdgeListenedTo, models.Outgoing)
	if err != nil {
		return nil, err
	}

	stats := &models.ListenerStats{UserID: userID, SongsListened: len(history)}
	genres := make(map[int]float64)
	artists := make(map[int]float64)

	for _, h := range history {
		stats.TotalPlays += playCount(h.weight)
	}

	for _, h := range e.capped(root, models.EdgeListenedTo, history) {
		groups, err := e.expand(ctx, a, a.nodes[h.id].Ref(), models.EdgeBelongsTo, models.Outgoing)
		if err != nil {
			return nil, err
		}

		for _, g := range groups {
			switch a.nodes[g.id].Type {
			case models.NodeGenre:
				genres[g.id] += playCount(h.weight)
			case models.NodeArtist:
				artists[g.id] += playCount(h.weight)
			}
		}
	}

	stats.TopGenres = topByPlays(a, genres)
	stats.TopArtists = topByPlays(a, artists)

	return stats, nil
}

// ShortestPath finds the shortest chain linking two songs through shared
// artists and genres, searching at most maxDepth edges. A maxDepth outside
// 1..10 falls back to the default of 6.
func (e *Engine) ShortestPath(ctx context.Context, fromSong, toSong string, maxDepth int) (*models.SongPath, error) {
	if maxDepth <= 0 || maxDepth > maxPathDepth {
		maxDepth = defaultPathDepth
	}

	from := models.NodeRef{Type: models.NodeSong, ID: fromSong}
	to := models.NodeRef{Type: models.NodeSong, ID: toSong}

	for _, ref := range []models.NodeRef{from, to} {
		if err := e.requireNode(ctx, ref); err != nil {
			return nil, err
		}
	}

	path := &models.SongPath{From: fromSong, To: toSong}

	a := newArena()
	start := a.intern(models.GraphNode{Type: from.Type, ExternalID: from.ID})
	target := a.intern(models.GraphNode{Type: to.Type, ExternalID: to.ID})

	parent := map[int]int{start: -1}
	frontier := []int{start}
	found := start == target

	for depth := 0; depth < maxDepth && len(frontier) > 0 && !found; depth++ {
		var next []int

		for _, id := range frontier {
			hops, err := e.pathStep(ctx, a, a.nodes[id])
			if err != nil {
				return nil, err
			}

			for _, h := range hops {
				if _, ok := parent[h.id]; ok {
					continue
				}

				parent[h.id] = id
				if h.id == target {
					found = true
					break
				}

				next = append(next, h.id)
			}

			if found {
				break
			}
		}

		frontier = next
	}

	if !found {
		e.log.WithFields(logrus.Fields{
			"from_song": fromSong,
			"to_song":   toSong,
			"max_depth": maxDepth,
		}).Debug("no song path found")

		return path, nil
	}

	var chain []int
	for id := target; id >= 0; id = parent[id] {
		chain = append(chain, id)
	}

	path.Connected = true
	path.Length = len(chain) - 1
	path.Nodes = make([]models.PathNode, len(chain))

	for i, id := range chain {
		n := a.nodes[id]
		path.Nodes[len(chain)-1-i] = models.PathNode{Type: n.Type, ID: n.ExternalID, Name: nodeName(n)}
	}

	return path, nil
}

// pathStep returns the artists and genres of a song, or the songs of an
// artist or genre.
func (e *Engine) pathStep(ctx context.Context, a *arena, n models.GraphNode) ([]hop, error) {
	if n.Type == models.NodeSong {
		hops, err := e.expand(ctx, a, n.Ref(), models.EdgeBelongsTo, models.Outgoing)
		if err != nil {
			return nil, err
		}

		return keepTypes(a, hops, models.NodeArtist, models.NodeGenre), nil
	}

	hops, err := e.expand(ctx, a, n.Ref(), models.EdgeBelongsTo, models.Incoming)
	if err != nil {
		return nil, err
	}

	return keepTypes(a, hops, models.NodeSong), nil
}

func keepTypes(a *arena, hops []hop, types ...models.NodeType) []hop {
	out := make([]hop, 0, len(hops))

	for _, h := range hops {
		for _, t := range types {
			if a.nodes[h.id].Type == t {
				out = append(out, h)
				break
			}
		}
	}

	return out
}

// SimilarListeners recommends songs played by users who share listening
// history with the user. Each candidate scores the sum of its listeners'
// overlap with the user; songs the user already heard are excluded.
func (e *Engine) SimilarListeners(ctx context.Context, userID string, limit int) ([]models.Recommendation, error) {
	root := models.NodeRef{Type: models.NodeUser, ID: userID}
	if err := e.requireNode(ctx, root); err != nil {
		return nil, err
	}

	a := newArena()
	rootID := a.intern(models.GraphNode{Type: root.Type, ExternalID: root.ID})

	history, err := e.neighbors(ctx, a, root, models.EdgeListenedTo, models.Outgoing)
	if err != nil {
		return nil, err
	}

	heard := make(map[int]struct{}, len(history))
	for _, h := range history {
		heard[h.id] = struct{}{}
	}

	overlap := make(map[int]int)

	for _, h := range e.capped(root, models.EdgeListenedTo, history) {
		listeners, err := e.expand(ctx, a, a.nodes[h.id].Ref(), models.EdgeListenedTo, models.Incoming)
		if err != nil {
			return nil, err
		}

		for _, l := range listeners {
			if l.id != rootID {
				overlap[l.id]++
			}
		}
	}

	peers := make([]int, 0, len(overlap))
	for id := range overlap {
		peers = append(peers, id)
	}

	sort.Ints(peers)

	type candidate struct {
		listeners int
		shared    int
	}

	cands := make(map[int]*candidate)

	for _, p := range peers {
		songs, err := e.expand(ctx, a, a.nodes[p].Ref(), models.EdgeListenedTo, models.Outgoing)
		if err != nil {
			return nil, err
		}

		for _, s := range songs {
			if _, ok := heard[s.id]; ok {
				continue
			}

			c, ok := cands[s.id]
			if !ok {
				c = &candidate{}
				cands[s.id] = c
			}

			c.listeners++
			c.shared += overlap[p]
		}
	}

	ids := make([]int, 0, len(cands))
	for id := range cands {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		ci, cj := cands[ids[i]], cands[ids[j]]
		if ci.shared != cj.shared {
			return ci.shared > cj.shared
		}

		if ci.listeners != cj.listeners {
			return ci.listeners > cj.listeners
		}

		return a.nodes[ids[i]].ExternalID < a.nodes[ids[j]].ExternalID
	})

	ids = ids[:min(len(ids), clampLimit(limit))]

	out := make([]models.Recommendation, len(ids))
	for i, id := range ids {
		n, c := a.nodes[id], cands[id]
		out[i] = models.Recommendation{
			SongID: n.ExternalID,
			Name:   songName(n),
			Score:  float64(c.shared),
			Reason: map[string]any{"listeners": c.listeners, "shared_songs": c.shared},
		}
	}

	e.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"peers":      len(peers),
		"candidates": len(cands),
		"returned":   len(out),
	}).Debug("similar listener recommendations computed")

	return out, nil
}
