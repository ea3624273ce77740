// Package recommend derives song recommendations from the graph mirror by
// bounded breadth-first expansion. It only reads the graph.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

const (
	defaultLimit     = 10
	maxLimit         = 100
	defaultMaxFanOut = 1000
)

// Weights are the coefficients of the deep recommendation score:
// Genre*shared_genres + Artist*shared_artists + Listen*sum(log(1+listens)).
type Weights struct {
	Genre  float64
	Artist float64
	Listen float64
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{Genre: 1.0, Artist: 1.5, Listen: 0.5}
}

// Engine answers recommendation queries against a graph reader.
type Engine struct {
	graph     domain.GraphReader
	weights   Weights
	maxFanOut int
	log       *logrus.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxFanOut caps how many neighbors are expanded per node.
func WithMaxFanOut(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxFanOut = n
		}
	}
}

// New creates an Engine.
func New(graph domain.GraphReader, weights Weights, log *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{graph: graph, weights: weights, maxFanOut: defaultMaxFanOut, log: log}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Weights returns the configured scoring weights.
func (e *Engine) Weights() Weights { return e.weights }

// arena interns graph nodes to dense integer ids for the duration of one query.
type arena struct {
	index map[models.NodeRef]int
	nodes []models.GraphNode
}

func newArena() *arena {
	return &arena{index: make(map[models.NodeRef]int)}
}

func (a *arena) intern(n models.GraphNode) int {
	ref := n.Ref()
	if id, ok := a.index[ref]; ok {
		if a.nodes[id].Attributes == nil {
			a.nodes[id].Attributes = n.Attributes
		}

		return id
	}

	id := len(a.nodes)
	a.index[ref] = id
	a.nodes = append(a.nodes, n)

	return id
}

// hop is one expanded neighbor.
type hop struct {
	id        int
	weight    float64
	updatedAt time.Time
}

// neighbors reads every neighbor of ref over one edge type, interned.
func (e *Engine) neighbors(ctx context.Context, a *arena, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]hop, error) {
	ns, err := e.graph.Neighbors(ctx, ref, et, dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s neighbors of %s: %w", dir, et, ref, err)
	}

	out := make([]hop, len(ns))
	for i, n := range ns {
		out[i] = hop{id: a.intern(n.Node), weight: n.Weight, updatedAt: n.UpdatedAt}
	}

	return out, nil
}

// capped limits hops to the fan-out cap used for expansion.
func (e *Engine) capped(ref models.NodeRef, et models.EdgeType, hops []hop) []hop {
	if len(hops) <= e.maxFanOut {
		return hops
	}

	e.log.WithFields(logrus.Fields{
		"node":      ref.String(),
		"edge_type": et,
		"neighbors": len(hops),
		"cap":       e.maxFanOut,
	}).Debug("neighbor expansion truncated")

	return hops[:e.maxFanOut]
}

// expand reads the neighbors of ref over one edge type, interned and capped.
func (e *Engine) expand(ctx context.Context, a *arena, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]hop, error) {
	hops, err := e.neighbors(ctx, a, ref, et, dir)
	if err != nil {
		return nil, err
	}

	return e.capped(ref, et, hops), nil
}

func (e *Engine) requireNode(ctx context.Context, ref models.NodeRef) error {
	ok, err := e.graph.NodeExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", ref, err)
	}

	if !ok {
		return fmt.Errorf("%w: %s has not been synced to the graph", models.ErrNotFound, ref)
	}

	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}

	return min(limit, maxLimit)
}

func songName(n models.GraphNode) string {
	name, _ := n.Attributes["name"].(string)
	return name
}

// FromPlaylist recommends songs that co-occur with the playlist's songs in
// other playlists. Candidates are ranked by the number of distinct
// co-occurring playlists containing them, then by their most recent CONTAINS
// edge, then by id.
func (e *Engine) FromPlaylist(ctx context.Context, playlistID string, limit int) ([]models.Recommendation, error) {
	root := models.NodeRef{Type: models.NodePlaylist, ID: playlistID}
	if err := e.requireNode(ctx, root); err != nil {
		return nil, err
	}

	a := newArena()
	rootID := a.intern(models.GraphNode{Type: root.Type, ExternalID: root.ID})

	all, err := e.neighbors(ctx, a, root, models.EdgeContains, models.Outgoing)
	if err != nil {
		return nil, err
	}

	// Exclusion covers the whole playlist; the cap only bounds expansion.
	own := make(map[int]struct{}, len(all))
	for _, s := range all {
		own[s.id] = struct{}{}
	}

	songs := e.capped(root, models.EdgeContains, all)

	// First hop: playlists sharing at least one song.
	var peers []int

	seen := map[int]struct{}{rootID: {}}

	for _, s := range songs {
		holders, err := e.expand(ctx, a, a.nodes[s.id].Ref(), models.EdgeContains, models.Incoming)
		if err != nil {
			return nil, err
		}

		for _, p := range holders {
			if _, ok := seen[p.id]; ok {
				continue
			}

			seen[p.id] = struct{}{}
			peers = append(peers, p.id)
		}
	}

	type candidate struct {
		playlists int
		latest    time.Time
	}

	cands := make(map[int]*candidate)

	// Second hop: songs of those playlists not already in the root.
	for _, p := range peers {
		contents, err := e.expand(ctx, a, a.nodes[p].Ref(), models.EdgeContains, models.Outgoing)
		if err != nil {
			return nil, err
		}

		for _, s := range contents {
			if _, ok := own[s.id]; ok {
				continue
			}

			c, ok := cands[s.id]
			if !ok {
				c = &candidate{}
				cands[s.id] = c
			}

			c.playlists++
			if s.updatedAt.After(c.latest) {
				c.latest = s.updatedAt
			}
		}
	}

	ids := make([]int, 0, len(cands))
	for id := range cands {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		ci, cj := cands[ids[i]], cands[ids[j]]
		if ci.playlists != cj.playlists {
			return ci.playlists > cj.playlists
		}

		if !ci.latest.Equal(cj.latest) {
			return ci.latest.After(cj.latest)
		}

		return a.nodes[ids[i]].ExternalID < a.nodes[ids[j]].ExternalID
	})

	ids = ids[:min(len(ids), clampLimit(limit))]

	out := make([]models.Recommendation, len(ids))
	for i, id := range ids {
		n := a.nodes[id]
		out[i] = models.Recommendation{
			SongID: n.ExternalID,
			Name:   songName(n),
			Score:  float64(cands[id].playlists),
			Reason: map[string]any{"co_playlists": cands[id].playlists},
		}
	}

	e.log.WithFields(logrus.Fields{
		"playlist_id": playlistID,
		"peers":       len(peers),
		"candidates":  len(cands),
		"returned":    len(out),
	}).Debug("playlist recommendations computed")

	return out, nil
}

// Deep recommends songs that share an artist or genre with songs the user
// listened to, weighted by how often the user played the source songs.
// Songs the user already listened to are excluded.
func (e *Engine) Deep(ctx context.Context, userID string, limit int) ([]models.Recommendation, error) {
	root := models.NodeRef{Type: models.NodeUser, ID: userID}
	if err := e.requireNode(ctx, root); err != nil {
		return nil, err
	}

	a := newArena()

	history, err := e.neighbors(ctx, a, root, models.EdgeListenedTo, models.Outgoing)
	if err != nil {
		return nil, err
	}

	heard := make(map[int]struct{}, len(history))
	for _, l := range history {
		heard[l.id] = struct{}{}
	}

	listened := e.capped(root, models.EdgeListenedTo, history)

	type candidate struct {
		genres  map[int]struct{}
		artists map[int]struct{}
		sources map[int]float64
	}

	cands := make(map[int]*candidate)
	members := make(map[int][]hop)

	for _, src := range listened {
		groups, err := e.expand(ctx, a, a.nodes[src.id].Ref(), models.EdgeBelongsTo, models.Outgoing)
		if err != nil {
			return nil, err
		}

		plays := src.weight
		if plays <= 0 {
			plays = 1
		}

		for _, g := range groups {
			kind := a.nodes[g.id].Type
			if kind != models.NodeGenre && kind != models.NodeArtist {
				continue
			}

			songs, ok := members[g.id]
			if !ok {
				songs, err = e.expand(ctx, a, a.nodes[g.id].Ref(), models.EdgeBelongsTo, models.Incoming)
				if err != nil {
					return nil, err
				}

				members[g.id] = songs
			}

			for _, s := range songs {
				if a.nodes[s.id].Type != models.NodeSong {
					continue
				}

				if _, ok := heard[s.id]; ok {
					continue
				}

				c, ok := cands[s.id]
				if !ok {
					c = &candidate{genres: map[int]struct{}{}, artists: map[int]struct{}{}, sources: map[int]float64{}}
					cands[s.id] = c
				}

				if kind == models.NodeGenre {
					c.genres[g.id] = struct{}{}
				} else {
					c.artists[g.id] = struct{}{}
				}

				c.sources[src.id] = plays
			}
		}
	}

	scores := make(map[int]float64, len(cands))
	ids := make([]int, 0, len(cands))

	for id, c := range cands {
		var listen float64
		for _, plays := range c.sources {
			listen += math.Log1p(plays)
		}

		scores[id] = e.weights.Genre*float64(len(c.genres)) +
			e.weights.Artist*float64(len(c.artists)) +
			e.weights.Listen*listen
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
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
			Score:  scores[id],
			Reason: map[string]any{
				"shared_genres":  len(c.genres),
				"shared_artists": len(c.artists),
				"source_songs":   len(c.sources),
			},
		}
	}

	e.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"listened":   len(listened),
		"candidates": len(cands),
		"returned":   len(out),
	}).Debug("deep recommendations computed")

	return out, nil
}
