// Package memstore provides in-process implementations of the ledger,
// cursor, canonical and mirror backends. They back the "memory" backend
// setting and the package tests of the sync core.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

type edgeKey struct {
	typ      models.EdgeType
	from, to models.NodeRef
}

type edgeVal struct {
	weight    float64
	updatedAt time.Time
}

type ownerKey struct {
	owner models.NodeRef
	typ   models.EdgeType
}

// Graph is an in-memory graph backend with adjacency indexes in both directions.
type Graph struct {
	mu    sync.RWMutex
	nodes map[models.NodeRef]models.GraphNode
	edges map[edgeKey]edgeVal
	out   map[models.NodeRef]map[edgeKey]struct{}
	in    map[models.NodeRef]map[edgeKey]struct{}

	deferred map[edgeKey]models.DeferredEdge
	byOwner  map[ownerKey]map[edgeKey]struct{}
	awaiting map[models.NodeRef]map[edgeKey]struct{}
}

var _ domain.GraphStore = (*Graph)(nil)

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[models.NodeRef]models.GraphNode),
		edges: make(map[edgeKey]edgeVal),
		out:   make(map[models.NodeRef]map[edgeKey]struct{}),
		in:    make(map[models.NodeRef]map[edgeKey]struct{}),

		deferred: make(map[edgeKey]models.DeferredEdge),
		byOwner:  make(map[ownerKey]map[edgeKey]struct{}),
		awaiting: make(map[models.NodeRef]map[edgeKey]struct{}),
	}
}

// UpsertNode implements domain.GraphStore.
func (g *Graph) UpsertNode(_ context.Context, node models.GraphNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	attrs := make(map[string]any, len(node.Attributes))
	for k, v := range node.Attributes {
		attrs[k] = v
	}

	node.Attributes = attrs
	g.nodes[node.Ref()] = node

	return nil
}

// UpsertEdge implements domain.GraphStore.
func (g *Graph) UpsertEdge(_ context.Context, e models.GraphEdge) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[e.From]; !ok {
		return false, nil
	}

	if _, ok := g.nodes[e.To]; !ok {
		return false, nil
	}

	var w float64
	if e.Weight != nil {
		w = *e.Weight
	}

	k := edgeKey{typ: e.Type, from: e.From, to: e.To}
	if cur, ok := g.edges[k]; ok && cur.weight == w {
		return true, nil
	}

	g.edges[k] = edgeVal{weight: w, updatedAt: e.UpdatedAt}
	index(g.out, e.From, k)
	index(g.in, e.To, k)

	return true, nil
}

func index(idx map[models.NodeRef]map[edgeKey]struct{}, ref models.NodeRef, k edgeKey) {
	set, ok := idx[ref]
	if !ok {
		set = make(map[edgeKey]struct{})
		idx[ref] = set
	}

	set[k] = struct{}{}
}

func (g *Graph) dropEdge(k edgeKey) {
	delete(g.edges, k)
	delete(g.out[k.from], k)
	delete(g.in[k.to], k)
}

// RemoveNode implements domain.GraphStore.
func (g *Graph) RemoveNode(_ context.Context, ref models.NodeRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for k := range g.out[ref] {
		g.dropEdge(k)
	}

	for k := range g.in[ref] {
		g.dropEdge(k)
	}

	delete(g.out, ref)
	delete(g.in, ref)
	delete(g.nodes, ref)

	return nil
}

// RemoveEdge implements domain.GraphStore.
func (g *Graph) RemoveEdge(_ context.Context, et models.EdgeType, from, to models.NodeRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dropEdge(edgeKey{typ: et, from: from, to: to})

	return nil
}

// SetDeferred implements domain.GraphStore.
func (g *Graph) SetDeferred(_ context.Context, owner models.NodeRef, et models.EdgeType, edges []models.GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for k := range g.byOwner[ownerKey{owner: owner, typ: et}] {
		g.undefer(k)
	}

	for _, e := range edges {
		g.deferEdge(models.DeferredEdge{Owner: owner, Edge: e})
	}

	return nil
}

// AddDeferred implements domain.GraphStore.
func (g *Graph) AddDeferred(_ context.Context, deferred []models.DeferredEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, d := range deferred {
		g.deferEdge(d)
	}

	return nil
}

// TakeDeferred implements domain.GraphStore. Edges come back in key order.
func (g *Graph) TakeDeferred(_ context.Context, ref models.NodeRef) ([]models.DeferredEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]models.DeferredEdge, 0, len(g.awaiting[ref]))
	for k := range g.awaiting[ref] {
		out = append(out, g.deferred[k])
		g.undefer(k)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Edge.Key() < out[j].Edge.Key() })

	return out, nil
}

// DeferredCount returns how many edges wait on a missing endpoint.
func (g *Graph) DeferredCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.deferred)
}

func (g *Graph) deferEdge(d models.DeferredEdge) {
	k := edgeKey{typ: d.Edge.Type, from: d.Edge.From, to: d.Edge.To}
	if _, ok := g.deferred[k]; ok {
		g.undefer(k)
	}

	g.deferred[k] = d
	index(g.awaiting, d.Awaiting(), k)

	owned := ownerKey{owner: d.Owner, typ: d.Edge.Type}
	if g.byOwner[owned] == nil {
		g.byOwner[owned] = make(map[edgeKey]struct{})
	}

	g.byOwner[owned][k] = struct{}{}
}

func (g *Graph) undefer(k edgeKey) {
	d, ok := g.deferred[k]
	if !ok {
		return
	}

	delete(g.deferred, k)

	owned := ownerKey{owner: d.Owner, typ: d.Edge.Type}
	delete(g.byOwner[owned], k)
	if len(g.byOwner[owned]) == 0 {
		delete(g.byOwner, owned)
	}

	aw := d.Awaiting()
	delete(g.awaiting[aw], k)
	if len(g.awaiting[aw]) == 0 {
		delete(g.awaiting, aw)
	}
}

// NodeExists implements domain.GraphReader.
func (g *Graph) NodeExists(_ context.Context, ref models.NodeRef) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.nodes[ref]

	return ok, nil
}

// Node returns a copy of a node.
func (g *Graph) Node(ref models.NodeRef) (models.GraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[ref]

	return n, ok
}

// Neighbors implements domain.GraphReader. Results are ordered by node id.
func (g *Graph) Neighbors(_ context.Context, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]models.Neighbor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx := g.out
	if dir == models.Incoming {
		idx = g.in
	}

	out := make([]models.Neighbor, 0, len(idx[ref]))

	for k := range idx[ref] {
		if k.typ != et {
			continue
		}

		other := k.to
		if dir == models.Incoming {
			other = k.from
		}

		v := g.edges[k]
		out = append(out, models.Neighbor{Node: g.nodes[other], Weight: v.weight, UpdatedAt: v.updatedAt})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Node.Type != out[j].Node.Type {
			return out[i].Node.Type < out[j].Node.Type
		}
		return out[i].Node.ExternalID < out[j].Node.ExternalID
	})

	return out, nil
}

// Overview implements domain.GraphReader.
func (g *Graph) Overview(_ context.Context) (*models.GraphOverview, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ov := &models.GraphOverview{
		Nodes: make(map[models.NodeType]int64),
		Edges: make(map[models.EdgeType]int64),
	}

	for ref := range g.nodes {
		ov.Nodes[ref.Type]++
		ov.TotalNodes++
	}

	for k := range g.edges {
		ov.Edges[k.typ]++
		ov.TotalEdges++
	}

	return ov, nil
}

// CountNodes implements domain.GraphStore.
func (g *Graph) CountNodes(_ context.Context, nt models.NodeType) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var n int64

	for ref := range g.nodes {
		if ref.Type == nt {
			n++
		}
	}

	return n, nil
}

// ListNodeIDs implements domain.GraphStore.
func (g *Graph) ListNodeIDs(_ context.Context, nt models.NodeType) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string

	for ref := range g.nodes {
		if ref.Type == nt {
			ids = append(ids, ref.ID)
		}
	}

	sort.Strings(ids)

	return ids, nil
}

// Snapshot returns every node and edge in a canonical textual form, for
// comparing mirror states.
func (g *Graph) Snapshot() (nodes, edges []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for ref, n := range g.nodes {
		nodes = append(nodes, ref.String()+" "+fmtAttrs(n.Attributes))
	}

	for k, v := range g.edges {
		edges = append(edges, string(k.typ)+" "+k.from.String()+"->"+k.to.String()+" "+fmtFloat(v.weight))
	}

	sort.Strings(nodes)
	sort.Strings(edges)

	return nodes, edges
}
