package mirror

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// GraphMirror projects entities onto a graph backend.
type GraphMirror struct {
	store domain.GraphStore
	log   *logrus.Logger
}

var (
	_ domain.Mirror         = (*GraphMirror)(nil)
	_ domain.EdgeReconciler = (*GraphMirror)(nil)
)

// NewGraphMirror creates a GraphMirror over the given backend.
func NewGraphMirror(store domain.GraphStore, log *logrus.Logger) *GraphMirror {
	return &GraphMirror{store: store, log: log}
}

// Name implements domain.Mirror.
func (m *GraphMirror) Name() string { return models.MirrorGraph }

// Upsert implements domain.Mirror.
func (m *GraphMirror) Upsert(ctx context.Context, ent models.Entity) error {
	_, err := m.Reconcile(ctx, ent)
	return err
}

// Reconcile upserts the entity's node and derived nodes, then reconciles
// each owned edge slot against the projection.
func (m *GraphMirror) Reconcile(ctx context.Context, ent models.Entity) (models.EdgeDelta, error) {
	g := project(ent)

	var delta models.EdgeDelta

	if err := m.store.UpsertNode(ctx, g.node); err != nil {
		return delta, fmt.Errorf("upserting %s node: %w", g.node.Ref(), err)
	}

	for _, d := range g.derived {
		if err := m.store.UpsertNode(ctx, d); err != nil {
			return delta, fmt.Errorf("upserting %s node: %w", d.Ref(), err)
		}
	}

	replayed, err := m.replayDeferred(ctx, g.node.Ref())
	if err != nil {
		return delta, err
	}

	delta.Added += replayed

	// Deterministic slot order keeps replays identical.
	slots := make([]edgeSlot, 0, len(g.edges))
	for s := range g.edges {
		slots = append(slots, s)
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].typ != slots[j].typ {
			return slots[i].typ < slots[j].typ
		}
		return slots[i].dir < slots[j].dir
	})

	for _, slot := range slots {
		d, err := m.reconcileSlot(ctx, g.node.Ref(), slot, g.edges[slot])
		if err != nil {
			return delta, err
		}

		delta.Merge(d)
	}

	if len(delta.Missing) > 0 {
		m.log.WithFields(logrus.Fields{
			"node":    g.node.Ref().String(),
			"missing": len(delta.Missing),
		}).Debug("deferred edges to unsynced endpoints")
	}

	return delta, nil
}

func (m *GraphMirror) reconcileSlot(ctx context.Context, ref models.NodeRef, slot edgeSlot, desired []models.GraphEdge) (models.EdgeDelta, error) {
	var delta models.EdgeDelta

	current, err := m.store.Neighbors(ctx, ref, slot.typ, slot.dir)
	if err != nil {
		return delta, fmt.Errorf("reading %s %s edges of %s: %w", slot.dir, slot.typ, ref, err)
	}

	other := func(e models.GraphEdge) models.NodeRef {
		if slot.dir == models.Outgoing {
			return e.To
		}
		return e.From
	}

	want := make(map[models.NodeRef]models.GraphEdge, len(desired))
	for _, e := range desired {
		want[other(e)] = e
	}

	have := make(map[models.NodeRef]models.Neighbor, len(current))

	var dropped []models.NodeRef

	for _, n := range current {
		nref := n.Node.Ref()
		have[nref] = n

		if _, ok := want[nref]; ok {
			continue
		}

		from, to := ref, nref
		if slot.dir == models.Incoming {
			from, to = nref, ref
		}

		if err := m.store.RemoveEdge(ctx, slot.typ, from, to); err != nil {
			return delta, fmt.Errorf("removing %s edge %s->%s: %w", slot.typ, from, to, err)
		}

		delta.Removed++
		dropped = append(dropped, nref)
	}

	if err := m.dropOrphans(ctx, dropped); err != nil {
		return delta, err
	}

	var missing []models.GraphEdge

	for _, e := range desired {
		var w float64
		if e.Weight != nil {
			w = *e.Weight
		}

		if n, ok := have[other(e)]; ok && n.Weight == w {
			delta.Unchanged++
			continue
		}

		written, err := m.store.UpsertEdge(ctx, e)
		if err != nil {
			return delta, fmt.Errorf("upserting %s edge %s->%s: %w", e.Type, e.From, e.To, err)
		}

		if !written {
			missing = append(missing, e)
			continue
		}

		delta.Added++
	}

	if err := m.store.SetDeferred(ctx, ref, slot.typ, missing); err != nil {
		return delta, fmt.Errorf("deferring %s edges of %s: %w", slot.typ, ref, err)
	}

	// An endpoint created after the write attempt has already looked for
	// deferred edges, so replay them here.
	for _, e := range missing {
		end := other(e)

		ok, err := m.store.NodeExists(ctx, end)
		if err != nil {
			return delta, fmt.Errorf("checking %s: %w", end, err)
		}

		if !ok {
			delta.Missing = append(delta.Missing, end)
			continue
		}

		n, err := m.replayDeferred(ctx, end)
		if err != nil {
			return delta, err
		}

		delta.Added += n
	}

	return delta, nil
}

// replayDeferred writes the edges that waited on ref. Edges whose owner is
// gone are dropped; the rest stay deferred when they still cannot be written.
func (m *GraphMirror) replayDeferred(ctx context.Context, ref models.NodeRef) (int, error) {
	pending, err := m.store.TakeDeferred(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("taking deferred edges of %s: %w", ref, err)
	}

	var (
		added int
		keep  []models.DeferredEdge
	)

	for i, d := range pending {
		written, err := m.store.UpsertEdge(ctx, d.Edge)
		if err != nil {
			m.restore(ctx, pending[i:])
			return added, fmt.Errorf("replaying %s: %w", d.Edge.Key(), err)
		}

		if written {
			added++
			continue
		}

		owned, err := m.store.NodeExists(ctx, d.Owner)
		if err != nil {
			m.restore(ctx, append(keep, pending[i:]...))
			return added, fmt.Errorf("checking %s: %w", d.Owner, err)
		}

		if owned {
			keep = append(keep, d)
		}
	}

	if err := m.store.AddDeferred(ctx, keep); err != nil {
		return added, fmt.Errorf("deferring edges of %s again: %w", ref, err)
	}

	if added > 0 {
		m.log.WithFields(logrus.Fields{"node": ref.String(), "edges": added}).Debug("replayed deferred edges")
	}

	return added, nil
}

// restore puts back taken edges after a failed replay. The caller's error
// already fails the batch, so a restore error is only logged.
func (m *GraphMirror) restore(ctx context.Context, pending []models.DeferredEdge) {
	if err := m.store.AddDeferred(ctx, pending); err != nil {
		m.log.WithError(err).WithField("edges", len(pending)).Error("failed to restore deferred edges")
	}
}

// Delete implements domain.Mirror. Incident edges go with the node, and
// artist or genre nodes left without members go too. Edges other nodes own
// are deferred so they return if the node is mirrored again.
func (m *GraphMirror) Delete(ctx context.Context, et models.EntityType, id string) error {
	ref := models.NodeRef{Type: et.NodeType(), ID: id}

	linked, err := m.store.Neighbors(ctx, ref, models.EdgeBelongsTo, models.Outgoing)
	if err != nil {
		return fmt.Errorf("reading edges of %s: %w", ref, err)
	}

	held, err := m.foreignEdges(ctx, ref)
	if err != nil {
		return err
	}

	if err := m.store.AddDeferred(ctx, held); err != nil {
		return fmt.Errorf("deferring edges to %s: %w", ref, err)
	}

	if err := m.store.RemoveNode(ctx, ref); err != nil {
		return fmt.Errorf("removing %s node: %w", ref, err)
	}

	for _, slot := range ownedSlots[ref.Type] {
		if err := m.store.SetDeferred(ctx, ref, slot.typ, nil); err != nil {
			return fmt.Errorf("clearing deferred %s edges of %s: %w", slot.typ, ref, err)
		}
	}

	refs := make([]models.NodeRef, len(linked))
	for i, n := range linked {
		refs[i] = n.Node.Ref()
	}

	return m.dropOrphans(ctx, refs)
}

// foreignEdges returns the edges of ref that other nodes own, as deferrals
// waiting on ref.
func (m *GraphMirror) foreignEdges(ctx context.Context, ref models.NodeRef) ([]models.DeferredEdge, error) {
	var held []models.DeferredEdge

	for _, slot := range foreignSlots[ref.Type] {
		nbrs, err := m.store.Neighbors(ctx, ref, slot.typ, slot.dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s %s edges of %s: %w", slot.dir, slot.typ, ref, err)
		}

		for _, n := range nbrs {
			owner := n.Node.Ref()
			e := models.GraphEdge{Type: slot.typ, From: owner, To: ref, UpdatedAt: n.UpdatedAt}
			if slot.dir == models.Outgoing {
				e.From, e.To = ref, owner
			}

			if slot.typ == models.EdgeListenedTo {
				e.Weight = weight(n.Weight)
			}

			held = append(held, models.DeferredEdge{Owner: owner, Edge: e})
		}
	}

	return held, nil
}

// dropOrphans removes derived nodes that no longer have any member.
func (m *GraphMirror) dropOrphans(ctx context.Context, refs []models.NodeRef) error {
	for _, ref := range refs {
		if ref.Type != models.NodeArtist && ref.Type != models.NodeGenre {
			continue
		}

		members, err := m.store.Neighbors(ctx, ref, models.EdgeBelongsTo, models.Incoming)
		if err != nil {
			return fmt.Errorf("reading members of %s: %w", ref, err)
		}

		if len(members) > 0 {
			continue
		}

		if err := m.store.RemoveNode(ctx, ref); err != nil {
			return fmt.Errorf("removing orphaned %s: %w", ref, err)
		}
	}

	return nil
}

// BulkUpsert implements domain.Mirror.
func (m *GraphMirror) BulkUpsert(ctx context.Context, _ models.EntityType, ents []models.Entity) error {
	for _, ent := range ents {
		if err := m.Upsert(ctx, ent); err != nil {
			return err
		}
	}

	return nil
}

// Prune implements domain.Mirror.
func (m *GraphMirror) Prune(ctx context.Context, et models.EntityType, keep map[string]struct{}) (int, error) {
	ids, err := m.store.ListNodeIDs(ctx, et.NodeType())
	if err != nil {
		return 0, fmt.Errorf("listing %s nodes: %w", et, err)
	}

	pruned := 0

	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}

		if err := m.Delete(ctx, et, id); err != nil {
			return pruned, err
		}

		pruned++
	}

	return pruned, nil
}

// Count implements domain.Mirror.
func (m *GraphMirror) Count(ctx context.Context, et models.EntityType) (int64, error) {
	return m.store.CountNodes(ctx, et.NodeType())
}
