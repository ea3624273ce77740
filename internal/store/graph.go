package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// GraphStore is the Postgres graph backend over graph_nodes and graph_edges.
// Edge rows reference both endpoint nodes, so node deletes cascade and an
// edge to a missing node is rejected by the database.
type GraphStore struct {
	Base
}

var _ domain.GraphStore = (*GraphStore)(nil)

// NewGraphStore creates a GraphStore with the given shared base.
func NewGraphStore(base Base) *GraphStore {
	return &GraphStore{Base: base}
}

// UpsertNode inserts or replaces a node's attributes.
func (s *GraphStore) UpsertNode(ctx context.Context, node models.GraphNode) error {
	attrs := node.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshaling node attributes: %w", err)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO graph_nodes (node_type, external_id, attributes, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (node_type, external_id)
		DO UPDATE SET attributes = EXCLUDED.attributes, updated_at = EXCLUDED.updated_at`,
		node.Type, node.ExternalID, attrsJSON, nullTime(node.UpdatedAt),
	)
	if err != nil {
		return classify("upserting node "+node.Ref().String(), err)
	}

	return nil
}

// UpsertEdge writes the edge when both endpoints exist. An existing edge is
// only touched when its weight changes.
func (s *GraphStore) UpsertEdge(ctx context.Context, e models.GraphEdge) (bool, error) {
	var w float64
	if e.Weight != nil {
		w = *e.Weight
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx, `
		INSERT INTO graph_edges (edge_type, from_type, from_id, to_type, to_id, weight, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		ON CONFLICT (edge_type, from_type, from_id, to_type, to_id)
		DO UPDATE SET weight = EXCLUDED.weight, updated_at = EXCLUDED.updated_at
		WHERE graph_edges.weight IS DISTINCT FROM EXCLUDED.weight`,
		e.Type, e.From.Type, e.From.ID, e.To.Type, e.To.ID, w, nullTime(e.UpdatedAt),
	)
	if isForeignKeyViolation(err) {
		return false, nil
	}

	if err != nil {
		return false, classify(fmt.Sprintf("upserting %s edge %s->%s", e.Type, e.From, e.To), err)
	}

	return true, nil
}

// RemoveNode deletes a node; its edges cascade.
func (s *GraphStore) RemoveNode(ctx context.Context, ref models.NodeRef) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := s.Pool.Exec(ctx,
		"DELETE FROM graph_nodes WHERE node_type = $1 AND external_id = $2", ref.Type, ref.ID); err != nil {
		return classify("removing node "+ref.String(), err)
	}

	return nil
}

// RemoveEdge deletes one edge if present.
func (s *GraphStore) RemoveEdge(ctx context.Context, et models.EdgeType, from, to models.NodeRef) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx, `
		DELETE FROM graph_edges
		WHERE edge_type = $1 AND from_type = $2 AND from_id = $3 AND to_type = $4 AND to_id = $5`,
		et, from.Type, from.ID, to.Type, to.ID,
	)
	if err != nil {
		return classify(fmt.Sprintf("removing %s edge %s->%s", et, from, to), err)
	}

	return nil
}

// SetDeferred replaces owner's deferred et edges in one transaction.
func (s *GraphStore) SetDeferred(ctx context.Context, owner models.NodeRef, et models.EdgeType, edges []models.GraphEdge) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit.

	if _, err := tx.Exec(ctx, `
		DELETE FROM graph_deferred_edges
		WHERE owner_type = $1 AND owner_id = $2 AND edge_type = $3`,
		owner.Type, owner.ID, et,
	); err != nil {
		return classify("clearing deferred edges of "+owner.String(), err)
	}

	for _, e := range edges {
		if err := insertDeferred(ctx, tx, models.DeferredEdge{Owner: owner, Edge: e}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("committing deferred edges", err)
	}

	return nil
}

// AddDeferred stores deferred edges, replacing any with the same key.
func (s *GraphStore) AddDeferred(ctx context.Context, deferred []models.DeferredEdge) error {
	if len(deferred) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit.

	for _, d := range deferred {
		if err := insertDeferred(ctx, tx, d); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("committing deferred edges", err)
	}

	return nil
}

func insertDeferred(ctx context.Context, tx pgx.Tx, d models.DeferredEdge) error {
	e, aw := d.Edge, d.Awaiting()

	_, err := tx.Exec(ctx, `
		INSERT INTO graph_deferred_edges
			(edge_type, from_type, from_id, to_type, to_id, owner_type, owner_id, awaiting_type, awaiting_id, weight, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
		ON CONFLICT (edge_type, from_type, from_id, to_type, to_id)
		DO UPDATE SET owner_type = EXCLUDED.owner_type, owner_id = EXCLUDED.owner_id,
			awaiting_type = EXCLUDED.awaiting_type, awaiting_id = EXCLUDED.awaiting_id,
			weight = EXCLUDED.weight, updated_at = EXCLUDED.updated_at`,
		e.Type, e.From.Type, e.From.ID, e.To.Type, e.To.ID,
		d.Owner.Type, d.Owner.ID, aw.Type, aw.ID, e.Weight, nullTime(e.UpdatedAt),
	)
	if err != nil {
		return classify("deferring "+e.Key(), err)
	}

	return nil
}

// TakeDeferred deletes and returns the edges waiting on ref.
func (s *GraphStore) TakeDeferred(ctx context.Context, ref models.NodeRef) ([]models.DeferredEdge, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		DELETE FROM graph_deferred_edges
		WHERE awaiting_type = $1 AND awaiting_id = $2
		RETURNING edge_type, from_type, from_id, to_type, to_id, owner_type, owner_id, weight, updated_at`,
		ref.Type, ref.ID,
	)
	if err != nil {
		return nil, classify("taking deferred edges of "+ref.String(), err)
	}
	defer rows.Close()

	var out []models.DeferredEdge

	for rows.Next() {
		var d models.DeferredEdge

		if err := rows.Scan(
			&d.Edge.Type, &d.Edge.From.Type, &d.Edge.From.ID, &d.Edge.To.Type, &d.Edge.To.ID,
			&d.Owner.Type, &d.Owner.ID, &d.Edge.Weight, &d.Edge.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning deferred edge: %w", err)
		}

		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterating deferred edges", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Edge.Key() < out[j].Edge.Key() })

	return out, nil
}

// NodeExists reports whether ref is present.
func (s *GraphStore) NodeExists(ctx context.Context, ref models.NodeRef) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var ok bool

	err := s.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM graph_nodes WHERE node_type = $1 AND external_id = $2)",
		ref.Type, ref.ID,
	).Scan(&ok)
	if err != nil {
		return false, classify("checking node "+ref.String(), err)
	}

	return ok, nil
}

// Neighbors returns the nodes across et edges on the dir side of ref,
// ordered by node type then id.
func (s *GraphStore) Neighbors(ctx context.Context, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]models.Neighbor, error) {
	self, other := "from", "to"
	if dir == models.Incoming {
		self, other = "to", "from"
	}

	query := fmt.Sprintf(`
		SELECT n.node_type, n.external_id, n.attributes, n.updated_at, e.weight, e.updated_at
		FROM graph_edges e
		JOIN graph_nodes n ON n.node_type = e.%[2]s_type AND n.external_id = e.%[2]s_id
		WHERE e.edge_type = $1 AND e.%[1]s_type = $2 AND e.%[1]s_id = $3
		ORDER BY n.node_type, n.external_id`, self, other)

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, query, et, ref.Type, ref.ID)
	if err != nil {
		return nil, classify("reading neighbors of "+ref.String(), err)
	}
	defer rows.Close()

	out := []models.Neighbor{}

	for rows.Next() {
		var (
			n     models.Neighbor
			attrs []byte
		)

		if err := rows.Scan(&n.Node.Type, &n.Node.ExternalID, &attrs, &n.Node.UpdatedAt, &n.Weight, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning neighbor: %w", err)
		}

		if err := json.Unmarshal(attrs, &n.Node.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes of %s: %w", n.Node.Ref(), err)
		}

		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterating neighbors", err)
	}

	return out, nil
}

// Overview counts nodes and edges by type.
func (s *GraphStore) Overview(ctx context.Context) (*models.GraphOverview, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only.

	ov := &models.GraphOverview{
		Nodes: make(map[models.NodeType]int64),
		Edges: make(map[models.EdgeType]int64),
	}

	if err := countBy(ctx, tx, "SELECT node_type, COUNT(*) FROM graph_nodes GROUP BY node_type", func(k string, n int64) {
		ov.Nodes[models.NodeType(k)] = n
		ov.TotalNodes += n
	}); err != nil {
		return nil, err
	}

	if err := countBy(ctx, tx, "SELECT edge_type, COUNT(*) FROM graph_edges GROUP BY edge_type", func(k string, n int64) {
		ov.Edges[models.EdgeType(k)] = n
		ov.TotalEdges += n
	}); err != nil {
		return nil, err
	}

	return ov, nil
}

func countBy(ctx context.Context, tx pgx.Tx, query string, add func(string, int64)) error {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return classify("counting graph", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k string
			n int64
		)

		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("scanning count: %w", err)
		}

		add(k, n)
	}

	return rows.Err()
}

// CountNodes counts nodes of one type.
func (s *GraphStore) CountNodes(ctx context.Context, nt models.NodeType) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM graph_nodes WHERE node_type = $1", nt).Scan(&n); err != nil {
		return 0, classify("counting "+string(nt)+" nodes", err)
	}

	return n, nil
}

// ListNodeIDs returns the external ids of every node of one type.
func (s *GraphStore) ListNodeIDs(ctx context.Context, nt models.NodeType) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		"SELECT external_id FROM graph_nodes WHERE node_type = $1 ORDER BY external_id", nt)
	if err != nil {
		return nil, classify("listing "+string(nt)+" nodes", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify("collecting node ids", err)
	}

	return ids, nil
}
