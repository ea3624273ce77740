// Package graph is the Neo4j graph backend. Node labels and relationship
// types come from closed sets and are validated before they are spliced into
// Cypher, since neither can be passed as a query parameter.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

const defaultTimeout = 30 * time.Second

// Reserved node properties; every other property is an attribute.
const (
	propID      = "external_id"
	propUpdated = "updated_at"
)

// deferredLabel marks nodes that hold edges waiting on a missing endpoint.
// It is outside models.NodeTypes, so mirrored node queries never match it.
const deferredLabel = "DeferredEdge"

// Store implements domain.GraphStore on Neo4j.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logrus.Logger
}

var _ domain.GraphStore = (*Store)(nil)

// Connect creates a driver with basic auth and verifies connectivity.
func Connect(ctx context.Context, uri, user, password, database string, log *logrus.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	log.WithField("uri", uri).Info("neo4j graph backend connected")

	return &Store{driver: driver, database: database, log: log}, nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping checks connectivity for the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return classify("pinging neo4j", s.driver.VerifyConnectivity(ctx))
}

// EnsureSchema creates a uniqueness constraint on external_id per label and
// the key constraint and lookup index of deferred edges.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, nt := range models.NodeTypes {
		q := fmt.Sprintf("CREATE CONSTRAINT %s_external_id IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			nt, nt, propID)

		if _, err := s.run(ctx, neo4j.AccessModeWrite, "creating constraint for "+string(nt), q, nil); err != nil {
			return err
		}
	}

	for _, q := range []string{
		fmt.Sprintf("CREATE CONSTRAINT %[1]s_key IF NOT EXISTS FOR (d:%[1]s) REQUIRE d.key IS UNIQUE", deferredLabel),
		fmt.Sprintf("CREATE INDEX %[1]s_awaiting IF NOT EXISTS FOR (d:%[1]s) ON (d.awaiting_type, d.awaiting_id)", deferredLabel),
	} {
		if _, err := s.run(ctx, neo4j.AccessModeWrite, "creating deferred edge schema", q, nil); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) run(ctx context.Context, mode neo4j.AccessMode, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	return s.runAll(ctx, mode, op, statement{query: query, params: params})
}

type statement struct {
	query  string
	params map[string]any
}

// runAll executes statements in one managed transaction and returns the
// records of the last one.
func (s *Store) runAll(ctx context.Context, mode neo4j.AccessMode, op string, stmts ...statement) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
	defer session.Close(ctx) //nolint:errcheck // session close errors carry nothing actionable.

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		var recs []*neo4j.Record

		for _, st := range stmts {
			res, err := tx.Run(ctx, st.query, st.params)
			if err != nil {
				return nil, err
			}

			if recs, err = res.Collect(ctx); err != nil {
				return nil, err
			}
		}

		return recs, nil
	}

	var (
		out any
		err error
	)

	if mode == neo4j.AccessModeWrite {
		out, err = session.ExecuteWrite(ctx, work)
	} else {
		out, err = session.ExecuteRead(ctx, work)
	}

	if err != nil {
		return nil, classify(op, err)
	}

	recs, _ := out.([]*neo4j.Record)

	return recs, nil
}

// UpsertNode merges the node by external_id and replaces its properties.
func (s *Store) UpsertNode(ctx context.Context, node models.GraphNode) error {
	if err := checkLabel(node.Type); err != nil {
		return err
	}

	props := nodeProps(node)
	q := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n = $props", node.Type, propID)

	_, err := s.run(ctx, neo4j.AccessModeWrite, "upserting node "+node.Ref().String(), q,
		map[string]any{"id": node.ExternalID, "props": props})

	return err
}

// UpsertEdge merges the relationship when both endpoints exist.
func (s *Store) UpsertEdge(ctx context.Context, e models.GraphEdge) (bool, error) {
	q, err := upsertEdgeQuery(e)
	if err != nil {
		return false, err
	}

	var w float64
	if e.Weight != nil {
		w = *e.Weight
	}

	recs, err := s.run(ctx, neo4j.AccessModeWrite, fmt.Sprintf("upserting %s edge %s->%s", e.Type, e.From, e.To), q,
		map[string]any{"from": e.From.ID, "to": e.To.ID, "weight": w, "updated": updatedAt(e.UpdatedAt)})
	if err != nil {
		return false, err
	}

	return len(recs) > 0, nil
}

// RemoveNode detaches and deletes the node.
func (s *Store) RemoveNode(ctx context.Context, ref models.NodeRef) error {
	if err := checkLabel(ref.Type); err != nil {
		return err
	}

	q := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", ref.Type, propID)
	_, err := s.run(ctx, neo4j.AccessModeWrite, "removing node "+ref.String(), q, map[string]any{"id": ref.ID})

	return err
}

// RemoveEdge deletes one relationship if present.
func (s *Store) RemoveEdge(ctx context.Context, et models.EdgeType, from, to models.NodeRef) error {
	if err := checkEdge(et, from.Type, to.Type); err != nil {
		return err
	}

	q := fmt.Sprintf("MATCH (:%s {%s: $from})-[r:%s]->(:%s {%s: $to}) DELETE r",
		from.Type, propID, et, to.Type, propID)
	_, err := s.run(ctx, neo4j.AccessModeWrite, fmt.Sprintf("removing %s edge %s->%s", et, from, to), q,
		map[string]any{"from": from.ID, "to": to.ID})

	return err
}

// NodeExists reports whether ref is present.
func (s *Store) NodeExists(ctx context.Context, ref models.NodeRef) (bool, error) {
	if err := checkLabel(ref.Type); err != nil {
		return false, err
	}

	q := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN count(n) AS c", ref.Type, propID)

	recs, err := s.run(ctx, neo4j.AccessModeRead, "checking node "+ref.String(), q, map[string]any{"id": ref.ID})
	if err != nil {
		return false, err
	}

	return firstInt(recs, "c") > 0, nil
}

// Neighbors returns the nodes across et edges on the dir side of ref.
func (s *Store) Neighbors(ctx context.Context, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]models.Neighbor, error) {
	q, err := neighborsQuery(ref.Type, et, dir)
	if err != nil {
		return nil, err
	}

	recs, err := s.run(ctx, neo4j.AccessModeRead, "reading neighbors of "+ref.String(), q, map[string]any{"id": ref.ID})
	if err != nil {
		return nil, err
	}

	out := make([]models.Neighbor, 0, len(recs))

	for _, rec := range recs {
		label, _ := recordValue[string](rec, "label")
		props, _ := recordValue[map[string]any](rec, "props")
		w, _ := recordValue[float64](rec, "weight")
		updated, _ := recordValue[time.Time](rec, "updated")

		out = append(out, models.Neighbor{
			Node:      nodeFromProps(models.NodeType(label), props),
			Weight:    w,
			UpdatedAt: updated,
		})
	}

	return out, nil
}

// Overview counts nodes by label and relationships by type.
func (s *Store) Overview(ctx context.Context) (*models.GraphOverview, error) {
	ov := &models.GraphOverview{
		Nodes: make(map[models.NodeType]int64),
		Edges: make(map[models.EdgeType]int64),
	}

	recs, err := s.run(ctx, neo4j.AccessModeRead, "counting nodes",
		"MATCH (n) WHERE NOT n:"+deferredLabel+" RETURN head(labels(n)) AS k, count(*) AS c", nil)
	if err != nil {
		return nil, err
	}

	for _, rec := range recs {
		k, _ := recordValue[string](rec, "k")
		c, _ := recordValue[int64](rec, "c")
		ov.Nodes[models.NodeType(k)] += c
		ov.TotalNodes += c
	}

	recs, err = s.run(ctx, neo4j.AccessModeRead, "counting edges",
		"MATCH ()-[r]->() RETURN type(r) AS k, count(*) AS c", nil)
	if err != nil {
		return nil, err
	}

	for _, rec := range recs {
		k, _ := recordValue[string](rec, "k")
		c, _ := recordValue[int64](rec, "c")
		ov.Edges[models.EdgeType(k)] += c
		ov.TotalEdges += c
	}

	return ov, nil
}

// CountNodes counts nodes with one label.
func (s *Store) CountNodes(ctx context.Context, nt models.NodeType) (int64, error) {
	if err := checkLabel(nt); err != nil {
		return 0, err
	}

	recs, err := s.run(ctx, neo4j.AccessModeRead, "counting "+string(nt)+" nodes",
		fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS c", nt), nil)
	if err != nil {
		return 0, err
	}

	return firstInt(recs, "c"), nil
}

// ListNodeIDs returns every external id with one label, sorted.
func (s *Store) ListNodeIDs(ctx context.Context, nt models.NodeType) ([]string, error) {
	if err := checkLabel(nt); err != nil {
		return nil, err
	}

	recs, err := s.run(ctx, neo4j.AccessModeRead, "listing "+string(nt)+" nodes",
		fmt.Sprintf("MATCH (n:%s) RETURN n.%s AS id ORDER BY id", nt, propID), nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recs))

	for _, rec := range recs {
		if id, ok := recordValue[string](rec, "id"); ok {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// SetDeferred replaces owner's deferred et edges in one transaction.
func (s *Store) SetDeferred(ctx context.Context, owner models.NodeRef, et models.EdgeType, edges []models.GraphEdge) error {
	stmts := []statement{{
		query:  "MATCH (d:" + deferredLabel + " {owner_type: $type, owner_id: $id, edge_type: $edge}) DELETE d",
		params: map[string]any{"type": string(owner.Type), "id": owner.ID, "edge": string(et)},
	}}

	if len(edges) > 0 {
		rows := make([]any, len(edges))
		for i, e := range edges {
			rows[i] = deferredProps(models.DeferredEdge{Owner: owner, Edge: e})
		}

		stmts = append(stmts, mergeDeferred(rows))
	}

	_, err := s.runAll(ctx, neo4j.AccessModeWrite, "deferring edges of "+owner.String(), stmts...)

	return err
}

// AddDeferred stores deferred edges, replacing any with the same key.
func (s *Store) AddDeferred(ctx context.Context, deferred []models.DeferredEdge) error {
	if len(deferred) == 0 {
		return nil
	}

	rows := make([]any, len(deferred))
	for i, d := range deferred {
		rows[i] = deferredProps(d)
	}

	_, err := s.runAll(ctx, neo4j.AccessModeWrite, "deferring edges", mergeDeferred(rows))

	return err
}

// TakeDeferred deletes and returns the edges waiting on ref.
func (s *Store) TakeDeferred(ctx context.Context, ref models.NodeRef) ([]models.DeferredEdge, error) {
	q := "MATCH (d:" + deferredLabel + ` {awaiting_type: $type, awaiting_id: $id})
WITH d, properties(d) AS p
DELETE d
RETURN p ORDER BY p.key`

	recs, err := s.run(ctx, neo4j.AccessModeWrite, "taking deferred edges of "+ref.String(), q,
		map[string]any{"type": string(ref.Type), "id": ref.ID})
	if err != nil {
		return nil, err
	}

	out := make([]models.DeferredEdge, 0, len(recs))

	for _, rec := range recs {
		if p, ok := recordValue[map[string]any](rec, "p"); ok {
			out = append(out, deferredFromProps(p))
		}
	}

	return out, nil
}

func mergeDeferred(rows []any) statement {
	return statement{
		query:  "UNWIND $rows AS row MERGE (d:" + deferredLabel + " {key: row.key}) SET d = row",
		params: map[string]any{"rows": rows},
	}
}

func deferredProps(d models.DeferredEdge) map[string]any {
	e, aw := d.Edge, d.Awaiting()
	props := map[string]any{
		"key":           e.Key(),
		"edge_type":     string(e.Type),
		"from_type":     string(e.From.Type),
		"from_id":       e.From.ID,
		"to_type":       string(e.To.Type),
		"to_id":         e.To.ID,
		"owner_type":    string(d.Owner.Type),
		"owner_id":      d.Owner.ID,
		"awaiting_type": string(aw.Type),
		"awaiting_id":   aw.ID,
		propUpdated:     updatedAt(e.UpdatedAt),
	}

	if e.Weight != nil {
		props["weight"] = *e.Weight
	}

	return props
}

func deferredFromProps(p map[string]any) models.DeferredEdge {
	str := func(k string) string {
		v, _ := p[k].(string)
		return v
	}

	d := models.DeferredEdge{
		Owner: models.NodeRef{Type: models.NodeType(str("owner_type")), ID: str("owner_id")},
		Edge: models.GraphEdge{
			Type: models.EdgeType(str("edge_type")),
			From: models.NodeRef{Type: models.NodeType(str("from_type")), ID: str("from_id")},
			To:   models.NodeRef{Type: models.NodeType(str("to_type")), ID: str("to_id")},
		},
	}

	if w, ok := p["weight"].(float64); ok {
		d.Edge.Weight = &w
	}

	d.Edge.UpdatedAt, _ = p[propUpdated].(time.Time)

	return d
}

func checkLabel(nt models.NodeType) error {
	if !slices.Contains(models.NodeTypes, nt) {
		return fmt.Errorf("invalid node type %q", nt)
	}

	return nil
}

func checkEdge(et models.EdgeType, from, to models.NodeType) error {
	if !slices.Contains(models.EdgeTypes, et) {
		return fmt.Errorf("invalid edge type %q", et)
	}

	if err := checkLabel(from); err != nil {
		return err
	}

	return checkLabel(to)
}

// upsertEdgeQuery returns one row only when both endpoints matched.
func upsertEdgeQuery(e models.GraphEdge) (string, error) {
	if err := checkEdge(e.Type, e.From.Type, e.To.Type); err != nil {
		return "", err
	}

	return fmt.Sprintf(`MATCH (a:%s {%s: $from}), (b:%s {%s: $to})
MERGE (a)-[r:%s]->(b)
SET r.weight = $weight, r.updated_at = $updated
RETURN 1 AS ok`, e.From.Type, propID, e.To.Type, propID, e.Type), nil
}

func neighborsQuery(nt models.NodeType, et models.EdgeType, dir models.Direction) (string, error) {
	if err := checkEdge(et, nt, nt); err != nil {
		return "", err
	}

	pattern := "(s:%s {%s: $id})-[r:%s]->(n)"
	if dir == models.Incoming {
		pattern = "(s:%s {%s: $id})<-[r:%s]-(n)"
	}

	return fmt.Sprintf("MATCH "+pattern+`
RETURN head(labels(n)) AS label, properties(n) AS props, r.weight AS weight, r.updated_at AS updated
ORDER BY label, n.%s`, nt, propID, et, propID), nil
}

// nodeProps flattens a node into Neo4j properties. Attributes are scalar.
func nodeProps(node models.GraphNode) map[string]any {
	props := make(map[string]any, len(node.Attributes)+2)

	for k, v := range node.Attributes {
		if k == propID || k == propUpdated || v == nil {
			continue
		}

		props[k] = v
	}

	props[propID] = node.ExternalID
	props[propUpdated] = updatedAt(node.UpdatedAt)

	return props
}

func nodeFromProps(nt models.NodeType, props map[string]any) models.GraphNode {
	n := models.GraphNode{Type: nt, Attributes: make(map[string]any, len(props))}

	for k, v := range props {
		switch k {
		case propID:
			n.ExternalID, _ = v.(string)
		case propUpdated:
			n.UpdatedAt, _ = v.(time.Time)
		default:
			n.Attributes[k] = v
		}
	}

	return n
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}

	return t.UTC()
}

func recordValue[T any](rec *neo4j.Record, key string) (T, bool) {
	var zero T

	v, ok := rec.Get(key)
	if !ok {
		return zero, false
	}

	t, ok := v.(T)

	return t, ok
}

func firstInt(recs []*neo4j.Record, key string) int64 {
	if len(recs) == 0 {
		return 0
	}

	n, _ := recordValue[int64](recs[0], key)

	return n
}

// classify marks driver errors the server flags as retryable, lost
// connections and timeouts as transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return models.Transient(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
