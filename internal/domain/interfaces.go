// Package domain defines the contracts between the sync core and the stores
// it reads or mirrors into. Adapters live in canonical, graph, store and
// memstore; the core depends only on these interfaces.
package domain

import (
	"context"

	"github.com/persistorai/tracksync/internal/models"
)

// CanonicalSource reads the canonical document store.
type CanonicalSource interface {
	GetAll(ctx context.Context, et models.EntityType) ([]models.CanonicalRecord, error)
	Get(ctx context.Context, et models.EntityType, id string) (*models.CanonicalRecord, error)
	Count(ctx context.Context, et models.EntityType) (int64, error)
}

// Ledger is the append-only change log.
type Ledger interface {
	Append(ctx context.Context, entry models.ChangeLogEntry) (int64, error)
	ReadFrom(ctx context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error)
	ReadByEntity(ctx context.Context, et models.EntityType, id string) ([]models.ChangeLogEntry, error)
	MaxSequence(ctx context.Context) (int64, error)
}

// LedgerBrowser filters ledger history.
type LedgerBrowser interface {
	Query(ctx context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error)
}

// CursorStore persists sync cursors per (mirror, entity type).
type CursorStore interface {
	Get(ctx context.Context, mirror string, et models.EntityType) (models.SyncCursor, error)
	List(ctx context.Context) ([]models.SyncCursor, error)
	// Advance moves the named mirrors' cursors forward to seq in one atomic
	// step. Moving any cursor backwards is an OrderingViolationError.
	Advance(ctx context.Context, et models.EntityType, seq int64, mirrors ...string) error
	// Reset sets cursors unconditionally. Only full sync calls it.
	Reset(ctx context.Context, et models.EntityType, seq int64, mirrors ...string) error
}

// Leaser grants the per-entity-type mutual exclusion lease for cursor
// advancement. Acquire returns models.ErrLeaseHeld when another task holds it.
type Leaser interface {
	Acquire(ctx context.Context, et models.EntityType) (release func(), err error)
}

// Mirror is the single capability every derived store implements.
// Upserts are keyed by entity id and deletes by key, so replays are harmless.
type Mirror interface {
	Name() string
	Upsert(ctx context.Context, ent models.Entity) error
	Delete(ctx context.Context, et models.EntityType, id string) error
	BulkUpsert(ctx context.Context, et models.EntityType, ents []models.Entity) error
	// Prune removes entries of et whose ids are not in keep and returns how many.
	Prune(ctx context.Context, et models.EntityType, keep map[string]struct{}) (int, error)
	Count(ctx context.Context, et models.EntityType) (int64, error)
}

// EdgeReconciler is implemented by mirrors that derive relationships from an
// entity. Reconcile upserts the entity's node and brings its owned edges in
// line with the entity by set difference.
type EdgeReconciler interface {
	Reconcile(ctx context.Context, ent models.Entity) (models.EdgeDelta, error)
}

// GraphReader is the read side of the graph mirror.
type GraphReader interface {
	NodeExists(ctx context.Context, ref models.NodeRef) (bool, error)
	Neighbors(ctx context.Context, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]models.Neighbor, error)
	Overview(ctx context.Context) (*models.GraphOverview, error)
}

// GraphStore is a graph backend: Neo4j, Postgres or in-memory.
type GraphStore interface {
	GraphReader
	UpsertNode(ctx context.Context, node models.GraphNode) error
	// UpsertEdge writes the edge only when both endpoints exist and reports
	// whether it did.
	UpsertEdge(ctx context.Context, edge models.GraphEdge) (bool, error)
	RemoveNode(ctx context.Context, ref models.NodeRef) error
	RemoveEdge(ctx context.Context, et models.EdgeType, from, to models.NodeRef) error
	CountNodes(ctx context.Context, nt models.NodeType) (int64, error)
	ListNodeIDs(ctx context.Context, nt models.NodeType) ([]string, error)

	// SetDeferred replaces the et edges owner holds back for missing endpoints.
	SetDeferred(ctx context.Context, owner models.NodeRef, et models.EdgeType, edges []models.GraphEdge) error
	// AddDeferred holds back more edges, keeping earlier ones.
	AddDeferred(ctx context.Context, deferred []models.DeferredEdge) error
	// TakeDeferred removes and returns the edges waiting on ref.
	TakeDeferred(ctx context.Context, ref models.NodeRef) ([]models.DeferredEdge, error)
}

// SearchIndex is a full-text backend holding one logical index per entity type.
type SearchIndex interface {
	UpsertDocuments(ctx context.Context, docs []models.SearchDocument) error
	DeleteDocument(ctx context.Context, et models.EntityType, id string) error
	ListDocumentIDs(ctx context.Context, et models.EntityType) ([]string, error)
	CountDocuments(ctx context.Context, et models.EntityType) (int64, error)
	Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error)
	Autocomplete(ctx context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error)
}

// Journal accepts sync journal entries asynchronously.
type Journal interface {
	Enqueue(entry *models.JournalEntry)
}
