package api

import (
	"context"

	"github.com/persistorai/tracksync/internal/models"
)

// SyncRunner defines the sync operations used by SyncHandler and GraphHandler.
type SyncRunner interface {
	FullSync(ctx context.Context, et models.EntityType) (*models.FullSyncResult, error)
	IncrementalSync(ctx context.Context, et models.EntityType) (*models.IncrementalResult, error)
	SyncRelationships(ctx context.Context, playlistID string) (*models.RelationshipResult, error)
	Cursors(ctx context.Context) ([]models.SyncCursor, error)
}

// Recommender defines the recommendation queries used by GraphHandler.
type Recommender interface {
	FromPlaylist(ctx context.Context, playlistID string, limit int) ([]models.Recommendation, error)
	Deep(ctx context.Context, userID string, limit int) ([]models.Recommendation, error)
	SimilarListeners(ctx context.Context, userID string, limit int) ([]models.Recommendation, error)
	ShortestPath(ctx context.Context, fromSong, toSong string, maxDepth int) (*models.SongPath, error)
	Stats(ctx context.Context, userID string) (*models.ListenerStats, error)
}

// GraphBrowser defines the read-only graph queries used by GraphHandler.
type GraphBrowser interface {
	Neighbors(ctx context.Context, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]models.Neighbor, error)
	Overview(ctx context.Context) (*models.GraphOverview, error)
}

// SearchRepository defines search operations used by SearchHandler.
// models.EntityAll fans out to every entity type.
type SearchRepository interface {
	Search(ctx context.Context, et models.EntityType, text string, filters map[string]string, limit int) ([]models.SearchHit, error)
	Autocomplete(ctx context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error)
}

// AuditRunner defines the consistency checks used by AuditHandler.
type AuditRunner interface {
	Audit(ctx context.Context, et models.EntityType) (*models.AuditReport, error)
	AuditAll(ctx context.Context) ([]models.AuditReport, error)
}

// LedgerRepository defines change ledger operations used by LedgerHandler.
type LedgerRepository interface {
	Append(ctx context.Context, entry models.ChangeLogEntry) (*models.ChangeLogEntry, error)
	ReadFrom(ctx context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error)
	History(ctx context.Context, et models.EntityType, id string) ([]models.ChangeLogEntry, error)
	Query(ctx context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error)
}

// JournalRepository defines sync journal operations used by JournalHandler.
type JournalRepository interface {
	Query(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, bool, error)
	PurgeOldEntries(ctx context.Context, retentionDays int) (int, error)
}

// ReadinessCheck is one dependency checked by the readiness endpoint.
type ReadinessCheck struct {
	Name string
	// Required checks fail readiness; others only report degraded.
	Required bool
	Check    func(ctx context.Context) error
}
