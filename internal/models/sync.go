package models

import "time"

// Mirror names used for cursors and journal rows.
const (
	MirrorGraph  = "graph"
	MirrorSearch = "search"
)

// SyncCursor is the last ledger sequence a mirror has durably applied for an entity type.
type SyncCursor struct {
	Mirror              string     `json:"mirror"`
	EntityType          EntityType `json:"entity_type"`
	LastAppliedSequence int64      `json:"last_applied_sequence"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SkippedEntry records a record that could not be projected.
type SkippedEntry struct {
	Sequence int64  `json:"sequence,omitempty"`
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// FullSyncResult reports a full resync of one entity type.
type FullSyncResult struct {
	EntityType EntityType     `json:"entity_type"`
	Migrated   int            `json:"migrated"`
	Skipped    []SkippedEntry `json:"skipped"`
	Pruned     map[string]int `json:"pruned"`
	Cursor     int64          `json:"cursor"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
}

// IncrementalResult reports an incremental sync of one entity type.
type IncrementalResult struct {
	EntityType    EntityType     `json:"entity_type"`
	Applied       int            `json:"applied"`
	Skipped       int            `json:"skipped"`
	Failed        int            `json:"failed"`
	Batches       int            `json:"batches"`
	CursorBefore  int64          `json:"cursor_before"`
	CursorAfter   int64          `json:"cursor_after"`
	SkippedDetail []SkippedEntry `json:"skipped_detail,omitempty"`
	Elapsed       time.Duration  `json:"elapsed_ns"`
}

// RelationshipResult reports a playlist edge reconciliation.
type RelationshipResult struct {
	PlaylistID string   `json:"playlist_id"`
	Added      int      `json:"added"`
	Removed    int      `json:"removed"`
	Unchanged  int      `json:"unchanged"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// AuditReport compares entity counts across the three stores.
type AuditReport struct {
	EntityType     EntityType `json:"entity_type"`
	CanonicalCount int64      `json:"canonical_count"`
	GraphCount     int64      `json:"graph_count"`
	SearchCount    int64      `json:"search_count"`
	Divergence     int64      `json:"divergence"`
	Threshold      int64      `json:"threshold"`
	Diverged       bool       `json:"diverged"`
	CheckedAt      time.Time  `json:"checked_at"`
}

// DivergenceDetected is the non-fatal audit signal raised when a report
// exceeds its threshold.
type DivergenceDetected struct {
	Report AuditReport
}

func (d DivergenceDetected) String() string {
	return "divergence detected for " + string(d.Report.EntityType)
}

// Recommendation is one ranked song suggestion.
type Recommendation struct {
	SongID string         `json:"song_id"`
	Name   string         `json:"name,omitempty"`
	Score  float64        `json:"score"`
	Reason map[string]any `json:"reason,omitempty"`
}
