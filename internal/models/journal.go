package models

import "time"

// Journal actions written by the sync core.
const (
	JournalFullSync       = "sync.full"
	JournalBatchApplied   = "sync.batch_applied"
	JournalBatchFailed    = "sync.batch_failed"
	JournalSkipped        = "sync.skipped"
	JournalRelationships  = "sync.relationships"
	JournalDivergence     = "audit.divergence_detected"
	JournalOrderingHalted = "sync.ordering_violation"
)

// JournalEntry is one row of the sync journal.
type JournalEntry struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id,omitempty"`
	Action     string         `json:"action"`
	EntityType EntityType     `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Mirror     string         `json:"mirror,omitempty"`
	Sequence   int64          `json:"sequence,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// JournalQueryOpts filters journal reads.
type JournalQueryOpts struct {
	Action     string
	EntityType string
	RunID      string
	Since      *time.Time
	Limit      int
	Offset     int
}
