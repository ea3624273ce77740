package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/persistorai/tracksync/internal/models"
)

// Journal is an in-memory sync journal.
type Journal struct {
	mu      sync.RWMutex
	entries []models.JournalEntry
	nextID  int64
	now     func() time.Time
}

// NewJournal creates an empty Journal.
func NewJournal() *Journal {
	return &Journal{now: time.Now}
}

// Record appends an entry, assigning its id and timestamp.
func (j *Journal) Record(_ context.Context, e *models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextID++

	stored := *e
	stored.ID = j.nextID
	stored.CreatedAt = j.now().UTC()
	j.entries = append(j.entries, stored)

	return nil
}

// Query returns matching entries newest first, and whether more remain.
func (j *Journal) Query(_ context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	out := []models.JournalEntry{}
	skipped := 0

	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]

		if opts.Action != "" && e.Action != opts.Action ||
			opts.EntityType != "" && string(e.EntityType) != opts.EntityType ||
			opts.RunID != "" && e.RunID != opts.RunID ||
			opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}

		if skipped < opts.Offset {
			skipped++
			continue
		}

		if len(out) == limit {
			return out, true, nil
		}

		out = append(out, e)
	}

	return out, false, nil
}

// PurgeOldEntries drops entries older than retentionDays.
func (j *Journal) PurgeOldEntries(_ context.Context, retentionDays int) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	kept := j.entries[:0]

	for _, e := range j.entries {
		if e.CreatedAt.Before(cutoff) {
			continue
		}

		kept = append(kept, e)
	}

	deleted := len(j.entries) - len(kept)
	j.entries = kept

	return deleted, nil
}
