package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// Ledger is an in-memory change ledger with a single global sequence.
type Ledger struct {
	mu      sync.RWMutex
	entries []models.ChangeLogEntry
	now     func() time.Time
}

var (
	_ domain.Ledger        = (*Ledger)(nil)
	_ domain.LedgerBrowser = (*Ledger)(nil)
)

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Append implements domain.Ledger.
func (l *Ledger) Append(_ context.Context, entry models.ChangeLogEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("validating ledger entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Sequence = int64(len(l.entries)) + 1
	entry.Payload = clonePayload(entry.Payload)
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = l.now().UTC()
	}

	l.entries = append(l.entries, entry)

	return entry.Sequence, nil
}

// ReadFrom implements domain.Ledger.
func (l *Ledger) ReadFrom(_ context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := int(after)
	if start < 0 {
		start = 0
	}

	out := []models.ChangeLogEntry{}

	for i := start; i < len(l.entries); i++ {
		if l.entries[i].EntityType != et {
			continue
		}

		out = append(out, detached(l.entries[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, nil
}

// ReadByEntity implements domain.Ledger.
func (l *Ledger) ReadByEntity(_ context.Context, et models.EntityType, id string) ([]models.ChangeLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []models.ChangeLogEntry{}

	for _, e := range l.entries {
		if e.EntityType == et && e.EntityID == id {
			out = append(out, detached(e))
		}
	}

	return out, nil
}

// MaxSequence implements domain.Ledger.
func (l *Ledger) MaxSequence(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return int64(len(l.entries)), nil
}

// Query implements domain.LedgerBrowser. Newest entries come first.
func (l *Ledger) Query(_ context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []models.ChangeLogEntry{}

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]

		switch {
		case q.EntityType != "" && e.EntityType != q.EntityType,
			q.Operation != 0 && e.Operation != q.Operation,
			q.From != nil && e.RecordedAt.Before(*q.From),
			q.To != nil && e.RecordedAt.After(*q.To):
			continue
		}

		out = append(out, detached(e))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}

	return out, nil
}

// detached returns e with a payload the caller may mutate freely.
func detached(e models.ChangeLogEntry) models.ChangeLogEntry {
	e.Payload = clonePayload(e.Payload)
	return e
}

// clonePayload deep-copies the JSON-shaped values a payload can hold.
func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}

	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}

		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Cursors is an in-memory cursor store.
type Cursors struct {
	mu   sync.Mutex
	rows map[string]models.SyncCursor
}

var _ domain.CursorStore = (*Cursors)(nil)

// NewCursors creates an empty cursor store.
func NewCursors() *Cursors {
	return &Cursors{rows: make(map[string]models.SyncCursor)}
}

func cursorKey(mirror string, et models.EntityType) string { return mirror + "/" + string(et) }

// Get implements domain.CursorStore. A missing cursor reads as sequence 0.
func (c *Cursors) Get(_ context.Context, mirror string, et models.EntityType) (models.SyncCursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if row, ok := c.rows[cursorKey(mirror, et)]; ok {
		return row, nil
	}

	return models.SyncCursor{Mirror: mirror, EntityType: et}, nil
}

// List implements domain.CursorStore.
func (c *Cursors) List(_ context.Context) ([]models.SyncCursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.SyncCursor, 0, len(c.rows))
	for _, row := range c.rows {
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		return cursorKey(out[i].Mirror, out[i].EntityType) < cursorKey(out[j].Mirror, out[j].EntityType)
	})

	return out, nil
}

// Advance implements domain.CursorStore.
func (c *Cursors) Advance(_ context.Context, et models.EntityType, seq int64, mirrors ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range mirrors {
		if cur := c.rows[cursorKey(m, et)]; cur.LastAppliedSequence > seq {
			return &models.OrderingViolationError{
				EntityType: et,
				Cursor:     cur.LastAppliedSequence,
				Sequence:   seq,
				Detail:     "cursor for " + m + " would move backwards",
			}
		}
	}

	c.set(et, seq, mirrors)

	return nil
}

// Reset implements domain.CursorStore.
func (c *Cursors) Reset(_ context.Context, et models.EntityType, seq int64, mirrors ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(et, seq, mirrors)

	return nil
}

func (c *Cursors) set(et models.EntityType, seq int64, mirrors []string) {
	now := time.Now().UTC()
	for _, m := range mirrors {
		c.rows[cursorKey(m, et)] = models.SyncCursor{Mirror: m, EntityType: et, LastAppliedSequence: seq, UpdatedAt: now}
	}
}

// Leaser is an in-process keyed try-lock per entity type.
type Leaser struct {
	mu   sync.Mutex
	held map[models.EntityType]bool
}

var _ domain.Leaser = (*Leaser)(nil)

// NewLeaser creates a Leaser.
func NewLeaser() *Leaser {
	return &Leaser{held: make(map[models.EntityType]bool)}
}

// Acquire implements domain.Leaser.
func (l *Leaser) Acquire(_ context.Context, et models.EntityType) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[et] {
		return nil, models.ErrLeaseHeld
	}

	l.held[et] = true

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, et)
			l.mu.Unlock()
		})
	}, nil
}
