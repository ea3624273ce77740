package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// Canonical is an in-memory canonical store.
type Canonical struct {
	mu      sync.RWMutex
	records map[models.EntityType]map[string]models.CanonicalRecord
}

var _ domain.CanonicalSource = (*Canonical)(nil)

// NewCanonical creates an empty Canonical store.
func NewCanonical() *Canonical {
	return &Canonical{records: make(map[models.EntityType]map[string]models.CanonicalRecord)}
}

// Put stores or replaces a record.
func (c *Canonical) Put(rec models.CanonicalRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byID, ok := c.records[rec.EntityType]
	if !ok {
		byID = make(map[string]models.CanonicalRecord)
		c.records[rec.EntityType] = byID
	}

	byID[rec.EntityID] = rec
}

// Remove deletes a record.
func (c *Canonical) Remove(et models.EntityType, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.records[et], id)
}

// GetAll implements domain.CanonicalSource. Records are ordered by id.
func (c *Canonical) GetAll(_ context.Context, et models.EntityType) ([]models.CanonicalRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.CanonicalRecord, 0, len(c.records[et]))
	for _, rec := range c.records[et] {
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })

	return out, nil
}

// Get implements domain.CanonicalSource.
func (c *Canonical) Get(_ context.Context, et models.EntityType, id string) (*models.CanonicalRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[et][id]
	if !ok {
		return nil, models.ErrNotFound
	}

	return &rec, nil
}

// Count implements domain.CanonicalSource.
func (c *Canonical) Count(_ context.Context, et models.EntityType) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return int64(len(c.records[et])), nil
}

// Apply materializes one ledger entry: deletes remove the record, creates
// and updates replace it with the entry's payload at version Sequence.
func (c *Canonical) Apply(e models.ChangeLogEntry) {
	if e.Operation == models.OpDelete {
		c.Remove(e.EntityType, e.EntityID)
		return
	}

	c.Put(e.Record())
}

// MaterializedLedger is a Ledger whose appends are also applied to a
// Canonical store. It stands in for the canonical write path when no
// document store is configured.
type MaterializedLedger struct {
	*Ledger

	mu        sync.Mutex
	canonical *Canonical
}

// NewMaterializedLedger wraps l so every append is applied to c.
func NewMaterializedLedger(l *Ledger, c *Canonical) *MaterializedLedger {
	return &MaterializedLedger{Ledger: l, canonical: c}
}

// Append implements domain.Ledger. The append and the canonical write happen
// under one lock so the store always reflects the highest sequence.
func (m *MaterializedLedger) Append(ctx context.Context, entry models.ChangeLogEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, err := m.Ledger.Append(ctx, entry)
	if err != nil {
		return 0, err
	}

	entry.Sequence = seq
	m.canonical.Apply(entry)

	return seq, nil
}
