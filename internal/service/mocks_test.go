package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// mockRecorder records journal writes.
type mockRecorder struct {
	mu      sync.Mutex
	entries []*models.JournalEntry
	err     error
}

func (m *mockRecorder) Record(_ context.Context, e *models.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, e)

	return m.err
}

func (m *mockRecorder) getEntries() []*models.JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.JournalEntry, len(m.entries))
	copy(out, m.entries)

	return out
}

// mockSyncer counts incremental sync calls per entity type.
type mockSyncer struct {
	mu    sync.Mutex
	calls map[models.EntityType]int
	run   func(et models.EntityType, call int) (*models.IncrementalResult, error)
}

func (m *mockSyncer) IncrementalSync(_ context.Context, et models.EntityType) (*models.IncrementalResult, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[models.EntityType]int)
	}
	m.calls[et]++
	call := m.calls[et]
	m.mu.Unlock()

	if m.run != nil {
		return m.run(et, call)
	}

	return &models.IncrementalResult{EntityType: et}, nil
}

func (m *mockSyncer) count(et models.EntityType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[et]
}

// mockNotifier captures append notifications.
type mockNotifier struct {
	mu   sync.Mutex
	seqs []int64
}

func (m *mockNotifier) LedgerAppended(_ models.EntityType, seq int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seqs = append(m.seqs, seq)
}
