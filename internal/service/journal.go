// Package service sits between the API handlers and the stores: ledger
// appends, sync scheduling on ledger notifications, and the sync journal.
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

// JournalStore is the data access JournalService depends on.
type JournalStore interface {
	JournalRecorder
	Query(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, bool, error)
	PurgeOldEntries(ctx context.Context, retentionDays int) (int, error)
}

// JournalService wraps JournalStore with logging for destructive operations.
type JournalService struct {
	store JournalStore
	log   *logrus.Logger
}

// NewJournalService creates a JournalService.
func NewJournalService(store JournalStore, log *logrus.Logger) *JournalService {
	return &JournalService{store: store, log: log}
}

// Query returns journal entries matching opts (pass-through).
func (s *JournalService) Query(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, bool, error) {
	return s.store.Query(ctx, opts)
}

// PurgeOldEntries deletes entries older than retentionDays and logs the result.
func (s *JournalService) PurgeOldEntries(ctx context.Context, retentionDays int) (int, error) {
	deleted, err := s.store.PurgeOldEntries(ctx, retentionDays)
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"retention_days": retentionDays,
		"deleted":        deleted,
	}).Info("journal.purge")

	return deleted, nil
}
