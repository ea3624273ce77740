package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// LedgerStore is the data access LedgerService depends on.
type LedgerStore interface {
	domain.Ledger
	domain.LedgerBrowser
}

// AppendNotifier is told about each committed append.
type AppendNotifier interface {
	LedgerAppended(et models.EntityType, sequence int64)
}

// AppendNotifiers fans one append notification out to several notifiers.
type AppendNotifiers []AppendNotifier

// LedgerAppended notifies each member in order.
func (ns AppendNotifiers) LedgerAppended(et models.EntityType, sequence int64) {
	for _, n := range ns {
		n.LedgerAppended(et, sequence)
	}
}

// LedgerService validates and records canonical mutations. When the ledger
// backend has no notification channel of its own, notifier is called
// directly after each append.
type LedgerService struct {
	store    LedgerStore
	notifier AppendNotifier
	log      *logrus.Logger
}

// NewLedgerService creates a LedgerService. notifier may be nil.
func NewLedgerService(store LedgerStore, notifier AppendNotifier, log *logrus.Logger) *LedgerService {
	return &LedgerService{store: store, notifier: notifier, log: log}
}

// Append records one mutation and returns the stored entry.
func (s *LedgerService) Append(ctx context.Context, entry models.ChangeLogEntry) (*models.ChangeLogEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	seq, err := s.store.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("appending %s %s: %w", entry.EntityType, entry.EntityID, err)
	}

	entry.Sequence = seq
	metrics.LedgerAppendsTotal.WithLabelValues(string(entry.EntityType), entry.Operation.String()).Inc()

	s.log.WithFields(logrus.Fields{
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
		"operation":   entry.Operation.String(),
		"sequence":    seq,
	}).Debug("ledger.append")

	if s.notifier != nil {
		s.notifier.LedgerAppended(entry.EntityType, seq)
	}

	return &entry, nil
}

// ReadFrom returns entries of et after the given sequence, ascending.
func (s *LedgerService) ReadFrom(ctx context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error) {
	if !et.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidEntityType, et)
	}

	return s.store.ReadFrom(ctx, et, after, limit)
}

// History returns every entry recorded for one entity, ascending.
func (s *LedgerService) History(ctx context.Context, et models.EntityType, id string) ([]models.ChangeLogEntry, error) {
	if !et.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidEntityType, et)
	}

	return s.store.ReadByEntity(ctx, et, id)
}

// Query filters ledger history, newest first (pass-through).
func (s *LedgerService) Query(ctx context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error) {
	return s.store.Query(ctx, q)
}
