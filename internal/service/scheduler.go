package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

// IncrementalSyncer runs one incremental sync of an entity type.
type IncrementalSyncer interface {
	IncrementalSync(ctx context.Context, et models.EntityType) (*models.IncrementalResult, error)
}

// SyncObserver is told about every scheduled sync that did work or failed.
type SyncObserver interface {
	SyncCompleted(res *models.IncrementalResult)
	SyncFailed(et models.EntityType, err error)
}

// SyncScheduler turns ledger append notifications into incremental syncs.
// Notifications for one entity type coalesce: a burst of appends inside the
// debounce window causes a single sync, which drains the ledger to its head.
type SyncScheduler struct {
	syncer   IncrementalSyncer
	log      *logrus.Logger
	debounce time.Duration
	kicks    map[models.EntityType]chan struct{}
	observer SyncObserver
}

// SchedulerOption configures a SyncScheduler.
type SchedulerOption func(*SyncScheduler)

// WithObserver reports scheduled sync outcomes to o.
func WithObserver(o SyncObserver) SchedulerOption {
	return func(s *SyncScheduler) { s.observer = o }
}

// NewSyncScheduler creates a SyncScheduler. A non-positive debounce uses 250ms.
func NewSyncScheduler(syncer IncrementalSyncer, log *logrus.Logger, debounce time.Duration, opts ...SchedulerOption) *SyncScheduler {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	kicks := make(map[models.EntityType]chan struct{}, len(models.EntityTypes))
	for _, et := range models.EntityTypes {
		kicks[et] = make(chan struct{}, 1)
	}

	s := &SyncScheduler{syncer: syncer, log: log, debounce: debounce, kicks: kicks}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// LedgerAppended marks et as pending. It never blocks.
func (s *SyncScheduler) LedgerAppended(et models.EntityType, _ int64) {
	s.kick(et)
}

func (s *SyncScheduler) kick(et models.EntityType) {
	ch, ok := s.kicks[et]
	if !ok {
		return
	}

	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run starts one loop per entity type and blocks until ctx is cancelled.
func (s *SyncScheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for et, ch := range s.kicks {
		wg.Add(1)

		go func() {
			defer wg.Done()
			s.loop(ctx, et, ch)
		}()
	}

	wg.Wait()
}

func (s *SyncScheduler) loop(ctx context.Context, et models.EntityType, ch chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}

		if !s.wait(ctx) {
			return
		}

		// Appends that arrived during the debounce are covered by this run.
		select {
		case <-ch:
		default:
		}

		s.runOnce(ctx, et)
	}
}

func (s *SyncScheduler) wait(ctx context.Context) bool {
	t := time.NewTimer(s.debounce)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context, et models.EntityType) {
	fields := logrus.Fields{"entity_type": et}

	res, err := s.syncer.IncrementalSync(ctx, et)

	switch {
	case err == nil:
		if res.Applied > 0 || res.Skipped > 0 {
			s.log.WithFields(fields).WithFields(logrus.Fields{
				"applied":      res.Applied,
				"skipped":      res.Skipped,
				"cursor_after": res.CursorAfter,
			}).Info("scheduled incremental sync complete")

			if s.observer != nil {
				s.observer.SyncCompleted(res)
			}
		}
	case errors.Is(err, models.ErrLeaseHeld):
		// The holder may have read the ledger before this append; try again.
		s.log.WithFields(fields).Debug("sync lease held, rescheduling")
		s.kick(et)
	case ctx.Err() != nil:
	default:
		s.log.WithFields(fields).WithError(err).Error("scheduled incremental sync failed")

		if s.observer != nil {
			s.observer.SyncFailed(et, err)
		}
	}
}
