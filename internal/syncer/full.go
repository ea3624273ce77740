package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// FullSync upserts the whole canonical set of et into both mirrors, prunes
// mirror entries with no canonical record, and resets both cursors to the
// ledger maximum observed before the canonical read. Entries appended after
// that point are replayed by the next incremental sync, which is harmless
// because every mirror write is idempotent.
func (o *Orchestrator) FullSync(ctx context.Context, et models.EntityType) (*models.FullSyncResult, error) {
	if err := validType(et); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	fields := logrus.Fields{"entity_type": et, "run_id": runID, "mode": "full"}

	release, err := o.leases.Acquire(ctx, et)
	if err != nil {
		return nil, &models.SyncError{EntityType: et, Err: err}
	}
	defer release()

	var maxSeq int64

	err = o.withRetry(ctx, "ledger max sequence", fields, func(ctx context.Context) error {
		var err error
		maxSeq, err = o.ledger.MaxSequence(ctx)
		return err
	})
	if err != nil {
		return nil, &models.SyncError{EntityType: et, Err: fmt.Errorf("reading ledger head: %w", err)}
	}

	var records []models.CanonicalRecord

	err = o.withRetry(ctx, "canonical get_all", fields, func(ctx context.Context) error {
		var err error
		records, err = o.canonical.GetAll(ctx, et)
		return err
	})
	if err != nil {
		return nil, &models.SyncError{EntityType: et, Cursor: maxSeq, Err: fmt.Errorf("reading canonical %s: %w", et, err)}
	}

	res := &models.FullSyncResult{EntityType: et, Skipped: []models.SkippedEntry{}, Pruned: map[string]int{}, Cursor: maxSeq}
	keep := make(map[string]struct{}, len(records))
	ents := make([]models.Entity, 0, len(records))

	for _, rec := range records {
		// Malformed records still exist canonically, so their ids are kept.
		keep[rec.EntityID] = struct{}{}

		ent, err := models.Parse(rec, metaFromVersion(rec.Version))
		if err != nil {
			res.Skipped = append(res.Skipped, models.SkippedEntry{EntityID: rec.EntityID, Reason: err.Error()})
			o.record(&models.JournalEntry{
				RunID: runID, Action: models.JournalSkipped, EntityType: et, EntityID: rec.EntityID,
				Detail: map[string]any{"reason": err.Error(), "mode": "full"},
			})

			continue
		}

		ents = append(ents, ent)
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for _, m := range o.mirrors() {
		g.Go(func() error {
			pruned, err := o.fullSyncMirror(gctx, m, et, ents, keep, fields)
			if err != nil {
				metrics.SyncBatchFailures.WithLabelValues(string(et), m.Name()).Inc()
				return &models.SyncError{EntityType: et, Mirror: m.Name(), Cursor: maxSeq, Err: err}
			}

			mu.Lock()
			res.Pruned[m.Name()] = pruned
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.log.WithFields(fields).WithError(err).Error("full sync failed")
		o.record(&models.JournalEntry{
			RunID: runID, Action: models.JournalBatchFailed, EntityType: et,
			Detail: map[string]any{"mode": "full", "error": err.Error()},
		})

		return nil, err
	}

	names := []string{o.graph.Name(), o.search.Name()}

	err = o.withRetry(ctx, "cursor reset", fields, func(ctx context.Context) error {
		return o.cursors.Reset(ctx, et, maxSeq, names...)
	})
	if err != nil {
		return nil, &models.SyncError{EntityType: et, Cursor: maxSeq, Err: fmt.Errorf("resetting cursors: %w", err)}
	}

	res.Migrated = len(ents)
	res.Elapsed = time.Since(start)

	for _, n := range names {
		metrics.SyncCursor.WithLabelValues(n, string(et)).Set(float64(maxSeq))
	}

	metrics.SyncEntriesTotal.WithLabelValues(string(et), "full", "applied").Add(float64(res.Migrated))
	metrics.SyncEntriesTotal.WithLabelValues(string(et), "full", "skipped").Add(float64(len(res.Skipped)))
	metrics.SyncBatchDuration.WithLabelValues(string(et), "full").Observe(res.Elapsed.Seconds())

	o.log.WithFields(fields).WithFields(logrus.Fields{
		"migrated": res.Migrated,
		"skipped":  len(res.Skipped),
		"pruned":   res.Pruned,
		"cursor":   maxSeq,
		"elapsed":  res.Elapsed.String(),
	}).Info("full sync complete")

	o.record(&models.JournalEntry{
		RunID: runID, Action: models.JournalFullSync, EntityType: et, Sequence: maxSeq,
		Detail: map[string]any{"migrated": res.Migrated, "skipped": len(res.Skipped), "pruned": res.Pruned},
	})

	return res, nil
}

// fullSyncMirror bulk upserts ents in batches and prunes leftovers.
func (o *Orchestrator) fullSyncMirror(
	ctx context.Context,
	m domain.Mirror,
	et models.EntityType,
	ents []models.Entity,
	keep map[string]struct{},
	fields logrus.Fields,
) (int, error) {
	mfields := logrus.Fields{"mirror": m.Name()}
	for k, v := range fields {
		mfields[k] = v
	}

	for i := 0; i < len(ents); i += o.cfg.BatchSize {
		end := min(i+o.cfg.BatchSize, len(ents))
		chunk := ents[i:end]

		err := o.withRetry(ctx, "bulk upsert", mfields, func(ctx context.Context) error {
			return m.BulkUpsert(ctx, et, chunk)
		})
		if err != nil {
			return 0, fmt.Errorf("bulk upsert of records %d-%d: %w", i, end, err)
		}
	}

	var pruned int

	err := o.withRetry(ctx, "prune", mfields, func(ctx context.Context) error {
		var err error
		pruned, err = m.Prune(ctx, et, keep)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pruning: %w", err)
	}

	return pruned, nil
}
