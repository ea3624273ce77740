package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// IncrementalSync replays ledger entries after the stored cursors, one batch
// at a time, until the ledger is drained for et. The lease is held for one
// batch only. Cursors move after a batch is applied to both mirrors, or not
// at all, so a crash mid-batch replays that batch on the next run.
func (o *Orchestrator) IncrementalSync(ctx context.Context, et models.EntityType) (*models.IncrementalResult, error) {
	if err := validType(et); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	res := &models.IncrementalResult{EntityType: et}

	for first := true; ; first = false {
		n, err := o.syncBatch(ctx, et, runID, res, first)
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}

		// Backends may clamp the read limit, so only an empty read ends the run.
		if n == 0 {
			break
		}
	}

	res.Elapsed = time.Since(start)

	o.log.WithFields(logrus.Fields{
		"entity_type": et,
		"run_id":      runID,
		"applied":     res.Applied,
		"skipped":     res.Skipped,
		"batches":     res.Batches,
		"cursor":      res.CursorAfter,
	}).Info("incremental sync complete")

	return res, nil
}

// syncBatch applies one batch and returns the number of ledger entries read.
func (o *Orchestrator) syncBatch(ctx context.Context, et models.EntityType, runID string, res *models.IncrementalResult, first bool) (int, error) {
	fields := logrus.Fields{"entity_type": et, "run_id": runID, "mode": "incremental"}

	release, err := o.leases.Acquire(ctx, et)
	if err != nil {
		return 0, &models.SyncError{EntityType: et, Cursor: res.CursorAfter, Err: err}
	}
	defer release()

	batchStart := time.Now()
	mirrors := o.mirrors()
	cursors := make(map[string]int64, len(mirrors))
	low := int64(-1)

	for _, m := range mirrors {
		var c models.SyncCursor

		err := o.withRetry(ctx, "cursor read", fields, func(ctx context.Context) error {
			var err error
			c, err = o.cursors.Get(ctx, m.Name(), et)
			return err
		})
		if err != nil {
			return 0, &models.SyncError{EntityType: et, Mirror: m.Name(), Cursor: res.CursorAfter, Err: fmt.Errorf("reading cursor: %w", err)}
		}

		cursors[m.Name()] = c.LastAppliedSequence
		if low < 0 || c.LastAppliedSequence < low {
			low = c.LastAppliedSequence
		}
	}

	if first {
		res.CursorBefore = low
	}

	res.CursorAfter = low
	fields["cursor"] = low

	var entries []models.ChangeLogEntry

	err = o.withRetry(ctx, "ledger read", fields, func(ctx context.Context) error {
		var err error
		entries, err = o.ledger.ReadFrom(ctx, et, low, o.cfg.BatchSize)
		return err
	})
	if err != nil {
		return 0, &models.SyncError{EntityType: et, Cursor: low, Err: fmt.Errorf("reading ledger: %w", err)}
	}

	if len(entries) == 0 {
		return 0, nil
	}

	batchMax, err := checkOrder(et, low, entries)
	if err != nil {
		o.log.WithFields(fields).WithError(err).Error("ordering violation, halting sync")
		o.record(&models.JournalEntry{
			RunID: runID, Action: models.JournalOrderingHalted, EntityType: et, Sequence: low,
			Detail: map[string]any{"error": err.Error()},
		})

		return 0, &models.SyncError{EntityType: et, Cursor: low, Err: err}
	}

	ops, skipped := compact(entries)

	g, gctx := errgroup.WithContext(ctx)

	for _, m := range mirrors {
		pending := after(ops, cursors[m.Name()])
		if len(pending) == 0 {
			continue
		}

		g.Go(func() error {
			mfields := logrus.Fields{"mirror": m.Name(), "ops": len(pending)}
			for k, v := range fields {
				mfields[k] = v
			}

			err := o.withRetry(gctx, "apply batch", mfields, func(ctx context.Context) error {
				return apply(ctx, m, et, pending)
			})
			if err != nil {
				metrics.SyncBatchFailures.WithLabelValues(string(et), m.Name()).Inc()
				return &models.SyncError{EntityType: et, Mirror: m.Name(), Cursor: low, Err: err}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		res.Failed += len(entries)
		metrics.SyncEntriesTotal.WithLabelValues(string(et), "incremental", "failed").Add(float64(len(entries)))
		o.log.WithFields(fields).WithError(err).Error("sync batch failed, cursor not advanced")
		o.record(&models.JournalEntry{
			RunID: runID, Action: models.JournalBatchFailed, EntityType: et, Sequence: low,
			Detail: map[string]any{"entries": len(entries), "error": err.Error()},
		})

		return 0, err
	}

	var behind []string

	for _, m := range mirrors {
		if cursors[m.Name()] < batchMax {
			behind = append(behind, m.Name())
		}
	}

	err = o.withRetry(ctx, "cursor advance", fields, func(ctx context.Context) error {
		return o.cursors.Advance(ctx, et, batchMax, behind...)
	})
	if err != nil {
		var ov *models.OrderingViolationError
		if errors.As(err, &ov) {
			o.record(&models.JournalEntry{
				RunID: runID, Action: models.JournalOrderingHalted, EntityType: et, Sequence: batchMax,
				Detail: map[string]any{"error": err.Error()},
			})
		}

		return 0, &models.SyncError{EntityType: et, Cursor: low, Err: fmt.Errorf("advancing cursors: %w", err)}
	}

	applied := len(entries) - len(skipped)
	res.Applied += applied
	res.Skipped += len(skipped)
	res.SkippedDetail = append(res.SkippedDetail, skipped...)
	res.Batches++
	res.CursorAfter = batchMax

	for _, s := range skipped {
		o.log.WithFields(fields).WithFields(logrus.Fields{
			"sequence":  s.Sequence,
			"entity_id": s.EntityID,
		}).Warn("skipped malformed ledger entry: " + s.Reason)
		o.record(&models.JournalEntry{
			RunID: runID, Action: models.JournalSkipped, EntityType: et, EntityID: s.EntityID, Sequence: s.Sequence,
			Detail: map[string]any{"reason": s.Reason, "mode": "incremental"},
		})
	}

	for _, name := range behind {
		metrics.SyncCursor.WithLabelValues(name, string(et)).Set(float64(batchMax))
	}

	metrics.SyncEntriesTotal.WithLabelValues(string(et), "incremental", "applied").Add(float64(applied))
	metrics.SyncEntriesTotal.WithLabelValues(string(et), "incremental", "skipped").Add(float64(len(skipped)))
	metrics.SyncBatchDuration.WithLabelValues(string(et), "incremental").Observe(time.Since(batchStart).Seconds())

	o.record(&models.JournalEntry{
		RunID: runID, Action: models.JournalBatchApplied, EntityType: et, Sequence: batchMax,
		Detail: map[string]any{"from": low, "entries": len(entries), "ops": len(ops), "skipped": len(skipped)},
	})

	return len(entries), nil
}

// checkOrder verifies that entries belong to et and strictly increase past
// cursor. It returns the highest sequence in the batch.
func checkOrder(et models.EntityType, cursor int64, entries []models.ChangeLogEntry) (int64, error) {
	prev := cursor

	for _, e := range entries {
		if e.EntityType != et {
			return 0, &models.OrderingViolationError{
				EntityType: et, Cursor: cursor, Sequence: e.Sequence,
				Detail: fmt.Sprintf("ledger returned a %s entry", e.EntityType),
			}
		}

		if e.Sequence <= prev {
			return 0, &models.OrderingViolationError{
				EntityType: et, Cursor: cursor, Sequence: e.Sequence,
				Detail: fmt.Sprintf("sequence %d does not follow %d", e.Sequence, prev),
			}
		}

		prev = e.Sequence
	}

	return prev, nil
}

// apply writes ops to one mirror in sequence order.
func apply(ctx context.Context, m domain.Mirror, et models.EntityType, ops []op) error {
	for _, p := range ops {
		var err error

		switch p.entry.Operation {
		case models.OpCreate, models.OpUpdate:
			err = m.Upsert(ctx, p.entity)
		case models.OpDelete:
			err = m.Delete(ctx, et, p.entry.EntityID)
		}

		if err != nil {
			return fmt.Errorf("applying %s %s at sequence %d: %w", p.entry.Operation, p.entry.EntityID, p.entry.Sequence, err)
		}
	}

	return nil
}
