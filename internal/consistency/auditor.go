// Package consistency compares entity counts across the canonical store and
// both mirrors. It reports divergence and never repairs it.
package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// Auditor computes count divergence per entity type.
type Auditor struct {
	canonical domain.CanonicalSource
	graph     domain.Mirror
	search    domain.Mirror
	journal   domain.Journal
	threshold int64
	notify    func(models.DivergenceDetected)
	log       *logrus.Logger
	now       func() time.Time
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithThreshold sets the divergence a report tolerates before it is flagged.
func WithThreshold(n int64) Option {
	return func(a *Auditor) {
		if n >= 0 {
			a.threshold = n
		}
	}
}

// WithJournal records divergence signals in the sync journal.
func WithJournal(j domain.Journal) Option {
	return func(a *Auditor) { a.journal = j }
}

// WithNotifier registers a callback invoked for every flagged report.
func WithNotifier(fn func(models.DivergenceDetected)) Option {
	return func(a *Auditor) { a.notify = fn }
}

// NewAuditor creates an Auditor over the canonical store and both mirrors.
func NewAuditor(canonical domain.CanonicalSource, graph, search domain.Mirror, log *logrus.Logger, opts ...Option) *Auditor {
	a := &Auditor{canonical: canonical, graph: graph, search: search, log: log, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Audit counts et in all three stores concurrently and reports the largest
// absolute difference between the canonical count and either mirror.
func (a *Auditor) Audit(ctx context.Context, et models.EntityType) (*models.AuditReport, error) {
	if !et.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidEntityType, et)
	}

	rep := &models.AuditReport{EntityType: et, Threshold: a.threshold}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := a.canonical.Count(gctx, et)
		if err != nil {
			return fmt.Errorf("counting canonical %s: %w", et, err)
		}

		rep.CanonicalCount = n

		return nil
	})

	g.Go(func() error {
		n, err := a.graph.Count(gctx, et)
		if err != nil {
			return fmt.Errorf("counting %s in %s mirror: %w", et, a.graph.Name(), err)
		}

		rep.GraphCount = n

		return nil
	})

	g.Go(func() error {
		n, err := a.search.Count(gctx, et)
		if err != nil {
			return fmt.Errorf("counting %s in %s mirror: %w", et, a.search.Name(), err)
		}

		rep.SearchCount = n

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Divergence = max(abs(rep.CanonicalCount-rep.GraphCount), abs(rep.CanonicalCount-rep.SearchCount))
	rep.Diverged = rep.Divergence > a.threshold
	rep.CheckedAt = a.now().UTC()

	metrics.AuditDivergence.WithLabelValues(string(et)).Set(float64(rep.Divergence))

	fields := logrus.Fields{
		"entity_type": et,
		"canonical":   rep.CanonicalCount,
		"graph":       rep.GraphCount,
		"search":      rep.SearchCount,
		"divergence":  rep.Divergence,
	}

	if !rep.Diverged {
		a.log.WithFields(fields).Debug("audit consistent")
		return rep, nil
	}

	a.log.WithFields(fields).Warn("mirror divergence detected")

	if a.journal != nil {
		a.journal.Enqueue(&models.JournalEntry{
			Action:     models.JournalDivergence,
			EntityType: et,
			Detail: map[string]any{
				"canonical":  rep.CanonicalCount,
				"graph":      rep.GraphCount,
				"search":     rep.SearchCount,
				"divergence": rep.Divergence,
				"threshold":  rep.Threshold,
			},
		})
	}

	if a.notify != nil {
		a.notify(models.DivergenceDetected{Report: *rep})
	}

	return rep, nil
}

// AuditAll audits every entity type in priority order.
func (a *Auditor) AuditAll(ctx context.Context) ([]models.AuditReport, error) {
	out := make([]models.AuditReport, 0, len(models.EntityTypes))

	for _, et := range models.EntityTypes {
		rep, err := a.Audit(ctx, et)
		if err != nil {
			return nil, err
		}

		out = append(out, *rep)
	}

	return out, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}

	return n
}
