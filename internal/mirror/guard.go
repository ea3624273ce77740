package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// BreakerConfig tunes the circuit breaker in front of a mirror backend.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial calls allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// Guarded wraps a mirror with a circuit breaker. Only transient failures
// count against the breaker; an open breaker surfaces as a transient error
// so the caller's retry policy applies.
type Guarded struct {
	inner domain.Mirror
	cb    *gobreaker.CircuitBreaker[struct{}]
}

var (
	_ domain.Mirror         = (*Guarded)(nil)
	_ domain.EdgeReconciler = (*Guarded)(nil)
)

// NewGuarded wraps inner with a breaker named after the mirror.
func NewGuarded(inner domain.Mirror, cfg BreakerConfig, log *logrus.Logger) *Guarded {
	name := inner.Name()
	metrics.BreakerState.WithLabelValues(name).Set(0)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !models.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			log.WithFields(logrus.Fields{
				"mirror": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("mirror circuit breaker state changed")
		},
	}

	return &Guarded{inner: inner, cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// Unwrap returns the guarded mirror.
func (g *Guarded) Unwrap() domain.Mirror { return g.inner }

func (g *Guarded) exec(op string, fn func() error) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return models.Transient(g.inner.Name()+" "+op, err)
	}

	return err
}

// Name implements domain.Mirror.
func (g *Guarded) Name() string { return g.inner.Name() }

// Upsert implements domain.Mirror.
func (g *Guarded) Upsert(ctx context.Context, ent models.Entity) error {
	return g.exec("upsert", func() error { return g.inner.Upsert(ctx, ent) })
}

// Delete implements domain.Mirror.
func (g *Guarded) Delete(ctx context.Context, et models.EntityType, id string) error {
	return g.exec("delete", func() error { return g.inner.Delete(ctx, et, id) })
}

// BulkUpsert implements domain.Mirror.
func (g *Guarded) BulkUpsert(ctx context.Context, et models.EntityType, ents []models.Entity) error {
	return g.exec("bulk upsert", func() error { return g.inner.BulkUpsert(ctx, et, ents) })
}

// Prune implements domain.Mirror.
func (g *Guarded) Prune(ctx context.Context, et models.EntityType, keep map[string]struct{}) (int, error) {
	var n int

	err := g.exec("prune", func() error {
		var err error
		n, err = g.inner.Prune(ctx, et, keep)
		return err
	})

	return n, err
}

// Count implements domain.Mirror.
func (g *Guarded) Count(ctx context.Context, et models.EntityType) (int64, error) {
	var n int64

	err := g.exec("count", func() error {
		var err error
		n, err = g.inner.Count(ctx, et)
		return err
	})

	return n, err
}

// Reconcile implements domain.EdgeReconciler when the guarded mirror does.
func (g *Guarded) Reconcile(ctx context.Context, ent models.Entity) (models.EdgeDelta, error) {
	rec, ok := g.inner.(domain.EdgeReconciler)
	if !ok {
		return models.EdgeDelta{}, fmt.Errorf("mirror %s does not derive relationships", g.inner.Name())
	}

	var delta models.EdgeDelta

	err := g.exec("reconcile", func() error {
		var err error
		delta, err = rec.Reconcile(ctx, ent)
		return err
	})

	return delta, err
}
