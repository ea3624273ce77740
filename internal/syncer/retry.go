package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

const (
	maxRetryDelay = 10 * time.Second
	retryJitter   = 25 // percent
)

// withRetry runs fn under a per-attempt deadline and retries transient
// failures with capped, jittered exponential backoff. A deadline hit inside
// an attempt counts as transient; cancellation of ctx itself does not.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fields logrus.Fields, fn func(ctx context.Context) error) error {
	b := retry.NewExponential(o.cfg.RetryBase)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	b = retry.WithJitterPercent(retryJitter, b)
	b = retry.WithMaxRetries(o.cfg.RetryAttempts-1, b)

	attempt := 0

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++

		actx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}

		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = models.Transient(op, err)
		}

		if !models.IsTransient(err) {
			return err
		}

		o.log.WithFields(fields).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).WithError(err).Warn("transient sync failure, backing off")

		return retry.RetryableError(err)
	})
}
