// Package store provides the PostgreSQL stores behind the change ledger,
// sync cursors and leases, the sync journal, and the Postgres graph and
// search backends.
//
// Each store owns one table family and embeds shared helpers via Base.
// Stores never import each other.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/dbpool"
	"github.com/persistorai/tracksync/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// maxListLimit caps limit values for list queries.
const maxListLimit = 1000

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// withTimeout bounds ctx by the default query timeout unless the caller
// already set a tighter deadline.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// beginTx starts a read-write transaction.
func (b *Base) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, classify("beginning transaction", err)
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction.
func (b *Base) beginReadTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify("beginning read transaction", err)
	}

	return tx, nil
}

// notify sends a pg_notify on channel (best-effort, post-commit).
func (b *Base) notify(channel, payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.Pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload); err != nil {
		b.Log.WithError(err).WithField("channel", channel).Warn("failed to send notification")
	}
}

// classify wraps err with op and marks connectivity failures and timeouts
// as transient so the sync retry policy applies to them.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
		pgErr   *pgconn.PgError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		errors.As(err, &connErr),
		errors.As(err, &netErr):
		return models.Transient(op, err)
	case errors.As(err, &pgErr):
		// Class 08 is connection exceptions, 40001/40P01 are serialization
		// failures and deadlocks, 57P01 is admin shutdown.
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" ||
			pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "57P01" {
			return models.Transient(op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// nullTime maps the zero time to NULL so column defaults apply.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
