package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/dbpool"
	"github.com/persistorai/tracksync/internal/models"
)

// validChannel matches safe PostgreSQL LISTEN channel names.
var validChannel = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LedgerChannel is the NOTIFY channel the ledger store publishes appends on.
const LedgerChannel = "ledger_appended"

const (
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// AppendHandler reacts to a committed ledger append.
type AppendHandler interface {
	LedgerAppended(et models.EntityType, sequence int64)
}

// LedgerWatcher subscribes to ledger append notifications and hands each
// one to an AppendHandler. Notifications are hints: a missed one only delays
// the next incremental sync, it never loses data.
type LedgerWatcher struct {
	log     *logrus.Logger
	pool    *dbpool.Pool
	handler AppendHandler
}

// NewLedgerWatcher creates a LedgerWatcher wired to the given pool and handler.
func NewLedgerWatcher(log *logrus.Logger, pool *dbpool.Pool, handler AppendHandler) *LedgerWatcher {
	return &LedgerWatcher{
		log:     log,
		pool:    pool,
		handler: handler,
	}
}

// Start verifies the database is reachable, then runs the LISTEN loop in a
// background goroutine that reconnects with backoff until ctx is cancelled.
func (w *LedgerWatcher) Start(ctx context.Context) error {
	if !validChannel.MatchString(LedgerChannel) {
		return fmt.Errorf("ledger watcher: invalid channel name %q", LedgerChannel)
	}

	if err := w.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ledger watcher: database not reachable: %w", err)
	}

	go w.listen(ctx)

	return nil
}

func (w *LedgerWatcher) listen(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		err := w.subscribe(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		w.log.WithError(err).WithField("retry_in", backoff).
			Warn("ledger watcher connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

// subscribe holds one connection in LISTEN until it fails or ctx ends.
func (w *LedgerWatcher) subscribe(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	// LISTEN takes the channel inline, not as a parameter.
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{LedgerChannel}.Sanitize()); err != nil {
		return fmt.Errorf("executing LISTEN: %w", err)
	}

	w.log.WithField("channel", LedgerChannel).Info("ledger watcher listening")

	for {
		// Periodic read deadline so ctx cancellation is noticed.
		if err := conn.Conn().PgConn().Conn().SetReadDeadline(time.Now().Add(2 * time.Minute)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		w.handle(notification)
	}
}

// ledgerNotice is the NOTIFY payload written by the ledger store.
type ledgerNotice struct {
	EntityType models.EntityType `json:"entity_type"`
	Sequence   int64             `json:"sequence"`
}

func (w *LedgerWatcher) handle(n *pgconn.Notification) {
	var notice ledgerNotice
	if err := json.Unmarshal([]byte(n.Payload), &notice); err != nil || !notice.EntityType.Valid() {
		w.log.WithField("payload", n.Payload).Warn("dropping malformed ledger notification")
		return
	}

	w.log.WithFields(logrus.Fields{
		"entity_type": notice.EntityType,
		"sequence":    notice.Sequence,
		"pid":         n.PID,
	}).Debug("ledger append notification")

	w.handler.LedgerAppended(notice.EntityType, notice.Sequence)
}

// NoticePayload encodes the NOTIFY payload for one append.
func NoticePayload(et models.EntityType, sequence int64) string {
	b, _ := json.Marshal(ledgerNotice{EntityType: et, Sequence: sequence}) //nolint:errcheck // plain struct, cannot fail.
	return string(b)
}

// nextBackoff doubles the current backoff with ±25% jitter, capped at maxBackoff.
func nextBackoff(current time.Duration) time.Duration {
	next := min(current*backoffMultiplier, maxBackoff)

	jitter := float64(next) * (0.75 + rand.Float64()*0.5) //nolint:gosec // jitter doesn't need crypto rand.

	return time.Duration(jitter)
}
