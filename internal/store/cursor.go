package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// CursorStore persists per (mirror, entity_type) sync cursors in sync_cursors.
type CursorStore struct {
	Base
}

var _ domain.CursorStore = (*CursorStore)(nil)

// NewCursorStore creates a CursorStore.
func NewCursorStore(base Base) *CursorStore {
	return &CursorStore{Base: base}
}

// Get returns the cursor, or a zero cursor when none has been stored.
func (s *CursorStore) Get(ctx context.Context, mirror string, et models.EntityType) (models.SyncCursor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	c := models.SyncCursor{Mirror: mirror, EntityType: et}

	err := s.Pool.QueryRow(ctx,
		"SELECT last_applied_sequence, updated_at FROM sync_cursors WHERE mirror = $1 AND entity_type = $2",
		mirror, et,
	).Scan(&c.LastAppliedSequence, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}

	if err != nil {
		return c, classify("reading cursor", err)
	}

	return c, nil
}

// List returns every stored cursor ordered by mirror then entity type.
func (s *CursorStore) List(ctx context.Context) ([]models.SyncCursor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		"SELECT mirror, entity_type, last_applied_sequence, updated_at FROM sync_cursors ORDER BY mirror, entity_type")
	if err != nil {
		return nil, classify("listing cursors", err)
	}
	defer rows.Close()

	out := []models.SyncCursor{}

	for rows.Next() {
		var c models.SyncCursor
		if err := rows.Scan(&c.Mirror, &c.EntityType, &c.LastAppliedSequence, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cursor: %w", err)
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterating cursors", err)
	}

	return out, nil
}

// Advance moves the named cursors to seq in one transaction. Moving any of
// them backwards is an ordering violation and nothing is written.
func (s *CursorStore) Advance(ctx context.Context, et models.EntityType, seq int64, mirrors ...string) error {
	return s.write(ctx, et, seq, mirrors, true)
}

// Reset sets the named cursors to seq unconditionally. Only full sync uses it.
func (s *CursorStore) Reset(ctx context.Context, et models.EntityType, seq int64, mirrors ...string) error {
	return s.write(ctx, et, seq, mirrors, false)
}

func (s *CursorStore) write(ctx context.Context, et models.EntityType, seq int64, mirrors []string, forward bool) error {
	if len(mirrors) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	for _, m := range mirrors {
		if forward {
			var cur int64

			err := tx.QueryRow(ctx,
				"SELECT last_applied_sequence FROM sync_cursors WHERE mirror = $1 AND entity_type = $2 FOR UPDATE",
				m, et,
			).Scan(&cur)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return classify("locking cursor", err)
			}

			if cur > seq {
				return &models.OrderingViolationError{
					EntityType: et, Cursor: cur, Sequence: seq,
					Detail: "cursor for " + m + " would move backwards",
				}
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO sync_cursors (mirror, entity_type, last_applied_sequence, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (mirror, entity_type)
			DO UPDATE SET last_applied_sequence = EXCLUDED.last_applied_sequence, updated_at = NOW()`,
			m, et, seq,
		)
		if err != nil {
			return classify("writing cursor", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("committing cursors", err)
	}

	return nil
}

// LeaseStore grants per entity_type sync leases as session advisory locks.
// A lease pins one pooled connection until it is released, and is dropped
// by the server if that connection dies.
type LeaseStore struct {
	Base
}

var _ domain.Leaser = (*LeaseStore)(nil)

// NewLeaseStore creates a LeaseStore.
func NewLeaseStore(base Base) *LeaseStore {
	return &LeaseStore{Base: base}
}

func leaseKey(et models.EntityType) string { return "tracksync:lease:" + string(et) }

// Acquire takes the lease for et without waiting. It returns
// models.ErrLeaseHeld when another task holds it.
func (s *LeaseStore) Acquire(ctx context.Context, et models.EntityType) (func(), error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, classify("acquiring lease connection", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", leaseKey(et)).Scan(&ok); err != nil {
		conn.Release()
		return nil, classify("taking lease", err)
	}

	if !ok {
		conn.Release()
		return nil, models.ErrLeaseHeld
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			uctx, ucancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer ucancel()

			if _, err := conn.Exec(uctx, "SELECT pg_advisory_unlock(hashtext($1))", leaseKey(et)); err != nil {
				// The lock dies with the session; drop the connection instead of pooling it.
				s.Log.WithError(err).WithField("entity_type", et).Warn("releasing lease failed, closing connection")
				_ = conn.Conn().Close(uctx)
			}

			conn.Release()
		})
	}, nil
}
