package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/tracksync/internal/db"
	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

const ledgerColumns = `sequence, entity_type, entity_id, operation, payload, recorded_at`

// ledgerAppendLock serializes appends so sequences become visible in commit order.
const ledgerAppendLock = "tracksync:ledger"

// LedgerStore is the append-only change ledger in the change_log table.
type LedgerStore struct {
	Base
}

var (
	_ domain.Ledger        = (*LedgerStore)(nil)
	_ domain.LedgerBrowser = (*LedgerStore)(nil)
)

// NewLedgerStore creates a LedgerStore.
func NewLedgerStore(base Base) *LedgerStore {
	return &LedgerStore{Base: base}
}

// Append validates and persists entry, returning its assigned sequence.
// Watchers are notified after commit.
func (s *LedgerStore) Append(ctx context.Context, entry models.ChangeLogEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("validating ledger entry: %w", err)
	}

	payload, err := entry.PayloadJSON()
	if err != nil {
		return 0, fmt.Errorf("marshaling ledger payload: %w", err)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", ledgerAppendLock); err != nil {
		return 0, classify("locking ledger", err)
	}

	var seq int64

	err = tx.QueryRow(ctx, `
		INSERT INTO change_log (entity_type, entity_id, operation, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING sequence`,
		entry.EntityType, entry.EntityID, int16(entry.Operation), payload,
	).Scan(&seq)
	if err != nil {
		return 0, classify("appending ledger entry", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify("committing ledger entry", err)
	}

	s.notify(db.LedgerChannel, db.NoticePayload(entry.EntityType, seq))

	return seq, nil
}

// ReadFrom returns up to limit entries of et with sequence > after, ascending.
func (s *LedgerStore) ReadFrom(ctx context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM change_log
		WHERE entity_type = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3`,
		et, after, limit,
	)
	if err != nil {
		return nil, classify("reading ledger", err)
	}

	return collectEntries(rows)
}

// ReadByEntity returns every entry for one entity, ascending.
func (s *LedgerStore) ReadByEntity(ctx context.Context, et models.EntityType, id string) ([]models.ChangeLogEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM change_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY sequence`,
		et, id,
	)
	if err != nil {
		return nil, classify("reading entity history", err)
	}

	return collectEntries(rows)
}

// MaxSequence returns the highest assigned sequence, or 0 when empty.
func (s *LedgerStore) MaxSequence(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var seq int64
	if err := s.Pool.QueryRow(ctx, "SELECT COALESCE(MAX(sequence), 0) FROM change_log").Scan(&seq); err != nil {
		return 0, classify("reading ledger head", err)
	}

	return seq, nil
}

// buildLedgerFilter builds the WHERE clause and args for a LedgerQuery.
func buildLedgerFilter(q models.LedgerQuery) (where string, args []any, nextArg int) {
	var conditions []string
	argIdx := 1

	if q.EntityType != "" {
		conditions = append(conditions, "entity_type = $"+strconv.Itoa(argIdx))
		args = append(args, q.EntityType)
		argIdx++
	}
	if q.Operation != 0 {
		conditions = append(conditions, "operation = $"+strconv.Itoa(argIdx))
		args = append(args, int16(q.Operation))
		argIdx++
	}
	if q.From != nil {
		conditions = append(conditions, "recorded_at >= $"+strconv.Itoa(argIdx))
		args = append(args, *q.From)
		argIdx++
	}
	if q.To != nil {
		conditions = append(conditions, "recorded_at <= $"+strconv.Itoa(argIdx))
		args = append(args, *q.To)
		argIdx++
	}

	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	return where, args, argIdx
}

// Query returns ledger entries matching q, newest first.
func (s *LedgerStore) Query(ctx context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	limit = min(limit, maxListLimit)

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only.

	where, args, argIdx := buildLedgerFilter(q)
	query := fmt.Sprintf("SELECT %s FROM change_log %s ORDER BY sequence DESC LIMIT $%d", ledgerColumns, where, argIdx)
	args = append(args, limit)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("querying ledger", err)
	}

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]models.ChangeLogEntry, error) {
	defer rows.Close()

	entries := []models.ChangeLogEntry{}

	for rows.Next() {
		var (
			e       models.ChangeLogEntry
			op      int16
			payload []byte
		)

		if err := rows.Scan(&e.Sequence, &e.EntityType, &e.EntityID, &op, &payload, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}

		e.Operation = models.Operation(op)

		if payload != nil {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decoding payload of sequence %d: %w", e.Sequence, err)
			}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterating ledger rows", err)
	}

	return entries, nil
}
