package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

// JournalStore provides data access for the sync_journal table.
type JournalStore struct {
	Base
}

// NewJournalStore creates a JournalStore.
func NewJournalStore(base Base) *JournalStore {
	return &JournalStore{Base: base}
}

// Record inserts a journal entry.
func (s *JournalStore) Record(ctx context.Context, e *models.JournalEntry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		detailJSON []byte
		err        error
	)

	if e.Detail != nil {
		detailJSON, err = json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling journal detail: %w", err)
		}
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO sync_journal (run_id, action, entity_type, entity_id, mirror, sequence, detail)
		VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
		e.RunID, e.Action, e.EntityType, e.EntityID, e.Mirror, e.Sequence, detailJSON,
	)
	if err != nil {
		return classify("inserting journal entry", err)
	}

	return nil
}

// buildJournalFilter builds WHERE clause and args from JournalQueryOpts.
func buildJournalFilter(opts models.JournalQueryOpts) (where string, args []any, nextArg int) {
	var conditions []string
	argIdx := 1

	if opts.EntityType != "" {
		conditions = append(conditions, "entity_type = $"+strconv.Itoa(argIdx))
		args = append(args, opts.EntityType)
		argIdx++
	}
	if opts.Action != "" {
		conditions = append(conditions, "action = $"+strconv.Itoa(argIdx))
		args = append(args, opts.Action)
		argIdx++
	}
	if opts.RunID != "" {
		conditions = append(conditions, "run_id = $"+strconv.Itoa(argIdx))
		args = append(args, opts.RunID)
		argIdx++
	}
	if opts.Since != nil {
		conditions = append(conditions, "created_at >= $"+strconv.Itoa(argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}

	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	return where, args, argIdx
}

// Query returns journal entries matching the given filters, newest first.
// Returns entries, hasMore flag, and any error.
func (s *JournalStore) Query(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only.

	where, args, argIdx := buildJournalFilter(opts)

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	limit = min(limit, maxListLimit)

	query := fmt.Sprintf(
		`SELECT id, COALESCE(run_id, ''), action, entity_type, COALESCE(entity_id, ''), COALESCE(mirror, ''),
			sequence, detail, created_at
		FROM sync_journal %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1,
	)
	args = append(args, limit+1, opts.Offset)

	entries, err := scanJournalRows(ctx, tx, query, args, s.Log)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	return entries, hasMore, nil
}

func scanJournalRows(ctx context.Context, tx pgx.Tx, query string, args []any, log *logrus.Logger) ([]models.JournalEntry, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("querying sync journal", err)
	}
	defer rows.Close()

	entries := []models.JournalEntry{}

	for rows.Next() {
		var (
			e          models.JournalEntry
			detailJSON []byte
		)

		if err := rows.Scan(&e.ID, &e.RunID, &e.Action, &e.EntityType, &e.EntityID, &e.Mirror,
			&e.Sequence, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				log.WithError(err).Warn("failed to unmarshal journal detail")
			}
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// purgeBatchSize limits the rows deleted per transaction to avoid holding
// long locks on sync_journal.
const purgeBatchSize = 5000

// PurgeOldEntries deletes journal entries older than retentionDays in
// batches and returns the number deleted.
func (s *JournalStore) PurgeOldEntries(ctx context.Context, retentionDays int) (int, error) {
	var total int

	for {
		batchCtx, cancel := withTimeout(ctx)

		tag, err := s.Pool.Exec(batchCtx,
			`DELETE FROM sync_journal WHERE id IN (
				SELECT id FROM sync_journal
				WHERE created_at < NOW() - make_interval(days => $1)
				LIMIT $2
			)`,
			retentionDays, purgeBatchSize,
		)
		cancel()

		if err != nil {
			return total, classify("purging journal entries", err)
		}

		deleted := int(tag.RowsAffected())
		total += deleted

		if deleted < purgeBatchSize {
			return total, nil
		}
	}
}
