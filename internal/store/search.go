package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// maxBulkBatchSize caps documents per upsert transaction.
const maxBulkBatchSize = 500

// SearchStore is the Postgres full-text backend over search_documents.
// Field boosts map onto tsvector weights A to D; fuzzy matching uses pg_trgm
// word similarity over the concatenated field text.
type SearchStore struct {
	Base
}

var _ domain.SearchIndex = (*SearchStore)(nil)

// NewSearchStore creates a SearchStore.
func NewSearchStore(base Base) *SearchStore {
	return &SearchStore{Base: base}
}

// weightClass maps a field boost onto a tsvector weight label index (A=0).
func weightClass(boost float64) int {
	switch {
	case boost >= 3:
		return 0
	case boost >= 2:
		return 1
	case boost >= 1:
		return 2
	default:
		return 3
	}
}

// weightedText groups a document's field values by weight class. Keys are
// visited in sorted order so the stored vector is deterministic.
func weightedText(d models.SearchDocument) (classes [4]string, all string) {
	boosts := models.FieldBoosts[d.EntityType]

	keys := slices.Sorted(maps.Keys(d.Fields))

	var (
		parts [4][]string
		every []string
	)

	for _, k := range keys {
		v := d.Fields[k]
		if v == "" {
			continue
		}

		c := weightClass(boosts[k])
		parts[c] = append(parts[c], v)
		every = append(every, v)
	}

	for i := range parts {
		classes[i] = strings.Join(parts[i], " ")
	}

	return classes, strings.ToLower(strings.Join(every, " "))
}

const upsertDocumentSQL = `
	INSERT INTO search_documents
		(entity_type, entity_id, name, fields, search_text, document, name_document, sequence, updated_at)
	VALUES ($1, $2, $3, $4, $5,
		setweight(to_tsvector('simple', $6), 'A') ||
		setweight(to_tsvector('simple', $7), 'B') ||
		setweight(to_tsvector('simple', $8), 'C') ||
		setweight(to_tsvector('simple', $9), 'D'),
		to_tsvector('simple', $3), $10, NOW())
	ON CONFLICT (entity_type, entity_id) DO UPDATE SET
		name = EXCLUDED.name,
		fields = EXCLUDED.fields,
		search_text = EXCLUDED.search_text,
		document = EXCLUDED.document,
		name_document = EXCLUDED.name_document,
		sequence = EXCLUDED.sequence,
		updated_at = NOW()`

// UpsertDocuments replaces documents in batches, one transaction per batch.
func (s *SearchStore) UpsertDocuments(ctx context.Context, docs []models.SearchDocument) error {
	for start := 0; start < len(docs); start += maxBulkBatchSize {
		end := min(start+maxBulkBatchSize, len(docs))

		if err := s.upsertBatch(ctx, docs[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (s *SearchStore) upsertBatch(ctx context.Context, docs []models.SearchDocument) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	batch := &pgx.Batch{}

	for _, d := range docs {
		fields := d.Fields
		if fields == nil {
			fields = map[string]string{}
		}

		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("marshaling fields of %s %s: %w", d.EntityType, d.EntityID, err)
		}

		classes, all := weightedText(d)

		batch.Queue(upsertDocumentSQL,
			d.EntityType, d.EntityID, d.Name, fieldsJSON, all,
			classes[0], classes[1], classes[2], classes[3], d.Sequence,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify(fmt.Sprintf("upserting %d documents", len(docs)), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("committing documents", err)
	}

	return nil
}

// DeleteDocument removes one document if present.
func (s *SearchStore) DeleteDocument(ctx context.Context, et models.EntityType, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := s.Pool.Exec(ctx,
		"DELETE FROM search_documents WHERE entity_type = $1 AND entity_id = $2", et, id); err != nil {
		return classify("deleting document", err)
	}

	return nil
}

// ListDocumentIDs returns every document id of et in id order.
func (s *SearchStore) ListDocumentIDs(ctx context.Context, et models.EntityType) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		"SELECT entity_id FROM search_documents WHERE entity_type = $1 ORDER BY entity_id", et)
	if err != nil {
		return nil, classify("listing documents", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify("collecting document ids", err)
	}

	return ids, nil
}

// CountDocuments counts documents of et.
func (s *SearchStore) CountDocuments(ctx context.Context, et models.EntityType) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM search_documents WHERE entity_type = $1", et).Scan(&n); err != nil {
		return 0, classify("counting documents", err)
	}

	return n, nil
}

// Search ranks documents of q.EntityType by weighted full-text rank. Queries
// of models.MinFuzzyLength or more runes also match by trigram similarity.
func (s *SearchStore) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if len(searchTokens(text)) == 0 {
		return []models.SearchHit{}, nil
	}

	fuzzy := len([]rune(text)) >= models.MinFuzzyLength

	limit := q.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	args := []any{q.EntityType, text, fuzzy}
	argIdx := 4

	var filters []string

	for _, k := range slices.Sorted(maps.Keys(q.Filters)) {
		filters = append(filters, fmt.Sprintf("lower(fields->>$%d) = lower($%d)", argIdx, argIdx+1))
		args = append(args, k, q.Filters[k])
		argIdx += 2
	}

	filterSQL := ""
	if len(filters) > 0 {
		filterSQL = " AND " + strings.Join(filters, " AND ")
	}

	query := `
		SELECT entity_id, name, fields,
			(ts_rank(document, plainto_tsquery('simple', $2))
			+ CASE WHEN $3::boolean THEN 0.5 * word_similarity($2, search_text) ELSE 0 END)::float8 AS score
		FROM search_documents
		WHERE entity_type = $1
			AND (document @@ plainto_tsquery('simple', $2) OR ($3::boolean AND $2 <% search_text))` +
		filterSQL + `
		ORDER BY score DESC, entity_id
		LIMIT $` + strconv.Itoa(argIdx)
	args = append(args, limit)

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("searching "+string(q.EntityType), err)
	}
	defer rows.Close()

	hits := []models.SearchHit{}

	for rows.Next() {
		var (
			h          = models.SearchHit{EntityType: q.EntityType}
			fieldsJSON []byte
		)

		if err := rows.Scan(&h.EntityID, &h.Name, &fieldsJSON, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}

		if err := json.Unmarshal(fieldsJSON, &h.Fields); err != nil {
			return nil, fmt.Errorf("decoding fields of %s: %w", h.EntityID, err)
		}

		hits = append(hits, h)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterating search hits", err)
	}

	return hits, nil
}

// Autocomplete matches every prefix token against name tokens. Names that
// start with the whole prefix rank first, then by name and id.
func (s *SearchStore) Autocomplete(ctx context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error) {
	tokens := searchTokens(prefix)
	if len(tokens) == 0 {
		return []models.Suggestion{}, nil
	}

	for i, t := range tokens {
		tokens[i] = t + ":*"
	}

	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		SELECT entity_id, name
		FROM search_documents
		WHERE entity_type = $1 AND name_document @@ to_tsquery('simple', $2)
		ORDER BY starts_with(lower(name), $3) DESC, name, entity_id
		LIMIT $4`,
		et, strings.Join(tokens, " & "), strings.ToLower(strings.TrimSpace(prefix)), limit,
	)
	if err != nil {
		return nil, classify("autocompleting "+string(et), err)
	}
	defer rows.Close()

	out := []models.Suggestion{}

	for rows.Next() {
		sg := models.Suggestion{EntityType: et}
		if err := rows.Scan(&sg.EntityID, &sg.Text); err != nil {
			return nil, fmt.Errorf("scanning suggestion: %w", err)
		}

		out = append(out, sg)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterating suggestions", err)
	}

	return out, nil
}

// searchTokens lowercases s and keeps runs of letters and digits, which are
// safe to splice into a tsquery.
func searchTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
