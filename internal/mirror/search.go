package mirror

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// maxSearchLimit caps result sizes regardless of caller input.
const maxSearchLimit = 100

// SearchMirror projects entities onto a search backend and answers queries.
type SearchMirror struct {
	index domain.SearchIndex
	log   *logrus.Logger
}

var _ domain.Mirror = (*SearchMirror)(nil)

// NewSearchMirror creates a SearchMirror over the given backend.
func NewSearchMirror(index domain.SearchIndex, log *logrus.Logger) *SearchMirror {
	return &SearchMirror{index: index, log: log}
}

// Name implements domain.Mirror.
func (m *SearchMirror) Name() string { return models.MirrorSearch }

// Upsert implements domain.Mirror.
func (m *SearchMirror) Upsert(ctx context.Context, ent models.Entity) error {
	if err := m.index.UpsertDocuments(ctx, []models.SearchDocument{Document(ent)}); err != nil {
		return fmt.Errorf("indexing %s %s: %w", ent.EntityType(), ent.EntityID(), err)
	}

	return nil
}

// Delete implements domain.Mirror.
func (m *SearchMirror) Delete(ctx context.Context, et models.EntityType, id string) error {
	if err := m.index.DeleteDocument(ctx, et, id); err != nil {
		return fmt.Errorf("deleting %s document %s: %w", et, id, err)
	}

	return nil
}

// BulkUpsert implements domain.Mirror.
func (m *SearchMirror) BulkUpsert(ctx context.Context, et models.EntityType, ents []models.Entity) error {
	if len(ents) == 0 {
		return nil
	}

	docs := make([]models.SearchDocument, len(ents))
	for i, ent := range ents {
		docs[i] = Document(ent)
	}

	if err := m.index.UpsertDocuments(ctx, docs); err != nil {
		return fmt.Errorf("bulk indexing %d %s documents: %w", len(docs), et, err)
	}

	return nil
}

// Prune implements domain.Mirror.
func (m *SearchMirror) Prune(ctx context.Context, et models.EntityType, keep map[string]struct{}) (int, error) {
	ids, err := m.index.ListDocumentIDs(ctx, et)
	if err != nil {
		return 0, fmt.Errorf("listing %s documents: %w", et, err)
	}

	pruned := 0

	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}

		if err := m.Delete(ctx, et, id); err != nil {
			return pruned, err
		}

		pruned++
	}

	return pruned, nil
}

// Count implements domain.Mirror.
func (m *SearchMirror) Count(ctx context.Context, et models.EntityType) (int64, error) {
	return m.index.CountDocuments(ctx, et)
}

// Search runs a ranked query against one entity type, or fans out to every
// type concurrently when et is models.EntityAll.
func (m *SearchMirror) Search(ctx context.Context, et models.EntityType, text string, filters map[string]string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	if et != models.EntityAll {
		hits, err := m.index.Search(ctx, models.SearchQuery{EntityType: et, Text: text, Filters: filters, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", et, err)
		}

		SortHits(hits)

		return hits, nil
	}

	results := make([][]models.SearchHit, len(models.EntityTypes))
	g, gctx := errgroup.WithContext(ctx)

	for i, t := range models.EntityTypes {
		g.Go(func() error {
			hits, err := m.index.Search(gctx, models.SearchQuery{EntityType: t, Text: text, Limit: limit})
			if err != nil {
				return fmt.Errorf("searching %s: %w", t, err)
			}

			results[i] = hits

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []models.SearchHit
	for _, hits := range results {
		merged = append(merged, hits...)
	}

	SortHits(merged)

	if len(merged) > limit {
		merged = merged[:limit]
	}

	m.log.WithFields(logrus.Fields{"query_len": len(text), "hits": len(merged)}).Debug("search fan-out merged")

	return merged, nil
}

// Autocomplete returns name suggestions for a prefix.
func (m *SearchMirror) Autocomplete(ctx context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error) {
	if len([]rune(prefix)) < models.MinPrefixLength {
		return []models.Suggestion{}, nil
	}

	if limit <= 0 || limit > maxSearchLimit {
		limit = 10
	}

	out, err := m.index.Autocomplete(ctx, et, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("autocomplete %s: %w", et, err)
	}

	return out, nil
}

// SortHits orders hits by descending score, then entity type priority, then id.
func SortHits(hits []models.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}

		if pa, pb := a.EntityType.Priority(), b.EntityType.Priority(); pa != pb {
			return pa < pb
		}

		return a.EntityID < b.EntityID
	})
}
