package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// fuzzyPenalty scales the boost of a term matched within edit distance.
const fuzzyPenalty = 0.5

// Search is an in-memory search backend. Scoring sums the field boost for
// every query term found in a field, with fuzzy matches at half weight.
type Search struct {
	mu   sync.RWMutex
	docs map[models.EntityType]map[string]models.SearchDocument
}

var _ domain.SearchIndex = (*Search)(nil)

// NewSearch creates an empty Search.
func NewSearch() *Search {
	return &Search{docs: make(map[models.EntityType]map[string]models.SearchDocument)}
}

// UpsertDocuments implements domain.SearchIndex.
func (s *Search) UpsertDocuments(_ context.Context, docs []models.SearchDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range docs {
		byID, ok := s.docs[d.EntityType]
		if !ok {
			byID = make(map[string]models.SearchDocument)
			s.docs[d.EntityType] = byID
		}

		fields := make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = v
		}

		d.Fields = fields
		byID[d.EntityID] = d
	}

	return nil
}

// DeleteDocument implements domain.SearchIndex.
func (s *Search) DeleteDocument(_ context.Context, et models.EntityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs[et], id)

	return nil
}

// ListDocumentIDs implements domain.SearchIndex.
func (s *Search) ListDocumentIDs(_ context.Context, et models.EntityType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs[et]))
	for id := range s.docs[et] {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// CountDocuments implements domain.SearchIndex.
func (s *Search) CountDocuments(_ context.Context, et models.EntityType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.docs[et])), nil
}

// Document returns a stored document.
func (s *Search) Document(et models.EntityType, id string) (models.SearchDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[et][id]

	return d, ok
}

// Search implements domain.SearchIndex.
func (s *Search) Search(_ context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	terms := tokenize(q.Text)
	if len(terms) == 0 {
		return []models.SearchHit{}, nil
	}

	fuzzy := len([]rune(strings.TrimSpace(q.Text))) >= models.MinFuzzyLength
	boosts := models.FieldBoosts[q.EntityType]

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]models.SearchHit, 0)

	for _, d := range s.docs[q.EntityType] {
		if !matchFilters(d, q.Filters) {
			continue
		}

		var score float64

		for field, boost := range boosts {
			tokens := tokenize(d.Fields[field])
			for _, term := range terms {
				score += boost * termScore(term, tokens, fuzzy)
			}
		}

		if score == 0 {
			continue
		}

		hits = append(hits, models.SearchHit{
			EntityType: d.EntityType,
			EntityID:   d.EntityID,
			Name:       d.Name,
			Score:      score,
			Fields:     d.Fields,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].EntityID < hits[j].EntityID
	})

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	return hits, nil
}

func termScore(term string, tokens []string, fuzzy bool) float64 {
	best := 0.0

	for _, tok := range tokens {
		if tok == term {
			return 1
		}

		if !fuzzy {
			continue
		}

		dist := models.FuzzyDistance(len([]rune(term)))
		if dist > 0 && levenshtein.ComputeDistance(term, tok) <= dist {
			best = fuzzyPenalty
		}
	}

	return best
}

func matchFilters(d models.SearchDocument, filters map[string]string) bool {
	for k, v := range filters {
		if !strings.EqualFold(d.Fields[k], v) {
			return false
		}
	}

	return true
}

// Autocomplete implements domain.SearchIndex. Every prefix token must start
// some name token; names that start with the whole prefix rank first.
func (s *Search) Autocomplete(_ context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error) {
	want := tokenize(prefix)
	if len(want) == 0 {
		return []models.Suggestion{}, nil
	}

	lower := strings.ToLower(strings.TrimSpace(prefix))

	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		models.Suggestion
		anchored bool
	}

	var out []ranked

	for _, d := range s.docs[et] {
		tokens := tokenize(d.Name)
		if !prefixMatch(want, tokens) {
			continue
		}

		out = append(out, ranked{
			Suggestion: models.Suggestion{EntityType: et, EntityID: d.EntityID, Text: d.Name},
			anchored:   strings.HasPrefix(strings.ToLower(d.Name), lower),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].anchored != out[j].anchored {
			return out[i].anchored
		}
		if out[i].Text != out[j].Text {
			return out[i].Text < out[j].Text
		}
		return out[i].EntityID < out[j].EntityID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	res := make([]models.Suggestion, len(out))
	for i, r := range out {
		res[i] = r.Suggestion
	}

	return res, nil
}

func prefixMatch(want, tokens []string) bool {
	for _, w := range want {
		found := false

		for _, t := range tokens {
			if strings.HasPrefix(t, w) {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Snapshot returns every document in a canonical textual form.
func (s *Search) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string

	for et, byID := range s.docs {
		for id, d := range byID {
			fields := make(map[string]any, len(d.Fields))
			for k, v := range d.Fields {
				fields[k] = v
			}

			out = append(out, string(et)+":"+id+" "+d.Name+" "+fmtAttrs(fields))
		}
	}

	sort.Strings(out)

	return out
}
