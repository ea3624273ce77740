package api_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/tracksync/internal/api"
	"github.com/persistorai/tracksync/internal/models"
)

func newSearchRouter(repo *mockSearch) *gin.Engine {
	h := api.NewSearchHandler(repo, testLogger())

	r := gin.New()
	r.GET("/search/all", h.All)
	r.GET("/search/:entity_type", h.ByType)
	r.GET("/search/:entity_type/autocomplete", h.Autocomplete)

	return r
}

func TestSearchAll_FansOut(t *testing.T) {
	t.Parallel()

	var gotType models.EntityType
	var gotLimit int

	repo := &mockSearch{
		searchFn: func(_ context.Context, et models.EntityType, text string, _ map[string]string, limit int) ([]models.SearchHit, error) {
			gotType, gotLimit = et, limit
			return []models.SearchHit{{EntityType: models.EntitySong, EntityID: "s1", Name: text, Score: 2}}, nil
		},
	}

	w := doRequest(newSearchRouter(repo), http.MethodGet, "/search/all?q=blue&size=5", "")
	assertStatus(t, w, http.StatusOK)

	if gotType != models.EntityAll || gotLimit != 5 {
		t.Errorf("search called with %q/%d, want all/5", gotType, gotLimit)
	}

	if hits, _ := decode(t, w)["hits"].([]any); len(hits) != 1 {
		t.Errorf("expected 1 hit, got %v", hits)
	}
}

func TestSearchByType_FieldFilters(t *testing.T) {
	t.Parallel()

	var got map[string]string

	repo := &mockSearch{
		searchFn: func(_ context.Context, et models.EntityType, _ string, filters map[string]string, _ int) ([]models.SearchHit, error) {
			if et != models.EntitySong {
				t.Errorf("entity type = %q", et)
			}
			got = filters
			return []models.SearchHit{}, nil
		},
	}

	w := doRequest(newSearchRouter(repo), http.MethodGet, "/search/songs?q=train&genre=jazz&size=3", "")
	assertStatus(t, w, http.StatusOK)

	if len(got) != 1 || got["genre"] != "jazz" {
		t.Errorf("filters = %v, want genre=jazz only", got)
	}
}

func TestSearch_BadInput(t *testing.T) {
	t.Parallel()

	r := newSearchRouter(&mockSearch{})

	tests := []struct {
		name string
		path string
	}{
		{"missing q", "/search/all"},
		{"unknown type", "/search/podcast?q=x"},
		{"query too long", "/search/song?q=" + strings.Repeat("a", 2001)},
		{"autocomplete unknown type", "/search/artist/autocomplete?q=ab"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertStatus(t, doRequest(r, http.MethodGet, tc.path, ""), http.StatusBadRequest)
		})
	}
}

func TestAutocomplete_OK(t *testing.T) {
	t.Parallel()

	repo := &mockSearch{
		autocompleteFn: func(_ context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error) {
			if prefix != "blu" || limit != 10 {
				t.Errorf("autocomplete(%q, %d)", prefix, limit)
			}
			return []models.Suggestion{{EntityType: et, EntityID: "s1", Text: "Blue Train"}}, nil
		},
	}

	w := doRequest(newSearchRouter(repo), http.MethodGet, "/search/song/autocomplete?q=blu", "")
	assertStatus(t, w, http.StatusOK)

	if s, _ := decode(t, w)["suggestions"].([]any); len(s) != 1 {
		t.Errorf("expected 1 suggestion, got %v", s)
	}
}

func TestSearch_BackendUnavailable(t *testing.T) {
	t.Parallel()

	repo := &mockSearch{
		searchFn: func(context.Context, models.EntityType, string, map[string]string, int) ([]models.SearchHit, error) {
			return nil, models.Transient("search query", errors.New("connection reset"))
		},
	}

	w := doRequest(newSearchRouter(repo), http.MethodGet, "/search/album?q=kind", "")
	assertStatus(t, w, http.StatusServiceUnavailable)

	if body := decode(t, w); body["code"] != api.ErrCodeUnavailable {
		t.Errorf("code = %v", body["code"])
	}
}
