package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/tracksync/internal/api"
	"github.com/persistorai/tracksync/internal/models"
)

func newLedgerRouter(repo *mockLedger) *gin.Engine {
	h := api.NewLedgerHandler(repo, testLogger())

	r := gin.New()
	r.POST("/ledger", h.Append)
	r.GET("/ledger/entries", h.Entries)
	r.GET("/ledger/entity/:entity_type/:entity_id", h.Entity)
	r.GET("/ledger/search", h.Search)

	return r
}

func TestLedgerAppend_Created(t *testing.T) {
	t.Parallel()

	repo := &mockLedger{
		appendFn: func(_ context.Context, e models.ChangeLogEntry) (*models.ChangeLogEntry, error) {
			if e.EntityType != models.EntitySong || e.Operation != models.OpCreate {
				t.Errorf("appended %+v", e)
			}
			e.Sequence = 42
			return &e, nil
		},
	}

	body := `{"entity_type":"songs","entity_id":"s1","operation":"create","payload":{"name":"Blue Train"}}`

	w := doRequest(newLedgerRouter(repo), http.MethodPost, "/ledger", body)
	assertStatus(t, w, http.StatusCreated)

	got := decode(t, w)
	if got["sequence"] != float64(42) || got["operation"] != "CREATE" {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestLedgerAppend_Rejects(t *testing.T) {
	t.Parallel()

	r := newLedgerRouter(&mockLedger{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown operation", `{"entity_type":"song","entity_id":"s1","operation":"UPSERT","payload":{}}`},
		{"unknown entity type", `{"entity_type":"artist","entity_id":"a1","operation":"DELETE"}`},
		{"update without payload", `{"entity_type":"song","entity_id":"s1","operation":"UPDATE"}`},
		{"missing id", `{"entity_type":"song","operation":"DELETE"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertStatus(t, doRequest(r, http.MethodPost, "/ledger", tc.body), http.StatusBadRequest)
		})
	}
}

func TestLedgerEntries_Paging(t *testing.T) {
	t.Parallel()

	repo := &mockLedger{
		readFromFn: func(_ context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error) {
			if et != models.EntityAlbum || after != 5 || limit != 2 {
				t.Errorf("ReadFrom(%s, %d, %d)", et, after, limit)
			}
			return []models.ChangeLogEntry{{Sequence: 6}, {Sequence: 9}}, nil
		},
	}

	w := doRequest(newLedgerRouter(repo), http.MethodGet, "/ledger/entries?entity_type=album&after=5&limit=2", "")
	assertStatus(t, w, http.StatusOK)

	body := decode(t, w)
	if body["next"] != float64(9) || body["has_more"] != true {
		t.Errorf("unexpected paging: %v", body)
	}

	assertStatus(t, doRequest(newLedgerRouter(repo), http.MethodGet, "/ledger/entries?entity_type=album&after=-1", ""), http.StatusBadRequest)
	assertStatus(t, doRequest(newLedgerRouter(repo), http.MethodGet, "/ledger/entries", ""), http.StatusBadRequest)
}

func TestLedgerEntity_NotFoundWhenEmpty(t *testing.T) {
	t.Parallel()

	repo := &mockLedger{
		historyFn: func(context.Context, models.EntityType, string) ([]models.ChangeLogEntry, error) {
			return nil, nil
		},
	}

	assertStatus(t, doRequest(newLedgerRouter(repo), http.MethodGet, "/ledger/entity/user/u1", ""), http.StatusNotFound)
}

func TestLedgerSearch_Filters(t *testing.T) {
	t.Parallel()

	var got models.LedgerQuery

	repo := &mockLedger{
		queryFn: func(_ context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error) {
			got = q
			return []models.ChangeLogEntry{}, nil
		},
	}

	r := newLedgerRouter(repo)

	w := doRequest(r, http.MethodGet, "/ledger/search?operation=delete&from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z", "")
	assertStatus(t, w, http.StatusOK)

	if got.Operation != models.OpDelete || got.From == nil || !got.From.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("query = %+v", got)
	}

	assertStatus(t, doRequest(r, http.MethodGet, "/ledger/search?from=yesterday", ""), http.StatusBadRequest)
	assertStatus(t, doRequest(r, http.MethodGet, "/ledger/search?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z", ""), http.StatusBadRequest)
}
