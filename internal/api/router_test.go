package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/persistorai/tracksync/internal/api"
	"github.com/persistorai/tracksync/internal/middleware"
	"github.com/persistorai/tracksync/internal/models"
)

func newFullRouter(t *testing.T) http.Handler {
	t.Helper()

	return api.NewRouter(t.Context(), &api.RouterDeps{
		Log: testLogger(),
		Sync: &mockSync{
			fullFn: func(_ context.Context, et models.EntityType) (*models.FullSyncResult, error) {
				return &models.FullSyncResult{EntityType: et}, nil
			},
			cursorsFn: func(context.Context) ([]models.SyncCursor, error) { return nil, nil },
		},
		Recommend: &mockRecommender{},
		Graph:     &mockGraph{},
		Search: &mockSearch{
			searchFn: func(context.Context, models.EntityType, string, map[string]string, int) ([]models.SearchHit, error) {
				return nil, nil
			},
		},
		Audit: &mockAuditor{
			auditAllFn: func(context.Context) ([]models.AuditReport, error) {
				return []models.AuditReport{{EntityType: models.EntitySong, Diverged: true}, {EntityType: models.EntityUser}}, nil
			},
		},
		Ledger:      &mockLedger{},
		Journal:     &mockJournal{},
		CORSOrigins: []string{"http://localhost:3002"},
		Version:     "test",
	})
}

func TestRouter_Routes(t *testing.T) {
	r := newFullRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/ready", http.StatusOK},
		{http.MethodGet, "/api/v1/sync/cursors", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/playlist/full", http.StatusOK},
		{http.MethodGet, "/api/v1/search/all?q=miles", http.StatusOK},
		{http.MethodGet, "/api/v1/search/song?q=miles", http.StatusOK},
		{http.MethodGet, "/api/v1/audit", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/nodes", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			assertStatus(t, doRequest(r, tc.method, tc.path, ""), tc.want)
		})
	}
}

func TestRouter_ErrorCarriesRequestID(t *testing.T) {
	r := newFullRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/sync/artist/full", "")
	assertStatus(t, w, http.StatusBadRequest)

	body := decode(t, w)
	if body["request_id"] == nil || body["request_id"] != w.Header().Get(middleware.RequestIDHeader) {
		t.Errorf("request_id = %v, header = %q", body["request_id"], w.Header().Get(middleware.RequestIDHeader))
	}
}

func TestRouter_AuditAllCountsDiverged(t *testing.T) {
	w := doRequest(newFullRouter(t), http.MethodGet, "/api/v1/audit", "")
	assertStatus(t, w, http.StatusOK)

	if decode(t, w)["diverged"] != float64(1) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestRouter_ThrottlesSyncTriggers(t *testing.T) {
	r := newFullRouter(t)

	var last int
	for range 5 {
		last = doRequest(r, http.MethodPost, "/api/v1/sync/song/full", "").Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}

	assertStatus(t, doRequest(r, http.MethodPost, "/api/v1/sync/user/full", ""), http.StatusOK)
}
