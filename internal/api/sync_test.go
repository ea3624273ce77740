package api_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/tracksync/internal/api"
	"github.com/persistorai/tracksync/internal/models"
)

func newSyncRouter(s *mockSync) *gin.Engine {
	h := api.NewSyncHandler(s, testLogger())

	r := gin.New()
	r.GET("/sync/cursors", h.Cursors)
	r.POST("/sync/:entity_type/full", h.Full)
	r.POST("/sync/:entity_type/incremental", h.Incremental)

	return r
}

func TestFullSync_OK(t *testing.T) {
	t.Parallel()

	s := &mockSync{
		fullFn: func(_ context.Context, et models.EntityType) (*models.FullSyncResult, error) {
			return &models.FullSyncResult{EntityType: et, Migrated: 3, Cursor: 9, Elapsed: 1500 * time.Millisecond}, nil
		},
	}

	w := doRequest(newSyncRouter(s), http.MethodPost, "/sync/songs/full", "")
	assertStatus(t, w, http.StatusOK)

	body := decode(t, w)
	if body["entity_type"] != "song" || body["migrated"] != float64(3) || body["elapsed_ms"] != float64(1500) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestIncrementalSync_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "lease held",
			err:    models.ErrLeaseHeld,
			status: http.StatusConflict,
			code:   api.ErrCodeLeaseHeld,
		},
		{
			name: "ordering violation",
			err: &models.SyncError{EntityType: models.EntitySong, Cursor: 4, Err: &models.OrderingViolationError{
				EntityType: models.EntitySong, Cursor: 4, Sequence: 3, Detail: "sequence not after cursor",
			}},
			status: http.StatusConflict,
			code:   api.ErrCodeOrderingViolation,
		},
		{
			name: "exhausted transient",
			err: &models.SyncError{EntityType: models.EntitySong, Mirror: models.MirrorSearch, Cursor: 12,
				Err: models.Transient("search bulk upsert", errors.New("dial tcp: refused"))},
			status: http.StatusServiceUnavailable,
			code:   api.ErrCodeUnavailable,
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   api.ErrCodeInternalError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := &mockSync{
				incFn: func(_ context.Context, et models.EntityType) (*models.IncrementalResult, error) {
					return &models.IncrementalResult{EntityType: et}, tc.err
				},
			}

			w := doRequest(newSyncRouter(s), http.MethodPost, "/sync/song/incremental", "")
			assertStatus(t, w, tc.status)

			body := decode(t, w)
			if body["code"] != tc.code {
				t.Errorf("code = %v, want %s", body["code"], tc.code)
			}
		})
	}
}

func TestIncrementalSync_FailureNamesCursorNotCause(t *testing.T) {
	t.Parallel()

	s := &mockSync{
		incFn: func(context.Context, models.EntityType) (*models.IncrementalResult, error) {
			return nil, &models.SyncError{EntityType: models.EntityAlbum, Mirror: models.MirrorGraph, Cursor: 41,
				Err: models.Transient("graph upsert", errors.New("password=hunter2 rejected"))}
		},
	}

	w := doRequest(newSyncRouter(s), http.MethodPost, "/sync/album/incremental", "")
	assertStatus(t, w, http.StatusServiceUnavailable)

	msg, _ := decode(t, w)["message"].(string)
	if !strings.Contains(msg, "album") || !strings.Contains(msg, "cursor 41") {
		t.Errorf("message %q should name entity type and cursor", msg)
	}

	if strings.Contains(msg, "hunter2") {
		t.Errorf("message leaked backend error: %q", msg)
	}

	if _, ok := decode(t, w)["detail"]; ok {
		t.Error("detail present without a result")
	}
}

func TestIncrementalSync_FailureReportsPartialCounts(t *testing.T) {
	t.Parallel()

	s := &mockSync{
		incFn: func(_ context.Context, et models.EntityType) (*models.IncrementalResult, error) {
			res := &models.IncrementalResult{EntityType: et, Applied: 500, Failed: 37, Batches: 1, CursorAfter: 500}
			return res, &models.SyncError{EntityType: et, Mirror: models.MirrorSearch, Cursor: 500,
				Err: models.Transient("search bulk upsert", errors.New("connection reset"))}
		},
	}

	w := doRequest(newSyncRouter(s), http.MethodPost, "/sync/song/incremental", "")
	assertStatus(t, w, http.StatusServiceUnavailable)

	body := decode(t, w)
	if body["code"] != api.ErrCodeUnavailable {
		t.Errorf("code = %v", body["code"])
	}

	detail, ok := body["detail"].(map[string]any)
	if !ok {
		t.Fatalf("detail missing from %v", body)
	}

	if detail["applied"] != float64(500) || detail["failed"] != float64(37) || detail["cursor_after"] != float64(500) {
		t.Errorf("detail = %v", detail)
	}
}

func TestSync_InvalidEntityType(t *testing.T) {
	t.Parallel()

	w := doRequest(newSyncRouter(&mockSync{}), http.MethodPost, "/sync/artists/full", "")
	assertStatus(t, w, http.StatusBadRequest)
}

func TestSyncCursors_OK(t *testing.T) {
	t.Parallel()

	s := &mockSync{
		cursorsFn: func(context.Context) ([]models.SyncCursor, error) {
			return []models.SyncCursor{{Mirror: models.MirrorGraph, EntityType: models.EntitySong, LastAppliedSequence: 7}}, nil
		},
	}

	w := doRequest(newSyncRouter(s), http.MethodGet, "/sync/cursors", "")
	assertStatus(t, w, http.StatusOK)

	if c, _ := decode(t, w)["cursors"].([]any); len(c) != 1 {
		t.Errorf("expected 1 cursor, got %v", c)
	}
}
