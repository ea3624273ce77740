package api_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/tracksync/internal/api"
)

func TestLiveness_ReturnsOK(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(testLogger(), "test-v1")

	r := gin.New()
	r.GET("/health", h.Liveness)

	w := doRequest(r, http.MethodGet, "/health", "")
	assertStatus(t, w, http.StatusOK)

	body := decode(t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}

	if body["version"] != "test-v1" {
		t.Errorf("expected version 'test-v1', got %v", body["version"])
	}
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks []api.ReadinessCheck
		status int
		want   map[string]string
	}{
		{
			name:   "all ok",
			checks: []api.ReadinessCheck{{Name: "ledger", Required: true, Check: ok}, {Name: "graph", Check: ok}},
			status: http.StatusOK,
			want:   map[string]string{"ledger": "ok", "graph": "ok"},
		},
		{
			name:   "optional down is degraded",
			checks: []api.ReadinessCheck{{Name: "ledger", Required: true, Check: ok}, {Name: "graph", Check: down}},
			status: http.StatusOK,
			want:   map[string]string{"ledger": "ok", "graph": "degraded"},
		},
		{
			name:   "required down",
			checks: []api.ReadinessCheck{{Name: "ledger", Required: true, Check: down}},
			status: http.StatusServiceUnavailable,
			want:   map[string]string{"ledger": "error"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := api.NewHealthHandler(testLogger(), "v", tc.checks...)

			r := gin.New()
			r.GET("/ready", h.Readiness)

			w := doRequest(r, http.MethodGet, "/ready", "")
			assertStatus(t, w, tc.status)

			checks, _ := decode(t, w)["checks"].(map[string]any)
			for name, want := range tc.want {
				if checks[name] != want {
					t.Errorf("check %s = %v, want %s", name, checks[name], want)
				}
			}
		})
	}
}
