package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/middleware"
)

func TestRequestMetrics_CountsByRouteAndEntityType(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestMetrics())
	r.POST("/sync/:entity_type/full", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	songs := metrics.EntityRequestsTotal.WithLabelValues("song", http.MethodPost, "202")
	route := metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/sync/:entity_type/full", "202")
	unmatched := metrics.RequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")

	songsBefore := testutil.ToFloat64(songs)
	routeBefore := testutil.ToFloat64(route)
	unmatchedBefore := testutil.ToFloat64(unmatched)

	for _, path := range []string{"/sync/songs/full", "/sync/Song/full", "/sync/podcast/full"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, http.NoBody))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))

	if got := testutil.ToFloat64(songs) - songsBefore; got != 2 {
		t.Errorf("song requests = %v, want 2", got)
	}

	if got := testutil.ToFloat64(route) - routeBefore; got != 3 {
		t.Errorf("route requests = %v, want 3", got)
	}

	if got := testutil.ToFloat64(unmatched) - unmatchedBefore; got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}

	if got := testutil.ToFloat64(metrics.RequestsInFlight); got != 0 {
		t.Errorf("in flight = %v after requests finished", got)
	}
}
