package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

// RequestMetrics records latency and counts per route pattern. Routes with an
// :entity_type parameter are also counted per entity type so sync, search and
// audit traffic can be split by collection. Unknown entity types are not
// counted there, keeping that label bounded.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.RequestsInFlight.Inc()
		defer metrics.RequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		metrics.RequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()

		if raw := c.Param("entity_type"); raw != "" {
			if et, err := models.ParseEntityType(raw); err == nil {
				metrics.EntityRequestsTotal.WithLabelValues(string(et), c.Request.Method, status).Inc()
			}
		}
	}
}
