// Package api provides HTTP handlers for tracksync.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	checks    []ReadinessCheck
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler probing the given dependencies.
func NewHealthHandler(log *logrus.Logger, version string, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health. It never touches a backend.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Readiness handles GET /api/v1/ready. A failed required check answers 503;
// an optional one only marks itself degraded.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := make(map[string]string, len(h.checks))
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			if chk.Required {
				h.log.WithError(err).WithField("check", chk.Name).Error("readiness: check failed")
				checks[chk.Name] = "error"
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable

				continue
			}

			h.log.WithError(err).WithField("check", chk.Name).Warn("readiness: check degraded")
			checks[chk.Name] = "degraded"

			continue
		}

		checks[chk.Name] = "ok"
	}

	c.JSON(statusCode, readinessResponse{
		Status: status,
		Checks: checks,
	})
}
