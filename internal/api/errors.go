package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/httputil"
	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeInternalError     = "internal_error"
	ErrCodeValidationError   = "validation_error"
	ErrCodeLeaseHeld         = "sync_in_progress"
	ErrCodeOrderingViolation = "ordering_violation"
	ErrCodeMalformedRecord   = "malformed_record"
	ErrCodeUnavailable       = "unavailable"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	respondErrorDetail(c, status, code, message, nil)
}

func respondErrorDetail(c *gin.Context, status int, code, message string, detail any) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondErrorDetail(c, status, code, message, detail)
}

// respondServiceError maps a domain error to its HTTP status. Only 5xx
// responses are logged at error level; the message of a 500 never leaks the
// underlying cause.
func respondServiceError(c *gin.Context, log *logrus.Logger, action string, err error) {
	respondServiceErrorDetail(c, log, action, err, nil)
}

// respondServiceErrorDetail is respondServiceError with the partial outcome
// of the failed operation attached. Pass an untyped nil for none.
func respondServiceErrorDetail(c *gin.Context, log *logrus.Logger, action string, err error, detail any) {
	var ordering *models.OrderingViolationError

	switch {
	case errors.Is(err, models.ErrInvalidEntityType),
		errors.Is(err, models.ErrInvalidOperation),
		errors.Is(err, models.ErrMissingID),
		errors.Is(err, models.ErrMissingPayload):
		respondErrorDetail(c, http.StatusBadRequest, ErrCodeValidationError, err.Error(), detail)
	case errors.Is(err, models.ErrNotFound):
		respondErrorDetail(c, http.StatusNotFound, ErrCodeNotFound, err.Error(), detail)
	case errors.Is(err, models.ErrLeaseHeld):
		respondErrorDetail(c, http.StatusConflict, ErrCodeLeaseHeld, err.Error(), detail)
	case errors.As(err, &ordering):
		log.WithError(err).Error(action + " halted on ordering violation")
		respondErrorDetail(c, http.StatusConflict, ErrCodeOrderingViolation, err.Error(), detail)
	case models.IsMalformed(err):
		respondErrorDetail(c, http.StatusUnprocessableEntity, ErrCodeMalformedRecord, err.Error(), detail)
	case models.IsTransient(err):
		log.WithError(err).Warn(action + " failed after retries")
		respondErrorDetail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, syncMessage(action, err), detail)
	default:
		log.WithError(err).Error(action + " failed")
		respondErrorDetail(c, http.StatusInternalServerError, ErrCodeInternalError, syncMessage(action, err), detail)
	}
}

// syncMessage keeps the entity type and cursor of a failed sync visible to
// the caller without exposing the raw backend error.
func syncMessage(action string, err error) string {
	var se *models.SyncError
	if errors.As(err, &se) {
		e := *se
		e.Err = errors.New("backend error")

		return action + " failed: " + e.Error()
	}

	return action + " failed"
}
