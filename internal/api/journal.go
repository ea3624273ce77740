package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

// JournalHandler serves the sync journal endpoints.
type JournalHandler struct {
	repo JournalRepository
	log  *logrus.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(repo JournalRepository, log *logrus.Logger) *JournalHandler {
	return &JournalHandler{repo: repo, log: log}
}

// Query handles GET /api/v1/journal.
func (h *JournalHandler) Query(c *gin.Context) {
	opts := models.JournalQueryOpts{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		RunID:      c.Query("run_id"),
		Limit:      parseInt(c.Query("limit"), 50),
		Offset:     parseOffset(c.Query("offset")),
	}

	since, ok := timeQuery(c, "since")
	if !ok {
		return
	}
	opts.Since = since

	entries, hasMore, err := h.repo.Query(c.Request.Context(), opts)
	if err != nil {
		h.log.WithError(err).Error("failed to query sync journal")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to query sync journal")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     entries,
		"has_more": hasMore,
	})
}

// Purge handles DELETE /api/v1/journal.
func (h *JournalHandler) Purge(c *gin.Context) {
	retentionDays := 90
	if rd := c.Query("retention_days"); rd != "" {
		v, err := strconv.Atoi(rd)
		if err != nil || v < 1 {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "retention_days must be a positive integer")
			return
		}
		retentionDays = v
	}

	deleted, err := h.repo.PurgeOldEntries(c.Request.Context(), retentionDays)
	if err != nil {
		h.log.WithError(err).Error("failed to purge sync journal")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to purge sync journal")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":        deleted,
		"retention_days": retentionDays,
	})
}
