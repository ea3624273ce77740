package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

// SyncHandler serves the sync trigger endpoints.
type SyncHandler struct {
	sync SyncRunner
	log  *logrus.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(sync SyncRunner, log *logrus.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, log: log}
}

// Full handles POST /api/v1/sync/:entity_type/full.
func (h *SyncHandler) Full(c *gin.Context) {
	et, ok := entityParam(c)
	if !ok {
		return
	}

	res, err := h.sync.FullSync(c.Request.Context(), et)
	if err != nil {
		respondServiceError(c, h.log, "full sync", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entity_type": res.EntityType,
		"migrated":    res.Migrated,
		"skipped":     res.Skipped,
		"pruned":      res.Pruned,
		"cursor":      res.Cursor,
		"elapsed_ms":  res.Elapsed.Milliseconds(),
	})
}

// Incremental handles POST /api/v1/sync/:entity_type/incremental.
func (h *SyncHandler) Incremental(c *gin.Context) {
	et, ok := entityParam(c)
	if !ok {
		return
	}

	res, err := h.sync.IncrementalSync(c.Request.Context(), et)
	if err != nil {
		// Batches before the failing one are committed; report their counts.
		var partial any
		if res != nil {
			partial = incrementalBody(res)
		}

		respondServiceErrorDetail(c, h.log, "incremental sync", err, partial)
		return
	}

	c.JSON(http.StatusOK, incrementalBody(res))
}

func incrementalBody(res *models.IncrementalResult) gin.H {
	return gin.H{
		"entity_type":    res.EntityType,
		"applied":        res.Applied,
		"skipped":        res.Skipped,
		"failed":         res.Failed,
		"batches":        res.Batches,
		"cursor_before":  res.CursorBefore,
		"cursor_after":   res.CursorAfter,
		"skipped_detail": res.SkippedDetail,
		"elapsed_ms":     res.Elapsed.Milliseconds(),
	}
}

// Cursors handles GET /api/v1/sync/cursors.
func (h *SyncHandler) Cursors(c *gin.Context) {
	cursors, err := h.sync.Cursors(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.log, "listing cursors", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cursors": cursors})
}
