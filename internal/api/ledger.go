package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

// LedgerHandler serves the change ledger endpoints.
type LedgerHandler struct {
	repo LedgerRepository
	log  *logrus.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(repo LedgerRepository, log *logrus.Logger) *LedgerHandler {
	return &LedgerHandler{repo: repo, log: log}
}

type appendRequest struct {
	EntityType string           `json:"entity_type" binding:"required"`
	EntityID   string           `json:"entity_id" binding:"required"`
	Operation  models.Operation `json:"operation" binding:"required"`
	Payload    map[string]any   `json:"payload"`
}

// Append handles POST /api/v1/ledger. The canonical store's write path calls
// it once per committed mutation.
func (h *LedgerHandler) Append(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	et, err := models.ParseEntityType(req.EntityType)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	entry := models.ChangeLogEntry{
		EntityType: et,
		EntityID:   req.EntityID,
		Operation:  req.Operation,
		Payload:    req.Payload,
	}

	if err := entry.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	saved, err := h.repo.Append(c.Request.Context(), entry)
	if err != nil {
		respondServiceError(c, h.log, "ledger append", err)
		return
	}

	c.JSON(http.StatusCreated, saved)
}

// Entries handles GET /api/v1/ledger/entries?entity_type=&after=&limit=.
func (h *LedgerHandler) Entries(c *gin.Context) {
	et, err := models.ParseEntityType(c.Query("entity_type"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	var after int64
	if raw := c.Query("after"); raw != "" {
		after, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "after must be a non-negative sequence")
			return
		}
	}

	limit := parseInt(c.Query("limit"), 100)

	entries, err := h.repo.ReadFrom(c.Request.Context(), et, after, limit)
	if err != nil {
		respondServiceError(c, h.log, "reading ledger", err)
		return
	}

	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].Sequence
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"next":     next,
		"has_more": len(entries) == limit,
	})
}

// Entity handles GET /api/v1/ledger/entity/:entity_type/:entity_id.
func (h *LedgerHandler) Entity(c *gin.Context) {
	et, ok := entityParam(c)
	if !ok {
		return
	}

	id, ok := idParam(c, "entity_id")
	if !ok {
		return
	}

	entries, err := h.repo.History(c.Request.Context(), et, id)
	if err != nil {
		respondServiceError(c, h.log, "reading entity history", err)
		return
	}

	if len(entries) == 0 {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "no ledger entries for "+string(et)+" "+id)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entity_type": et, "entity_id": id, "entries": entries})
}

// Search handles GET /api/v1/ledger/search?entity_type=&operation=&from=&to=&limit=.
func (h *LedgerHandler) Search(c *gin.Context) {
	q := models.LedgerQuery{Limit: parseInt(c.Query("limit"), 100)}

	if raw := c.Query("entity_type"); raw != "" {
		et, err := models.ParseEntityType(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		q.EntityType = et
	}

	if raw := c.Query("operation"); raw != "" {
		op, err := models.ParseOperation(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		q.Operation = op
	}

	var ok bool
	if q.From, ok = timeQuery(c, "from"); !ok {
		return
	}
	if q.To, ok = timeQuery(c, "to"); !ok {
		return
	}

	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "to must not be before from")
		return
	}

	entries, err := h.repo.Query(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, h.log, "searching ledger", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}
