package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

// maxSearchQueryLen caps the length of search query strings.
const maxSearchQueryLen = 2000

// maxSearchFilters caps the number of field filters on a typed search.
const maxSearchFilters = 8

// reservedSearchParams are query parameters that are never field filters.
var reservedSearchParams = map[string]bool{"q": true, "size": true}

// SearchHandler serves search endpoints.
type SearchHandler struct {
	repo SearchRepository
	log  *logrus.Logger
}

// NewSearchHandler creates a SearchHandler with the given repository and logger.
func NewSearchHandler(repo SearchRepository, log *logrus.Logger) *SearchHandler {
	return &SearchHandler{repo: repo, log: log}
}

func queryParam(c *gin.Context) (string, bool) {
	q := c.Query("q")
	if q == "" {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "query parameter q is required")
		return "", false
	}

	if len(q) > maxSearchQueryLen {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "query parameter q exceeds maximum length")
		return "", false
	}

	return q, true
}

// All handles GET /api/v1/search/all.
func (h *SearchHandler) All(c *gin.Context) {
	q, ok := queryParam(c)
	if !ok {
		return
	}

	size := parseInt(c.Query("size"), 20)

	hits, err := h.repo.Search(c.Request.Context(), models.EntityAll, q, nil, size)
	if err != nil {
		respondServiceError(c, h.log, "search", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"hits": hits, "total": len(hits)})
}

// ByType handles GET /api/v1/search/:entity_type. Query parameters other than
// q and size are exact-match field filters.
func (h *SearchHandler) ByType(c *gin.Context) {
	et, ok := entityParam(c)
	if !ok {
		return
	}

	q, ok := queryParam(c)
	if !ok {
		return
	}

	filters := make(map[string]string)

	for k, vs := range c.Request.URL.Query() {
		if reservedSearchParams[k] || len(vs) == 0 || vs[0] == "" {
			continue
		}

		if len(filters) == maxSearchFilters {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "too many field filters")
			return
		}

		filters[k] = vs[0]
	}

	size := parseInt(c.Query("size"), 20)

	hits, err := h.repo.Search(c.Request.Context(), et, q, filters, size)
	if err != nil {
		respondServiceError(c, h.log, "search", err)
		return
	}

	h.log.WithFields(logrus.Fields{"entity_type": et, "filters": len(filters), "results": len(hits)}).Debug("search")

	c.JSON(http.StatusOK, gin.H{"entity_type": et, "hits": hits, "total": len(hits)})
}

// Autocomplete handles GET /api/v1/search/:entity_type/autocomplete.
func (h *SearchHandler) Autocomplete(c *gin.Context) {
	et, ok := entityParam(c)
	if !ok {
		return
	}

	q, ok := queryParam(c)
	if !ok {
		return
	}

	size := parseInt(c.Query("size"), 10)

	suggestions, err := h.repo.Autocomplete(c.Request.Context(), et, q, size)
	if err != nil {
		respondServiceError(c, h.log, "autocomplete", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entity_type": et, "suggestions": suggestions})
}
