package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

const (
	// defaultRecommendLimit applies when ?limit is absent.
	defaultRecommendLimit = 10
	defaultPathDepth      = 6
	maxPathDepth          = 10
)

// GraphHandler serves relationship sync, recommendation and graph browsing endpoints.
type GraphHandler struct {
	sync      SyncRunner
	recommend Recommender
	graph     GraphBrowser
	log       *logrus.Logger
}

// NewGraphHandler creates a GraphHandler.
func NewGraphHandler(sync SyncRunner, recommend Recommender, graph GraphBrowser, log *logrus.Logger) *GraphHandler {
	return &GraphHandler{sync: sync, recommend: recommend, graph: graph, log: log}
}

// SyncPlaylist handles POST /api/v1/graph/sync-playlist/:playlist_id.
func (h *GraphHandler) SyncPlaylist(c *gin.Context) {
	id, ok := idParam(c, "playlist_id")
	if !ok {
		return
	}

	res, err := h.sync.SyncRelationships(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, "playlist relationship sync", err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// FromPlaylist handles GET /api/v1/graph/recommendations/playlist/:playlist_id.
func (h *GraphHandler) FromPlaylist(c *gin.Context) {
	id, ok := idParam(c, "playlist_id")
	if !ok {
		return
	}

	limit := parseInt(c.Query("limit"), defaultRecommendLimit)

	recs, err := h.recommend.FromPlaylist(c.Request.Context(), id, limit)
	if err != nil {
		respondServiceError(c, h.log, "playlist recommendations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"playlist_id": id, "recommendations": recs})
}

// Deep handles GET /api/v1/graph/recommendations/deep/:user_id.
func (h *GraphHandler) Deep(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	limit := parseInt(c.Query("limit"), defaultRecommendLimit)

	recs, err := h.recommend.Deep(c.Request.Context(), id, limit)
	if err != nil {
		respondServiceError(c, h.log, "deep recommendations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": id, "recommendations": recs})
}

// SimilarListeners handles GET /api/v1/graph/recommendations/similar-listeners/:user_id.
func (h *GraphHandler) SimilarListeners(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	limit := parseInt(c.Query("limit"), defaultRecommendLimit)

	recs, err := h.recommend.SimilarListeners(c.Request.Context(), id, limit)
	if err != nil {
		respondServiceError(c, h.log, "similar listener recommendations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": id, "algorithm": "similar_listeners", "recommendations": recs})
}

// ShortestPath handles GET /api/v1/graph/recommendations/shortest-path?from_song_id=&to_song_id=&max_depth=.
func (h *GraphHandler) ShortestPath(c *gin.Context) {
	ids := make([]string, 2)
	for i, name := range []string{"from_song_id", "to_song_id"} {
		ids[i] = c.Query(name)
		if err := validatePathID(ids[i]); err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, name+": "+err.Error())
			return
		}
	}

	depth := defaultPathDepth

	if raw := c.Query("max_depth"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPathDepth {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "max_depth must be between 1 and 10")
			return
		}

		depth = v
	}

	path, err := h.recommend.ShortestPath(c.Request.Context(), ids[0], ids[1], depth)
	if err != nil {
		respondServiceError(c, h.log, "song shortest path", err)
		return
	}

	c.JSON(http.StatusOK, path)
}

// Stats handles GET /api/v1/graph/stats/:user_id.
func (h *GraphHandler) Stats(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	stats, err := h.recommend.Stats(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, "listener stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Overview handles GET /api/v1/graph/overview.
func (h *GraphHandler) Overview(c *gin.Context) {
	ov, err := h.graph.Overview(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.log, "graph overview", err)
		return
	}

	c.JSON(http.StatusOK, ov)
}

// Neighbors handles GET /api/v1/graph/neighbors/:node_type/:id?edge=&direction=.
func (h *GraphHandler) Neighbors(c *gin.Context) {
	nt, err := models.ParseNodeType(c.Param("node_type"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	et, err := models.ParseEdgeType(c.Query("edge"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	dir := models.Direction(c.DefaultQuery("direction", string(models.Outgoing)))
	if dir != models.Outgoing && dir != models.Incoming {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "direction must be 'out' or 'in'")
		return
	}

	ref := models.NodeRef{Type: nt, ID: id}

	neighbors, err := h.graph.Neighbors(c.Request.Context(), ref, et, dir)
	if err != nil {
		respondServiceError(c, h.log, "graph neighbors", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"node":      ref,
		"edge":      et,
		"direction": dir,
		"neighbors": neighbors,
	})
}
