package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/middleware"
	"github.com/persistorai/tracksync/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Sync        SyncRunner
	Recommend   Recommender
	Graph       GraphBrowser
	Search      SearchRepository
	Audit       AuditRunner
	Ledger      LedgerRepository
	Journal     JournalRepository
	Events      *ws.Hub
	Checks      []ReadinessCheck
	CORSOrigins []string
	Version     string
}

// Router-level limits.
const (
	maxBodySize = 1 << 20 // 1 MB, a single ledger entry
	syncRate    = 0.2     // sync triggers per second per client and entity type
	syncBurst   = 3
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.ResponseHeaders(deps.Version))
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.RequestMetrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(log, deps.Version, deps.Checks...)
	syncH := NewSyncHandler(deps.Sync, log)
	graph := NewGraphHandler(deps.Sync, deps.Recommend, deps.Graph, log)
	search := NewSearchHandler(deps.Search, log)
	audit := NewAuditHandler(deps.Audit, log)
	ledger := NewLedgerHandler(deps.Ledger, log)
	journal := NewJournalHandler(deps.Journal, log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// Sync triggers walk whole collections; throttle them per entity type.
	throttle := middleware.NewRateLimiter(ctx, syncRate, syncBurst, middleware.ClientParamKey("entity_type")).Handler()

	api.GET("/sync/cursors", syncH.Cursors)
	api.POST("/sync/:entity_type/full", throttle, syncH.Full)
	api.POST("/sync/:entity_type/incremental", throttle, syncH.Incremental)

	api.POST("/graph/sync-playlist/:playlist_id", graph.SyncPlaylist)
	api.GET("/graph/recommendations/playlist/:playlist_id", graph.FromPlaylist)
	api.GET("/graph/recommendations/deep/:user_id", graph.Deep)
	api.GET("/graph/recommendations/similar-listeners/:user_id", graph.SimilarListeners)
	api.GET("/graph/recommendations/shortest-path", graph.ShortestPath)
	api.GET("/graph/stats/:user_id", graph.Stats)
	api.GET("/graph/overview", graph.Overview)
	api.GET("/graph/neighbors/:node_type/:id", graph.Neighbors)

	// Static segments win over :entity_type in gin's tree.
	api.GET("/search/all", search.All)
	api.GET("/search/:entity_type", search.ByType)
	api.GET("/search/:entity_type/autocomplete", search.Autocomplete)

	api.GET("/audit", audit.All)
	api.GET("/audit/:entity_type", audit.One)

	api.POST("/ledger", ledger.Append)
	api.GET("/ledger/entries", ledger.Entries)
	api.GET("/ledger/entity/:entity_type/:entity_id", ledger.Entity)
	api.GET("/ledger/search", ledger.Search)

	api.GET("/journal", journal.Query)
	api.DELETE("/journal", journal.Purge)

	if deps.Events != nil {
		api.GET("/events", eventsHandler(ctx, log, deps.Events, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
// ctx bounds the background goroutines of stateful middleware.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
