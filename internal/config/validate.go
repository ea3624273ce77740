package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxSyncBatchSize matches the largest page the Postgres ledger returns.
const maxSyncBatchSize = 1000

func (c *Config) validate() error {
	validators := []func() error{
		c.validateDatabase,
		c.validateNetwork,
		c.validateCORS,
		c.validateLogLevel,
		c.validateBackends,
		c.validateSync,
		c.validateRecommend,
	}

	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		if c.UsesPostgres() {
			return fmt.Errorf("DATABASE_URL is required when a postgres backend is selected")
		}

		return nil
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if !isLoopback(dbHost) {
		sslmode := dbURL.Query().Get("sslmode")
		if sslmode == "disable" {
			return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
		}
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Loopback for local deployments, 0.0.0.0/:: for containers where the
	// network boundary is enforced externally.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	metricsPort, err := strconv.Atoi(c.MetricsPort)
	if err != nil {
		return fmt.Errorf("METRICS_PORT must be a valid integer: %w", err)
	}

	if metricsPort < 1 || metricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be between 1 and 65535")
	}

	if metricsPort == port {
		return fmt.Errorf("METRICS_PORT must differ from PORT")
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateLogLevel() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	return nil
}

func (c *Config) validateBackends() error {
	switch c.GraphBackend {
	case BackendMemory, BackendPostgres:
	case BackendNeo4j:
		u, err := url.Parse(c.Neo4jURI)
		if err != nil || u.Host == "" {
			return fmt.Errorf("NEO4J_URI is not a valid URI: %q", c.Neo4jURI)
		}

		switch u.Scheme {
		case "neo4j", "neo4j+s", "neo4j+ssc", "bolt", "bolt+s", "bolt+ssc":
		default:
			return fmt.Errorf("NEO4J_URI scheme must be neo4j or bolt (optionally +s/+ssc), got %q", u.Scheme)
		}

		if c.Neo4jPassword.Value() == "" {
			return fmt.Errorf("NEO4J_PASSWORD is required when GRAPH_BACKEND is neo4j")
		}
	default:
		return fmt.Errorf("GRAPH_BACKEND must be 'neo4j', 'postgres' or 'memory', got %q", c.GraphBackend)
	}

	switch c.SearchBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("SEARCH_BACKEND must be 'postgres' or 'memory', got %q", c.SearchBackend)
	}

	if c.MongoURL.Value() != "" {
		u, err := url.Parse(c.MongoURL.Value())
		if err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			return fmt.Errorf("MONGO_URL must be a mongodb:// or mongodb+srv:// URI")
		}

		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE is required when MONGO_URL is set")
		}
	}

	return nil
}

func (c *Config) validateSync() error {
	if c.SyncBatchSize < 1 || c.SyncBatchSize > maxSyncBatchSize {
		return fmt.Errorf("SYNC_BATCH_SIZE must be between 1 and %d", maxSyncBatchSize)
	}

	if c.SyncRetryAttempts < 1 || c.SyncRetryAttempts > 20 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must be between 1 and 20")
	}

	if c.SyncRetryBase <= 0 || c.SyncBatchTimeout <= 0 || c.SyncDebounce <= 0 {
		return fmt.Errorf("SYNC_RETRY_BASE, SYNC_BATCH_TIMEOUT and SYNC_DEBOUNCE must be positive")
	}

	if c.BreakerFailures < 1 {
		return fmt.Errorf("BREAKER_FAILURES must be at least 1")
	}

	if c.BreakerTimeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}

	if c.AuditDivergenceThreshold < 0 {
		return fmt.Errorf("AUDIT_DIVERGENCE_THRESHOLD must not be negative")
	}

	if c.JournalQueueSize < 1 {
		return fmt.Errorf("JOURNAL_QUEUE_SIZE must be at least 1")
	}

	return nil
}

func (c *Config) validateRecommend() error {
	if c.RecommendGenreWeight < 0 || c.RecommendArtistWeight < 0 || c.RecommendListenWeight < 0 {
		return fmt.Errorf("RECOMMEND_*_WEIGHT values must not be negative")
	}

	if c.RecommendMaxFanOut < 1 {
		return fmt.Errorf("RECOMMEND_MAX_FANOUT must be at least 1")
	}

	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
