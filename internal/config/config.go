// Package config provides environment-driven configuration for tracksync.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Backend names for the graph and search mirrors.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendNeo4j    = "neo4j"
)

// Config holds all application configuration values.
type Config struct {
	DatabaseURL Secret
	Port        string
	ListenHost  string
	MetricsPort string
	CORSOrigins []string
	LogLevel    string

	MongoURL      Secret
	MongoDatabase string

	GraphBackend  string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword Secret
	Neo4jDatabase string

	SearchBackend string

	SyncBatchSize     int
	SyncRetryAttempts int
	SyncRetryBase     time.Duration
	SyncBatchTimeout  time.Duration
	SyncOnNotify      bool
	SyncDebounce      time.Duration

	BreakerFailures int
	BreakerTimeout  time.Duration

	RecommendGenreWeight  float64
	RecommendArtistWeight float64
	RecommendListenWeight float64
	RecommendMaxFanOut    int

	AuditDivergenceThreshold int64
	JournalQueueSize         int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:   Secret(envOrDefault("DATABASE_URL", "")),
		Port:          envOrDefault("PORT", "3030"),
		ListenHost:    envOrDefault("LISTEN_HOST", "127.0.0.1"),
		MetricsPort:   envOrDefault("METRICS_PORT", "9091"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		MongoURL:      Secret(envOrDefault("MONGO_URL", "")),
		MongoDatabase: envOrDefault("MONGO_DATABASE", "music"),
		GraphBackend:  envOrDefault("GRAPH_BACKEND", BackendMemory),
		Neo4jURI:      envOrDefault("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:     envOrDefault("NEO4J_USER", "neo4j"),
		Neo4jPassword: Secret(envOrDefault("NEO4J_PASSWORD", "")),
		Neo4jDatabase: envOrDefault("NEO4J_DATABASE", ""),
		SearchBackend: envOrDefault("SEARCH_BACKEND", BackendMemory),
		SyncOnNotify:  envOrDefault("SYNC_ON_NOTIFY", "true") == "true",
	}

	p := &parser{}
	cfg.SyncBatchSize = p.intVar("SYNC_BATCH_SIZE", 500)
	cfg.SyncRetryAttempts = p.intVar("SYNC_RETRY_ATTEMPTS", 5)
	cfg.SyncRetryBase = p.durationVar("SYNC_RETRY_BASE", 200*time.Millisecond)
	cfg.SyncBatchTimeout = p.durationVar("SYNC_BATCH_TIMEOUT", 30*time.Second)
	cfg.SyncDebounce = p.durationVar("SYNC_DEBOUNCE", 250*time.Millisecond)
	cfg.BreakerFailures = p.intVar("BREAKER_FAILURES", 5)
	cfg.BreakerTimeout = p.durationVar("BREAKER_TIMEOUT", 30*time.Second)
	cfg.RecommendGenreWeight = p.floatVar("RECOMMEND_GENRE_WEIGHT", 1.0)
	cfg.RecommendArtistWeight = p.floatVar("RECOMMEND_ARTIST_WEIGHT", 1.5)
	cfg.RecommendListenWeight = p.floatVar("RECOMMEND_LISTEN_WEIGHT", 0.5)
	cfg.RecommendMaxFanOut = p.intVar("RECOMMEND_MAX_FANOUT", 1000)
	cfg.AuditDivergenceThreshold = int64(p.intVar("AUDIT_DIVERGENCE_THRESHOLD", 0))
	cfg.JournalQueueSize = p.intVar("JOURNAL_QUEUE_SIZE", 1000)

	if p.err != nil {
		return nil, p.err
	}

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

// UsesPostgres reports whether any component needs DATABASE_URL.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL.Value() != "" ||
		c.GraphBackend == BackendPostgres || c.SearchBackend == BackendPostgres
}

// parser reads typed variables and keeps the first failure.
type parser struct {
	err error
}

func (p *parser) intVar(key string, fallback int) int {
	raw := envOrDefault(key, strconv.Itoa(fallback))

	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be an integer, got %q", key, raw)
	}

	return v
}

func (p *parser) floatVar(key string, fallback float64) float64 {
	raw := envOrDefault(key, strconv.FormatFloat(fallback, 'f', -1, 64))

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be a number, got %q", key, raw)
	}

	return v
}

func (p *parser) durationVar(key string, fallback time.Duration) time.Duration {
	raw := envOrDefault(key, fallback.String())

	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be a duration such as 500ms or 30s, got %q", key, raw)
	}

	return v
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
