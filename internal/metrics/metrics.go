// Package metrics defines Prometheus metrics for tracksync.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	SyncEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_sync_entries_total",
			Help: "Ledger entries or records processed by sync, by outcome",
		},
		[]string{"entity_type", "mode", "outcome"},
	)

	SyncBatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_sync_batch_failures_total",
			Help: "Sync batches that exhausted their retry budget",
		},
		[]string{"entity_type", "mirror"},
	)

	SyncBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_sync_batch_duration_seconds",
			Help:    "Time to apply one sync batch to all mirrors",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_type", "mode"},
	)

	SyncCursor = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracksync_sync_cursor",
			Help: "Last applied ledger sequence per mirror and entity type",
		},
		[]string{"mirror", "entity_type"},
	)

	AuditDivergence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracksync_audit_divergence",
			Help: "Divergence reported by the last audit per entity type",
		},
		[]string{"entity_type"},
	)

	LedgerAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_ledger_appends_total",
			Help: "Change ledger appends by entity type and operation",
		},
		[]string{"entity_type", "operation"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracksync_mirror_breaker_state",
			Help: "Circuit breaker state per mirror (0=closed, 1=half-open, 2=open)",
		},
		[]string{"mirror"},
	)

	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracksync_event_subscribers",
			Help: "Connected event stream subscribers",
		},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_events_published_total",
			Help: "Events published to the event stream by type",
		},
		[]string{"type"},
	)

	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracksync_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	EntityRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_entity_requests_total",
			Help: "Requests to routes keyed by entity type",
		},
		[]string{"entity_type", "method", "status"},
	)

	SchemaVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracksync_schema_version",
			Help: "Goose schema version after startup migrations",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		SyncEntriesTotal, SyncBatchFailures, SyncBatchDuration, SyncCursor,
		AuditDivergence, LedgerAppendsTotal, BreakerState,
		EventSubscribers, EventsPublished,
		RequestsInFlight, EntityRequestsTotal, SchemaVersion,
	)
}
