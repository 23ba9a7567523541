// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indexer. Instances are
// created once at startup and passed explicitly to the components that
// record into them.
type Metrics struct {
	// Ingestion metrics
	EventsProcessed   *prometheus.CounterVec
	EventsStored      *prometheus.CounterVec
	DuplicateEvents   prometheus.Counter
	DecodeErrors      *prometheus.CounterVec
	OperationsSkipped *prometheus.CounterVec
	PoolsDiscovered   prometheus.Counter

	// Aggregation metrics
	BucketUpserts     prometheus.Counter
	BackfilledBuckets prometheus.Counter
	ArchiveWrites     prometheus.Counter
	ArchiveErrors     prometheus.Counter
	ValuationFailures prometheus.Counter

	// Feed metrics
	FeedReconnects prometheus.Counter
	FeedLag        prometheus.Gauge

	// Query metrics
	RequestDuration *prometheus.HistogramVec
	CacheHits       *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastEventTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "binamm_indexer"
	}

	return &Metrics{
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_processed_total",
			Help:      "Total number of chain events processed by type",
		}, []string{"event_type"}),
		EventsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_stored_total",
			Help:      "Total number of raw records stored by type",
		}, []string{"event_type"}),
		DuplicateEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicate_events_total",
			Help:      "Total number of replayed events rejected by the record key",
		}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Total number of malformed payloads by kind",
		}, []string{"kind"}),
		OperationsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "operations_skipped_total",
			Help:      "Total number of operations skipped by reason",
		}, []string{"reason"}),
		PoolsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pools_discovered_total",
			Help:      "Total number of pools created from factory events",
		}),

		BucketUpserts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "bucket_upserts_total",
			Help:      "Total number of analytics bucket upserts applied",
		}),
		BackfilledBuckets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "backfilled_buckets_total",
			Help:      "Total number of gap-filling flat buckets written",
		}),
		ArchiveWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "archive_writes_total",
			Help:      "Total number of swap records archived to ClickHouse",
		}),
		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "archive_errors_total",
			Help:      "Total number of failed archive writes",
		}),
		ValuationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "valuation_failures_total",
			Help:      "Total number of token valuations that returned no value",
		}),

		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of WebSocket reconnections",
		}),
		FeedLag: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "lag_seconds",
			Help:      "Seconds between the newest slot timestamp and wall clock",
		}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "cache_requests_total",
			Help:      "Bars cache lookups by outcome",
		}, []string{"outcome"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp (ms) of the last event applied",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
