// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transfer engine metrics
	TransfersTotal       prometheus.Counter
	TransfersRejected    *prometheus.CounterVec
	FeesDeducted         *prometheus.CounterVec
	MintsTotal           prometheus.Counter
	BurnsTotal           prometheus.Counter
	ReflectionClaims     prometheus.Counter
	LiquidityProvisions  prometheus.Counter
	LiquidityPeerErrors  prometheus.Counter

	// Custodian metrics
	SchedulesCreated prometheus.Counter
	SchedulesRevoked prometheus.Counter
	ReleasesTotal    prometheus.Counter
	LocksCreated     prometheus.Counter
	LocksUnlocked    *prometheus.CounterVec

	// Journal / indexer metrics
	JournalEvents    *prometheus.CounterVec
	IndexerBatches   prometheus.Counter
	IndexerErrors    prometheus.Counter
	IndexerLastSeq   prometheus.Gauge
	FeedSubscribers  prometheus.Gauge

	// API metrics
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_custody_lab"
	}

	return &Metrics{
		// Transfer engine metrics
		TransfersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transfers_total",
			Help:      "Total number of completed transfers",
		}),
		TransfersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transfers_rejected_total",
			Help:      "Total number of rejected transfers by reason",
		}, []string{"reason"}),
		FeesDeducted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fees_deducted_total",
			Help:      "Total number of fee sub-movements by category",
		}, []string{"category"}),
		MintsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "mints_total",
			Help:      "Total number of mint operations",
		}),
		BurnsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "burns_total",
			Help:      "Total number of burn operations",
		}),
		ReflectionClaims: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reflection_claims_total",
			Help:      "Total number of reflection claims paid out",
		}),
		LiquidityProvisions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "provisions_total",
			Help:      "Total number of completed liquidity provisions",
		}),
		LiquidityPeerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "peer_errors_total",
			Help:      "Total number of exchange peer failures",
		}),

		// Custodian metrics
		SchedulesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vesting",
			Name:      "schedules_created_total",
			Help:      "Total number of vesting schedules created",
		}),
		SchedulesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vesting",
			Name:      "schedules_revoked_total",
			Help:      "Total number of vesting schedules revoked",
		}),
		ReleasesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vesting",
			Name:      "releases_total",
			Help:      "Total number of vesting releases paid out",
		}),
		LocksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "locks_created_total",
			Help:      "Total number of escrow locks created",
		}),
		LocksUnlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "locks_unlocked_total",
			Help:      "Total number of escrow locks unlocked by mode",
		}, []string{"mode"}),

		// Journal / indexer metrics
		JournalEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "events_total",
			Help:      "Total number of journal events by kind",
		}, []string{"kind"}),
		IndexerBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "batches_total",
			Help:      "Total number of event batches flushed to storage",
		}),
		IndexerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "errors_total",
			Help:      "Total number of indexer flush errors",
		}),
		IndexerLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_seq",
			Help:      "Highest journal seq flushed to storage",
		}),
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of websocket feed subscribers",
		}),

		// API metrics
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RequestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_errors_total",
			Help:      "Total number of HTTP request errors by endpoint",
		}, []string{"endpoint"}),

		// Database metrics
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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransfer increments the completed transfer counter.
func RecordTransfer() {
	DefaultMetrics.TransfersTotal.Inc()
}

// RecordRejection records a rejected transfer by reason.
func RecordRejection(reason string) {
	DefaultMetrics.TransfersRejected.WithLabelValues(reason).Inc()
}

// RecordFee records a fee sub-movement by category.
func RecordFee(category string) {
	DefaultMetrics.FeesDeducted.WithLabelValues(category).Inc()
}

// RecordJournalEvent records a journal event by kind.
func RecordJournalEvent(kind string) {
	DefaultMetrics.JournalEvents.WithLabelValues(kind).Inc()
}

// RecordIndexerFlush records a flushed batch and the seq high-water mark.
func RecordIndexerFlush(lastSeq uint64) {
	DefaultMetrics.IndexerBatches.Inc()
	DefaultMetrics.IndexerLastSeq.Set(float64(lastSeq))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
