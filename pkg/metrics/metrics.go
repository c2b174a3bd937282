// Package metrics exposes WorkerSQL's Prometheus gauges and counters for
// cache, routing, circuit breaker, split, and session concerns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workersql_cache_hits_total",
			Help: "Total number of cache lookups by outcome (fresh, stale, expired, miss)",
		},
		[]string{"outcome"},
	)

	CacheEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workersql_cache_entries_total",
			Help: "Total number of live cache entries",
		},
	)

	CacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workersql_cache_invalidations_total",
			Help: "Total number of pattern-based cache invalidations by trigger (mutation, ddl)",
		},
		[]string{"trigger"},
	)

	// Policy metrics
	PolicyCurrentVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workersql_policy_current_version",
			Help: "Currently installed routing policy version",
		},
	)

	PolicyConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workersql_policy_conflicts_total",
			Help: "Total number of rejected policy proposals due to version conflict",
		},
	)

	// Circuit breaker metrics: state is 0=Closed, 1=Open, 2=HalfOpen
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workersql_circuit_breaker_state",
			Help: "Circuit breaker state per shard (0=closed, 1=open, 2=half_open)",
		},
		[]string{"shard_id"},
	)

	BreakerTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workersql_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips per shard",
		},
		[]string{"shard_id"},
	)

	// Query pipeline metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workersql_query_duration_seconds",
			Help:    "Query pipeline duration in seconds by kind and consistency mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "consistency"},
	)

	ShardRPCsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workersql_shard_rpcs_total",
			Help: "Total number of shard RPCs by shard and outcome",
		},
		[]string{"shard_id", "outcome"},
	)

	// Split orchestrator metrics
	SplitPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workersql_split_phase",
			Help: "Current numeric phase of a split plan (see split plan lifecycle)",
		},
		[]string{"split_id"},
	)

	SplitRowsCopied = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workersql_split_rows_copied_total",
			Help: "Rows copied so far by a split plan's backfill phase",
		},
		[]string{"split_id"},
	)

	// Session metrics
	SessionsActiveTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workersql_sessions_active_total",
			Help: "Total number of bound sessions",
		},
	)

	SessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workersql_sessions_reaped_total",
			Help: "Total number of sessions reaped for TTL or transaction-lifetime expiry",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheEntriesTotal,
		CacheInvalidationsTotal,
		PolicyCurrentVersion,
		PolicyConflictsTotal,
		BreakerState,
		BreakerTripsTotal,
		QueryDuration,
		ShardRPCsTotal,
		SplitPhase,
		SplitRowsCopied,
		SessionsActiveTotal,
		SessionsReapedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// BreakerStateValue maps a breaker state name to the numeric gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// SplitPhaseValue maps a split phase to a stable numeric gauge value.
func SplitPhaseValue(phase string) float64 {
	order := []string{"Planning", "DualWrite", "Backfill", "Tailing", "CutoverPending", "Completed", "RolledBack"}
	for i, p := range order {
		if p == phase {
			return float64(i)
		}
	}
	return -1
}
