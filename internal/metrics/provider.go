package metrics

import "github.com/prometheus/client_golang/prometheus"

// Provider and resolver Prometheus metrics.
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "placedex",
			Name:      "provider_requests_total",
			Help:      "Total number of external provider requests",
		},
		[]string{"provider", "operation", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "placedex",
			Name:      "provider_request_duration_seconds",
			Help:      "External provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	TierServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "placedex",
			Name:      "tier_served_total",
			Help:      "Result sets labeled by resolver endpoint and source tier",
		},
		[]string{"endpoint", "source"},
	)

	NegativeCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "placedex",
			Name:      "negative_cache_total",
			Help:      "Negative-result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	QuotaCallsRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "placedex",
			Name:      "quota_calls_remaining",
			Help:      "Remaining provider calls in the current UTC day",
		},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "placedex",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per dependency (0=closed, 1=open, 2=half_open)",
		},
		[]string{"dependency"},
	)

	UpsertOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "placedex",
			Name:      "upsert_outcomes_total",
			Help:      "Write-through upsert outcomes by record kind",
		},
		[]string{"kind", "outcome"}, // kind: poi/prediction; outcome: inserted/updated/skipped/error
	)
)

// RegisterCoreMetrics registers the provider/resolver metrics explicitly (no init()).
func RegisterCoreMetrics() {
	prometheus.MustRegister(
		ProviderRequestsTotal,
		ProviderRequestDuration,
		TierServedTotal,
		NegativeCacheTotal,
		QuotaCallsRemaining,
		BreakerState,
		UpsertOutcomesTotal,
	)
}
