package metrics

import "github.com/prometheus/client_golang/prometheus"

// Provider-facing Prometheus metrics: embeddings, classification, and the
// rate limiter in front of both.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entel",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "entel",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entel",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entel",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"model", "error_type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entel",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	ClassificationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entel",
			Name:      "classification_requests_total",
			Help:      "Total number of transcript classification requests",
		},
		[]string{"model", "status"},
	)

	RateLimitWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "entel",
			Name:      "rate_limit_wait_duration_seconds",
			Help:      "Time spent waiting on the provider rate limiter",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"window"}, // "requests" / "tokens_minute" / "tokens_second"
	)

	BudgetUSDSpent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "entel",
			Name:      "budget_usd_spent",
			Help:      "Estimated provider spend for the current month in USD",
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entel",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"mode"}, // "hybrid" / "keyword_only"
	)
)

var providerMetricsRegistered bool

// RegisterProviderMetrics registers the provider-facing metrics. Must be
// called once from main.
func RegisterProviderMetrics() {
	if providerMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(ClassificationRequestsTotal)
	prometheus.MustRegister(RateLimitWaitDuration)
	prometheus.MustRegister(BudgetUSDSpent)
	prometheus.MustRegister(SearchRequestsTotal)
	providerMetricsRegistered = true
}
