// Package metrics defines the Prometheus collectors for the recommendation
// pipeline and its external dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation request metrics
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "likewise_recommendation_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"mode", "outcome"}, // outcome: "full", "short", "empty"
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "likewise_recommendation_duration_seconds",
			Help:    "End-to-end recommendation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	RecommendationRelaxations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "likewise_recommendation_relaxations",
			Help:    "Number of filter relaxation steps needed per request",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	RecommendationCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "likewise_recommendation_candidates",
			Help:    "Candidates seen across all relaxation steps per request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	SeedResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "likewise_seed_resolutions_total",
			Help: "Total number of seed resolutions by origin",
		},
		[]string{"origin"}, // "store", "catalog", "query"
	)

	// External dependency metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "likewise_embedding_requests_total",
			Help: "Total number of embedding calls",
		},
		[]string{"outcome"},
	)

	RerankerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "likewise_reranker_requests_total",
			Help: "Total number of reranker service calls",
		},
		[]string{"service", "outcome"}, // outcome: "scored", "empty", "error"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "likewise_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "likewise_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API metrics
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "likewise_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
