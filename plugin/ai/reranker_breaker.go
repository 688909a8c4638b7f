package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hrygo/likewise/plugin/ai/metrics"
)

// breakerReranker wraps a RerankerService with a circuit breaker so a dead
// upstream is skipped without paying its timeout on every request.
type breakerReranker struct {
	RerankerService
	cb *gobreaker.CircuitBreaker[[]RerankResult]
}

// BreakerSettings tunes the reranker circuit breaker.
type BreakerSettings struct {
	MaxRequests uint32        // probes allowed while half-open
	Interval    time.Duration // closed-state count reset window
	Timeout     time.Duration // open duration before probing
	MinRequests uint32        // requests before the failure ratio counts
	FailRatio   float64       // failure ratio that opens the circuit
}

// DefaultBreakerSettings returns the production settings.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MinRequests: 5,
		FailRatio:   0.6,
	}
}

// WithCircuitBreaker wraps svc with a circuit breaker named after the service.
func WithCircuitBreaker(svc RerankerService, st BreakerSettings) RerankerService {
	name := "reranker-" + svc.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]RerankResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < st.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= st.FailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("reranker circuit breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// A caller-side cancellation says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &breakerReranker{RerankerService: svc, cb: cb}
}

func (b *breakerReranker) Rerank(ctx context.Context, query string, documents []RerankDocument, topN int) ([]RerankResult, error) {
	return b.cb.Execute(func() ([]RerankResult, error) {
		return b.RerankerService.Rerank(ctx, query, documents, topN)
	})
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
