package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(RerankerRequests.WithLabelValues("test", "scored"))
	RerankerRequests.WithLabelValues("test", "scored").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RerankerRequests.WithLabelValues("test", "scored")))

	CircuitBreakerState.WithLabelValues("test").Set(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test")))
}
