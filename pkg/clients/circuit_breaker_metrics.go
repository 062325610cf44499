package clients

import (
	"github.com/prometheus/client_golang/prometheus"

	"frameworks/pkg/monitoring"
)

// CircuitBreakerMetrics exports breaker state and transitions.
type CircuitBreakerMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewCircuitBreakerMetrics registers the breaker metrics on mc.
func NewCircuitBreakerMetrics(mc *monitoring.MetricsCollector) *CircuitBreakerMetrics {
	return &CircuitBreakerMetrics{
		state:       mc.NewGauge("circuit_breaker_state", "Current state of circuit breaker (0=closed, 1=half-open, 2=open)", []string{"name"}),
		transitions: mc.NewCounter("circuit_breaker_state_transitions_total", "Total number of circuit breaker state transitions", []string{"name", "from", "to"}),
	}
}

// Record is suitable as CircuitBreakerConfig.OnStateChange.
func (m *CircuitBreakerMetrics) Record(name string, from, to CircuitBreakerState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, from.String(), to.String()).Inc()
	m.state.WithLabelValues(name).Set(float64(to))
}
