package breaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BreakerMetrics holds Prometheus metrics for circuit breakers.
type BreakerMetrics struct {
	requestsTotal    *prometheus.CounterVec
	rejectedTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
}

var (
	breakerMetricsInstance *BreakerMetrics
	breakerMetricsOnce     sync.Once
)

// GetBreakerMetrics returns the singleton breaker metrics instance.
func GetBreakerMetrics() *BreakerMetrics {
	breakerMetricsOnce.Do(func() {
		breakerMetricsInstance = newBreakerMetrics()
	})
	return breakerMetricsInstance
}

// MustRegister registers all breaker metric collectors with the given
// Prometheus registry. promauto registers with the default global
// registry; call this to expose the metrics on a custom one.
func (m *BreakerMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.requestsTotal,
		m.rejectedTotal,
		m.transitionsTotal,
	)
}

func newBreakerMetrics() *BreakerMetrics {
	return &BreakerMetrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekit",
				Subsystem: "breaker",
				Name:      "requests_total",
				Help:      "Total requests seen by the circuit breaker, by state",
			},
			[]string{"name", "state"},
		),
		rejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekit",
				Subsystem: "breaker",
				Name:      "rejected_total",
				Help:      "Requests rejected without reaching the backend",
			},
			[]string{"name"},
		),
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekit",
				Subsystem: "breaker",
				Name:      "transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),
	}
}
