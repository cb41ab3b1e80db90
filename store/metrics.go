package store

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics holds Prometheus metrics for store operations.
type StoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

var (
	storeMetricsInstance *StoreMetrics
	storeMetricsOnce     sync.Once
)

// GetStoreMetrics returns the singleton store metrics instance.
func GetStoreMetrics() *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetricsInstance = newStoreMetrics()
	})
	return storeMetricsInstance
}

// MustRegister registers the store metric collectors with the given
// registry, for services that serve /metrics from a custom registry
// instead of the promauto default.
func (m *StoreMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
	)
}

func newStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		operationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekit",
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of store operations by result class",
			},
			[]string{"operation", "resource_type", "result"},
		),
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gatekit",
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of store operations including retries",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "resource_type"},
		),
	}
}

// recordOperation records one finished logical operation.
func recordOperation(op, resourceType string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = errClassLabel(err)
		if result == "other" {
			result = Classify(err).String()
		}
	}
	m := GetStoreMetrics()
	m.operationsTotal.WithLabelValues(op, resourceType, result).Inc()
	m.operationDuration.WithLabelValues(op, resourceType).Observe(elapsed.Seconds())
}
