package retry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts attempts by operation and attempt number.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekit_retry_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"operation", "attempt"},
	)

	// ExhaustedTotal counts operations that spent their whole attempt budget.
	ExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekit_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retry budget",
		},
		[]string{"operation"},
	)

	// BackoffDuration measures backoff wait times.
	BackoffDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatekit_retry_backoff_duration_seconds",
			Help:    "Duration of backoff waits in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
)

// RecordAttempt records one attempt of an operation.
func RecordAttempt(operation string, attempt int) {
	AttemptsTotal.WithLabelValues(operation, strconv.Itoa(attempt)).Inc()
}

// RecordExhausted records an operation whose attempt budget ran out.
func RecordExhausted(operation string) {
	ExhaustedTotal.WithLabelValues(operation).Inc()
}

// RecordBackoff records a backoff wait duration.
func RecordBackoff(operation string, seconds float64) {
	BackoffDuration.WithLabelValues(operation).Observe(seconds)
}
