package authz

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthzMetrics holds Prometheus metrics for authorization decisions
// and identity resolution.
type AuthzMetrics struct {
	decisionsTotal     *prometheus.CounterVec
	decisionDuration   prometheus.Histogram
	resolutionDuration *prometheus.HistogramVec
	cacheTotal         *prometheus.CounterVec
}

var (
	authzMetricsInstance *AuthzMetrics
	authzMetricsOnce     sync.Once
)

// GetAuthzMetrics returns the singleton authorization metrics instance.
func GetAuthzMetrics() *AuthzMetrics {
	authzMetricsOnce.Do(func() {
		authzMetricsInstance = newAuthzMetrics()
	})
	return authzMetricsInstance
}

// MustRegister registers all authorization metric collectors with the
// given Prometheus registry. promauto registers with the default
// global registry; call this to expose the metrics on a custom one.
func (m *AuthzMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.decisionsTotal,
		m.decisionDuration,
		m.resolutionDuration,
		m.cacheTotal,
	)
}

// Init pre-initializes common label combinations with zero values so
// the metrics appear in scrape output immediately after startup.
// Idempotent.
func (m *AuthzMetrics) Init() {
	m.decisionsTotal.WithLabelValues("allowed", "granted")
	for _, reason := range []string{
		ReasonUnknownCredential,
		ReasonCredentialExpired,
		ReasonCredentialDisabled,
		ReasonInsufficientPermissions,
		ReasonResolutionFailure,
	} {
		m.decisionsTotal.WithLabelValues("denied", reason)
	}
	for _, kind := range []string{"principal", "role"} {
		m.resolutionDuration.WithLabelValues(kind)
		m.cacheTotal.WithLabelValues(kind, "hit")
		m.cacheTotal.WithLabelValues(kind, "miss")
	}
}

func newAuthzMetrics() *AuthzMetrics {
	return &AuthzMetrics{
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekit",
				Subsystem: "authz",
				Name:      "decisions_total",
				Help:      "Total number of authorization decisions",
			},
			[]string{"result", "reason"},
		),
		decisionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gatekit",
				Subsystem: "authz",
				Name:      "decision_duration_seconds",
				Help:      "End-to-end duration of authorization decisions",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1, .25, .5, 1,
				},
			},
		),
		resolutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gatekit",
				Subsystem: "authz",
				Name:      "resolution_duration_seconds",
				Help:      "Duration of principal and role resolution",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1, .25, .5, 1,
				},
			},
			[]string{"kind"},
		),
		cacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekit",
				Subsystem: "authz",
				Name:      "cache_total",
				Help:      "Resolution cache lookups by outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}
