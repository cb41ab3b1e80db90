package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefabric/gatekit/store"
	"github.com/corefabric/gatekit/store/memstore"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	metric, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	out := &dto.Metric{}
	require.NoError(t, metric.Write(out))
	require.NotNil(t, out.Counter)
	return out.Counter.GetValue()
}

func TestRejectedMetric(t *testing.T) {
	t.Parallel()

	mem := memstore.New()
	wrapped := Wrap(mem, t.Name(), &Config{
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Hour,
	})
	ctx := context.Background()

	mem.FailNext("get",
		store.Transient(assert.AnError),
		store.Transient(assert.AnError),
	)
	for i := 0; i < 2; i++ {
		_, _ = wrapped.Get(ctx, "docs", "a")
	}
	require.Equal(t, gobreaker.StateOpen, wrapped.State())

	m := GetBreakerMetrics()
	before := counterValue(t, m.rejectedTotal, t.Name())

	_, err := wrapped.Get(ctx, "docs", "a")
	require.ErrorIs(t, err, ErrOpen)

	assert.Equal(t, before+1, counterValue(t, m.rejectedTotal, t.Name()))
}

func TestTransitionMetric(t *testing.T) {
	t.Parallel()

	m := GetBreakerMetrics()
	before := counterValue(t, m.transitionsTotal, t.Name(), "closed", "open")

	mem := memstore.New()
	wrapped := Wrap(mem, t.Name(), &Config{
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Hour,
	})
	ctx := context.Background()

	mem.FailNext("get",
		store.Transient(assert.AnError),
		store.Transient(assert.AnError),
	)
	for i := 0; i < 2; i++ {
		_, _ = wrapped.Get(ctx, "docs", "a")
	}
	require.Equal(t, gobreaker.StateOpen, wrapped.State())

	assert.Equal(t, before+1, counterValue(t, m.transitionsTotal, t.Name(), "closed", "open"))
}
