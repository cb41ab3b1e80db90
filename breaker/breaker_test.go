package breaker_test

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefabric/gatekit/breaker"
	"github.com/corefabric/gatekit/store"
	"github.com/corefabric/gatekit/store/memstore"
)

func newOpenableBackend(t *testing.T) (*breaker.Backend, *memstore.Backend) {
	t.Helper()

	mem := memstore.New()
	wrapped := breaker.Wrap(mem, t.Name(), &breaker.Config{
		MinRequests:  3,
		FailureRatio: 0.5,
		Timeout:      time.Hour,
	})
	return wrapped, mem
}

func seed(t *testing.T, backend store.Backend, key string) {
	t.Helper()

	_, err := backend.Put(context.Background(), "docs", key, []byte(`{"v":1}`), store.NoVersion)
	require.NoError(t, err)
}

func TestPassthrough(t *testing.T) {
	t.Parallel()

	wrapped, _ := newOpenableBackend(t)
	ctx := context.Background()

	version, err := wrapped.Put(ctx, "docs", "a", []byte(`{"v":1}`), store.NoVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	rec, err := wrapped.Get(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Key)

	it, err := wrapped.Query(ctx, "docs", store.Filter{})
	require.NoError(t, err)
	defer it.Close()
	rec, err = it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Key)

	require.NoError(t, wrapped.Delete(ctx, "docs", "a"))
	assert.Equal(t, gobreaker.StateClosed, wrapped.State())
}

func TestOpensAfterFailures(t *testing.T) {
	t.Parallel()

	wrapped, mem := newOpenableBackend(t)
	ctx := context.Background()
	seed(t, mem, "a")

	mem.FailNext("get",
		store.Transient(assert.AnError),
		store.Transient(assert.AnError),
		store.Transient(assert.AnError),
	)
	for i := 0; i < 3; i++ {
		_, err := wrapped.Get(ctx, "docs", "a")
		require.Error(t, err)
		require.NotErrorIs(t, err, breaker.ErrOpen)
	}
	require.Equal(t, gobreaker.StateOpen, wrapped.State())

	// The record is reachable again, but the open circuit rejects the
	// call without touching the backend.
	_, err := wrapped.Get(ctx, "docs", "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, store.ClassTransient, store.Classify(err))
}

func TestExpectedErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	wrapped, mem := newOpenableBackend(t)
	ctx := context.Background()
	seed(t, mem, "a")

	// Not-found and version conflicts are the backend answering, not
	// failing.
	for i := 0; i < 10; i++ {
		_, err := wrapped.Get(ctx, "docs", "missing")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = wrapped.Put(ctx, "docs", "a", []byte(`{"v":2}`), 99)
		require.Error(t, err)
		require.Equal(t, store.ClassConflict, store.Classify(err))
	}

	assert.Equal(t, gobreaker.StateClosed, wrapped.State())
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	mem := memstore.New()
	wrapped := breaker.Wrap(mem, t.Name(), &breaker.Config{
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      20 * time.Millisecond,
	})
	ctx := context.Background()
	seed(t, mem, "a")

	mem.FailNext("get",
		store.Transient(assert.AnError),
		store.Transient(assert.AnError),
	)
	for i := 0; i < 2; i++ {
		_, err := wrapped.Get(ctx, "docs", "a")
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, wrapped.State())

	time.Sleep(40 * time.Millisecond)

	// The half-open probe succeeds and closes the circuit.
	_, err := wrapped.Get(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, wrapped.State())
}

func TestStateCallback(t *testing.T) {
	t.Parallel()

	var transitions []gobreaker.State
	mem := memstore.New()
	wrapped := breaker.Wrap(mem, t.Name(), &breaker.Config{
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Hour,
	}, breaker.WithStateCallback(func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}))
	ctx := context.Background()

	mem.FailNext("get",
		store.Transient(assert.AnError),
		store.Transient(assert.AnError),
	)
	seed(t, mem, "a")
	for i := 0; i < 2; i++ {
		_, _ = wrapped.Get(ctx, "docs", "a")
	}

	require.Len(t, transitions, 1)
	assert.Equal(t, gobreaker.StateOpen, transitions[0])
}

func TestCancellationDoesNotTrip(t *testing.T) {
	t.Parallel()

	wrapped, mem := newOpenableBackend(t)
	seed(t, mem, "a")

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 10; i++ {
		mem.FailNext("get", context.Canceled)
		_, err := wrapped.Get(canceled, "docs", "a")
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, gobreaker.StateClosed, wrapped.State())
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var nilCfg *breaker.Config
	assert.Equal(t, breaker.DefaultMinRequests, nilCfg.GetMinRequests())
	assert.Equal(t, breaker.DefaultFailureRatio, nilCfg.GetFailureRatio())
	assert.Equal(t, breaker.DefaultTimeout, nilCfg.GetTimeout())
	assert.Equal(t, breaker.DefaultInterval, nilCfg.GetInterval())
	assert.Equal(t, breaker.DefaultHalfOpenMax, nilCfg.GetHalfOpenMax())

	cfg := &breaker.Config{
		MinRequests:  10,
		FailureRatio: 0.9,
		Timeout:      time.Second,
		Interval:     2 * time.Second,
		HalfOpenMax:  3,
	}
	assert.Equal(t, uint32(10), cfg.GetMinRequests())
	assert.Equal(t, 0.9, cfg.GetFailureRatio())
	assert.Equal(t, time.Second, cfg.GetTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetInterval())
	assert.Equal(t, uint32(3), cfg.GetHalfOpenMax())

	// Out-of-range ratios fall back.
	assert.Equal(t, breaker.DefaultFailureRatio, (&breaker.Config{FailureRatio: 1.5}).GetFailureRatio())
}
