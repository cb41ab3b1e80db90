// Package breaker adds circuit-breaker protection in front of a store
// backend. When the backend keeps failing, the circuit opens and calls
// fail fast without touching the backend, which keeps a struggling
// store from being hammered by retries.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/corefabric/gatekit/observability"
	"github.com/corefabric/gatekit/store"
)

// breakerTracerName is the OTEL tracer used for state change events.
const breakerTracerName = "gatekit/breaker"

// ErrOpen is returned, wrapped as a transient store error, when the
// circuit rejects a call without executing it.
var ErrOpen = errors.New("circuit breaker open")

// StateFunc is called when the circuit changes state.
type StateFunc func(name string, from, to gobreaker.State)

// Backend decorates a store.Backend with a shared circuit breaker.
type Backend struct {
	next          store.Backend
	cb            *gobreaker.CircuitBreaker
	logger        observability.Logger
	stateCallback StateFunc
}

var _ store.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithStateCallback sets a callback invoked on state transitions.
func WithStateCallback(fn StateFunc) Option {
	return func(b *Backend) {
		b.stateCallback = fn
	}
}

// Wrap wraps a store backend with a circuit breaker. The name labels
// metrics and log lines when several breakers share a process.
func Wrap(next store.Backend, name string, cfg *Config, opts ...Option) *Backend {
	b := &Backend{
		next:   next,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	minRequests := cfg.GetMinRequests()
	failureRatio := cfg.GetFailureRatio()

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.GetHalfOpenMax(),
		Interval:    cfg.GetInterval(),
		Timeout:     cfg.GetTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)

			GetBreakerMetrics().transitionsTotal.WithLabelValues(
				name, from.String(), to.String(),
			).Inc()

			// Record an OTEL span event so the transition shows up in
			// traces that trigger it.
			_, span := otel.Tracer(breakerTracerName).Start(context.Background(),
				"breaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("breaker.name", name),
				attribute.String("breaker.from", from.String()),
				attribute.String("breaker.to", to.String()),
			))
			span.End()

			if b.stateCallback != nil {
				b.stateCallback(name, from, to)
			}
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// isSuccessful reports whether an error counts against the circuit.
// Only infrastructure failures do: not-found, conflicts and rejected
// requests are the backend answering, and caller cancellation is not
// the backend's fault.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return store.Classify(err) != store.ClassTransient
}

// State returns the current circuit state.
func (b *Backend) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the current request counts in the sampling window.
func (b *Backend) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

func (b *Backend) execute(fn func() (any, error)) (any, error) {
	GetBreakerMetrics().requestsTotal.WithLabelValues(
		b.cb.Name(), b.cb.State().String(),
	).Inc()

	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		GetBreakerMetrics().rejectedTotal.WithLabelValues(b.cb.Name()).Inc()
		// Transient: the call never reached the backend, so retrying
		// after the open interval is always safe.
		return nil, store.Transient(ErrOpen)
	}
	return out, err
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, resourceType, key string) (*store.Record, error) {
	out, err := b.execute(func() (any, error) {
		return b.next.Get(ctx, resourceType, key)
	})
	if err != nil {
		return nil, err
	}
	return out.(*store.Record), nil
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, resourceType, key string, payload []byte, expectedVersion int64) (int64, error) {
	out, err := b.execute(func() (any, error) {
		return b.next.Put(ctx, resourceType, key, payload, expectedVersion)
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, resourceType, key string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Delete(ctx, resourceType, key)
	})
	return err
}

// Query implements store.Backend. The breaker guards opening the
// query; iteration errors surface through the iterator unguarded.
func (b *Backend) Query(ctx context.Context, resourceType string, filter store.Filter) (store.Iterator, error) {
	out, err := b.execute(func() (any, error) {
		return b.next.Query(ctx, resourceType, filter)
	})
	if err != nil {
		return nil, err
	}
	return out.(store.Iterator), nil
}

// Config holds circuit breaker settings.
type Config struct {
	// MinRequests is the minimum number of requests in the sampling
	// window before the circuit can trip. Default is 5.
	MinRequests uint32 `yaml:"minRequests"`

	// FailureRatio is the failure ratio at or above which the circuit
	// opens (0.0 to 1.0). Default is 0.5.
	FailureRatio float64 `yaml:"failureRatio"`

	// Timeout is how long the circuit stays open before probing the
	// backend again. Default is 30s.
	Timeout time.Duration `yaml:"timeout"`

	// Interval is the sampling window in the closed state. Default is
	// 60s.
	Interval time.Duration `yaml:"interval"`

	// HalfOpenMax is how many probe requests the half-open state
	// admits. Default is 1.
	HalfOpenMax uint32 `yaml:"halfOpenMax"`
}

// Default circuit breaker settings.
const (
	DefaultMinRequests  uint32 = 5
	DefaultFailureRatio        = 0.5
	DefaultTimeout             = 30 * time.Second
	DefaultInterval            = 60 * time.Second
	DefaultHalfOpenMax  uint32 = 1
)

// GetMinRequests returns the effective minimum request count.
func (c *Config) GetMinRequests() uint32 {
	if c == nil || c.MinRequests == 0 {
		return DefaultMinRequests
	}
	return c.MinRequests
}

// GetFailureRatio returns the effective failure ratio.
func (c *Config) GetFailureRatio() float64 {
	if c == nil || c.FailureRatio <= 0 || c.FailureRatio > 1 {
		return DefaultFailureRatio
	}
	return c.FailureRatio
}

// GetTimeout returns the effective open-state timeout.
func (c *Config) GetTimeout() time.Duration {
	if c == nil || c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// GetInterval returns the effective closed-state sampling interval.
func (c *Config) GetInterval() time.Duration {
	if c == nil || c.Interval <= 0 {
		return DefaultInterval
	}
	return c.Interval
}

// GetHalfOpenMax returns the effective half-open request allowance.
func (c *Config) GetHalfOpenMax() uint32 {
	if c == nil || c.HalfOpenMax == 0 {
		return DefaultHalfOpenMax
	}
	return c.HalfOpenMax
}
