package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defines the interface for backoff strategies.
type Backoff interface {
	// Next returns the duration to wait after the given zero-based attempt.
	Next(attempt int) time.Duration
}

// BackoffOption configures a backoff strategy.
type BackoffOption func(*jitterSource)

// WithRandSource substitutes the random source used for jitter so tests
// can be deterministic.
func WithRandSource(src rand.Source) BackoffOption {
	return func(j *jitterSource) {
		j.rand = rand.New(src) //nolint:gosec // jitter timing is not security-sensitive
	}
}

// jitterSource is the shared randomness for jittered strategies.
type jitterSource struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func newJitterSource(opts []BackoffOption) *jitterSource {
	j := &jitterSource{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *jitterSource) float64() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rand.Float64()
}

// ExponentialBackoff implements exponential backoff with bounded uniform
// jitter: wait = min(max, initial * factor^attempt) * (1 + U[0, jitter)).
type ExponentialBackoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64
	src     *jitterSource
}

// NewExponentialBackoff creates a new exponential backoff.
func NewExponentialBackoff(initial, max time.Duration, factor, jitter float64, opts ...BackoffOption) *ExponentialBackoff {
	return &ExponentialBackoff{
		initial: initial,
		max:     max,
		factor:  factor,
		jitter:  jitter,
		src:     newJitterSource(opts),
	}
}

// Next implements Backoff.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := float64(b.initial) * math.Pow(b.factor, float64(attempt))
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	if b.jitter > 0 {
		backoff += backoff * b.jitter * b.src.float64()
		if backoff > float64(b.max) {
			backoff = float64(b.max)
		}
	}

	return time.Duration(backoff)
}

// ConstantBackoff implements constant backoff.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff creates a new constant backoff.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: interval}
}

// Next implements Backoff.
func (b *ConstantBackoff) Next(int) time.Duration {
	return b.interval
}

// FullJitterBackoff implements full jitter backoff:
// wait = U[0, min(max, initial * 2^attempt)).
type FullJitterBackoff struct {
	initial time.Duration
	max     time.Duration
	src     *jitterSource
}

// NewFullJitterBackoff creates a new full jitter backoff.
func NewFullJitterBackoff(initial, max time.Duration, opts ...BackoffOption) *FullJitterBackoff {
	return &FullJitterBackoff{
		initial: initial,
		max:     max,
		src:     newJitterSource(opts),
	}
}

// Next implements Backoff.
func (b *FullJitterBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	ceiling := float64(b.initial) * math.Pow(2, float64(attempt))
	if ceiling > float64(b.max) {
		ceiling = float64(b.max)
	}

	return time.Duration(b.src.float64() * ceiling)
}

// EqualJitterBackoff implements equal jitter backoff: half the
// exponential delay is fixed, half is uniformly random.
type EqualJitterBackoff struct {
	initial time.Duration
	max     time.Duration
	src     *jitterSource
}

// NewEqualJitterBackoff creates a new equal jitter backoff.
func NewEqualJitterBackoff(initial, max time.Duration, opts ...BackoffOption) *EqualJitterBackoff {
	return &EqualJitterBackoff{
		initial: initial,
		max:     max,
		src:     newJitterSource(opts),
	}
}

// Next implements Backoff.
func (b *EqualJitterBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	expBackoff := float64(b.initial) * math.Pow(2, float64(attempt))
	if expBackoff > float64(b.max) {
		expBackoff = float64(b.max)
	}

	half := expBackoff / 2
	return time.Duration(half + b.src.float64()*half)
}
