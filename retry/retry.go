package retry

import (
	"context"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxAttempts is the default total attempt budget.
	DefaultMaxAttempts = 3

	// DefaultInitialBackoff is the default initial backoff duration.
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultMaxBackoff is the default maximum backoff duration.
	DefaultMaxBackoff = 30 * time.Second

	// DefaultJitterFactor is the default jitter factor (25%).
	DefaultJitterFactor = 0.25

	// MaxJitterFactor is the maximum allowed jitter factor.
	MaxJitterFactor = 1.0
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxAttempts is the total attempt budget, including the first try.
	// Once it is spent the last error is returned. Default is 3.
	MaxAttempts int

	// InitialBackoff is the backoff before the second attempt.
	// Default is 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff between attempts. Default is 30s.
	MaxBackoff time.Duration

	// JitterFactor randomizes each backoff by up to the given fraction
	// (0.0 to 1.0) to avoid synchronized retries. Default is 0.25.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// GetMaxAttempts returns the effective attempt budget.
func (c *Config) GetMaxAttempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// GetInitialBackoff returns the effective initial backoff.
func (c *Config) GetInitialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

// GetMaxBackoff returns the effective max backoff.
func (c *Config) GetMaxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

// GetJitterFactor returns the effective jitter factor.
func (c *Config) GetJitterFactor() float64 {
	if c == nil || c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}
	if c.JitterFactor > MaxJitterFactor {
		return MaxJitterFactor
	}
	return c.JitterFactor
}

// Func is an attempt of the operation being retried.
type Func func(ctx context.Context) error

// ShouldRetryFunc reports whether an error should trigger another attempt.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each backoff sleep. attempt is the number
// of the attempt that just failed, starting at 1.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// SleepFunc waits for the given duration or until the context is done.
// It exists so tests can substitute a fake clock.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry decides whether an error is retryable.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each backoff sleep.
	OnRetry OnRetryFunc

	// Backoff overrides the backoff strategy derived from the Config.
	Backoff Backoff

	// Sleep overrides the real-time sleep between attempts.
	Sleep SleepFunc
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// context is canceled, or the attempt budget is exhausted. The last
// error observed is returned on exhaustion; callers decide how to wrap
// it.
func Do(ctx context.Context, cfg *Config, fn Func, opts *Options) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	maxAttempts := cfg.GetMaxAttempts()

	var backoff Backoff
	var sleep SleepFunc
	if opts != nil && opts.Backoff != nil {
		backoff = opts.Backoff
	} else {
		backoff = NewExponentialBackoff(
			cfg.GetInitialBackoff(),
			cfg.GetMaxBackoff(),
			2.0,
			cfg.GetJitterFactor(),
		)
	}
	if opts != nil && opts.Sleep != nil {
		sleep = opts.Sleep
	} else {
		sleep = realSleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		// No sleep after the final attempt.
		if attempt < maxAttempts {
			wait := backoff.Next(attempt - 1)

			if opts != nil && opts.OnRetry != nil {
				opts.OnRetry(attempt, lastErr, wait)
			}

			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	return lastErr
}

// realSleep waits on the wall clock, aborting early on context cancellation.
func realSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
