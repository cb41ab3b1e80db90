package store

import (
	"time"

	"github.com/corefabric/gatekit/retry"
)

// Default configuration constants.
const (
	// DefaultMaxAttempts is the default total attempt budget per operation.
	DefaultMaxAttempts = retry.DefaultMaxAttempts

	// DefaultQueryInChunkSize is the chunk size for QueryIn filters.
	DefaultQueryInChunkSize = 10

	// DefaultQueryInConcurrency bounds parallel chunk fetches in QueryIn.
	DefaultQueryInConcurrency = 4
)

// Config contains resilient store configuration.
type Config struct {
	// MaxAttempts is the total attempt budget per operation, including
	// the first try. Default is 3.
	MaxAttempts int

	// InitialBackoff is the backoff before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff between attempts.
	MaxBackoff time.Duration

	// JitterFactor randomizes backoffs to avoid thundering-herd retries
	// across concurrent callers (0.0 to 1.0).
	JitterFactor float64

	// RateLimit throttles backend calls to the given requests per
	// second across all operations. Zero disables throttling.
	RateLimit float64

	// RateBurst is the burst size for the rate limiter. Defaults to
	// max(1, ceil(RateLimit)) when zero.
	RateBurst int

	// QueryInChunkSize is the number of values per "in" filter chunk.
	QueryInChunkSize int

	// QueryInConcurrency bounds how many chunks QueryIn fetches in
	// parallel.
	QueryInConcurrency int
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:        DefaultMaxAttempts,
		InitialBackoff:     retry.DefaultInitialBackoff,
		MaxBackoff:         retry.DefaultMaxBackoff,
		JitterFactor:       retry.DefaultJitterFactor,
		QueryInChunkSize:   DefaultQueryInChunkSize,
		QueryInConcurrency: DefaultQueryInConcurrency,
	}
}

// retryConfig converts the store configuration to a retry configuration.
func (c *Config) retryConfig() *retry.Config {
	if c == nil {
		return retry.DefaultConfig()
	}
	return &retry.Config{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		JitterFactor:   c.JitterFactor,
	}
}

// GetQueryInChunkSize returns the effective QueryIn chunk size.
func (c *Config) GetQueryInChunkSize() int {
	if c == nil || c.QueryInChunkSize <= 0 {
		return DefaultQueryInChunkSize
	}
	return c.QueryInChunkSize
}

// GetQueryInConcurrency returns the effective QueryIn concurrency bound.
func (c *Config) GetQueryInConcurrency() int {
	if c == nil || c.QueryInConcurrency <= 0 {
		return DefaultQueryInConcurrency
	}
	return c.QueryInConcurrency
}

// GetRateBurst returns the effective rate limiter burst.
func (c *Config) GetRateBurst() int {
	if c == nil {
		return 1
	}
	if c.RateBurst > 0 {
		return c.RateBurst
	}
	burst := int(c.RateLimit)
	if float64(burst) < c.RateLimit {
		burst++
	}
	if burst < 1 {
		burst = 1
	}
	return burst
}
