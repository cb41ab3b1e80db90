package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNil(t *testing.T) {
	t.Parallel()

	err := Validate(nil)
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantMsg: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantMsg: "logging.format",
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantMsg: "tracing.samplingRate",
		},
		{
			name: "tracing enabled without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.OTLPEndpoint = ""
			},
			wantMsg: "tracing.otlpEndpoint",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "cassandra" },
			wantMsg: "store.backend",
		},
		{
			name:    "dynamodb without table",
			mutate:  func(c *Config) { c.Store.Backend = BackendDynamoDB },
			wantMsg: "store.dynamodb.table",
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Store.MaxAttempts = -1 },
			wantMsg: "store.maxAttempts",
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *Config) { c.Store.JitterFactor = 2 },
			wantMsg: "store.jitterFactor",
		},
		{
			name: "max backoff below initial",
			mutate: func(c *Config) {
				c.Store.InitialBackoff = Duration(1000)
				c.Store.MaxBackoff = Duration(500)
			},
			wantMsg: "store.maxBackoff",
		},
		{
			name: "breaker ratio out of range",
			mutate: func(c *Config) {
				c.Store.Breaker = &BreakerConfig{Enabled: true, FailureRatio: 1.5}
			},
			wantMsg: "store.breaker.failureRatio",
		},
		{
			name:    "unknown scheme",
			mutate:  func(c *Config) { c.Authz.Scheme = "plaintext" },
			wantMsg: "authz.scheme",
		},
		{
			name: "redis cache without URL",
			mutate: func(c *Config) {
				c.Authz.PrincipalCache = &CacheConfig{Enabled: true, Type: "redis"}
			},
			wantMsg: "authz.principalCache.redis.url",
		},
		{
			name: "unknown cache type",
			mutate: func(c *Config) {
				c.Authz.RoleCache = &CacheConfig{Enabled: true, Type: "memcached"}
			},
			wantMsg: "authz.roleCache.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	cfg.Store.Backend = "cassandra"
	cfg.Authz.Scheme = "plaintext"

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
}

func TestValidateDisabledCacheSkipped(t *testing.T) {
	t.Parallel()

	// A disabled cache is not validated: its settings are inert.
	cfg := DefaultConfig()
	cfg.Authz.PrincipalCache = &CacheConfig{Enabled: false, Type: "memcached"}
	require.NoError(t, Validate(cfg))
}
