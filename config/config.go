package config

import (
	"github.com/corefabric/gatekit/authz"
	"github.com/corefabric/gatekit/breaker"
	"github.com/corefabric/gatekit/cache"
	"github.com/corefabric/gatekit/observability"
	"github.com/corefabric/gatekit/store"
	dynamodbstore "github.com/corefabric/gatekit/store/dynamodb"
)

// Store backend selectors.
const (
	// BackendMemory selects the in-memory backend, for tests and local
	// development.
	BackendMemory = "memory"

	// BackendDynamoDB selects the DynamoDB backend.
	BackendDynamoDB = "dynamodb"
)

// Config is the top-level configuration document.
type Config struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Authz   AuthzConfig   `yaml:"authz" json:"authz"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format" json:"format"`

	// Output is "stdout" or "stderr".
	Output string `yaml:"output" json:"output"`
}

// ToLog converts to the observability logging configuration.
func (c LoggingConfig) ToLog() observability.LogConfig {
	out := observability.DefaultLogConfig()
	if c.Level != "" {
		out.Level = c.Level
	}
	if c.Format != "" {
		out.Format = c.Format
	}
	if c.Output != "" {
		out.Output = c.Output
	}
	return out
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
}

// ToTracer converts to the observability tracer configuration.
func (c TracingConfig) ToTracer() observability.TracerConfig {
	name := c.ServiceName
	if name == "" {
		name = "gatekit"
	}
	return observability.TracerConfig{
		ServiceName:  name,
		OTLPEndpoint: c.OTLPEndpoint,
		SamplingRate: c.SamplingRate,
		Enabled:      c.Enabled,
	}
}

// StoreConfig configures the resilient store and its backend.
type StoreConfig struct {
	// Backend selects the document backend: "memory" or "dynamodb".
	Backend string `yaml:"backend" json:"backend"`

	// MaxAttempts is the total attempt budget per operation.
	MaxAttempts int `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`

	// InitialBackoff is the backoff before the second attempt.
	InitialBackoff Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`

	// MaxBackoff caps the backoff between attempts.
	MaxBackoff Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`

	// JitterFactor randomizes backoffs (0.0 to 1.0).
	JitterFactor float64 `yaml:"jitterFactor,omitempty" json:"jitterFactor,omitempty"`

	// RateLimit throttles backend calls, in requests per second.
	RateLimit float64 `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `yaml:"rateBurst,omitempty" json:"rateBurst,omitempty"`

	// QueryInChunkSize is the number of values per "in" filter chunk.
	QueryInChunkSize int `yaml:"queryInChunkSize,omitempty" json:"queryInChunkSize,omitempty"`

	// QueryInConcurrency bounds parallel chunk fetches.
	QueryInConcurrency int `yaml:"queryInConcurrency,omitempty" json:"queryInConcurrency,omitempty"`

	// DynamoDB configures the DynamoDB backend. Required when Backend
	// is "dynamodb".
	DynamoDB *DynamoDBConfig `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty"`

	// Breaker configures circuit-breaker protection for the backend.
	Breaker *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// ToStore converts to the runtime store configuration.
func (c StoreConfig) ToStore() *store.Config {
	out := store.DefaultConfig()
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoff > 0 {
		out.InitialBackoff = c.InitialBackoff.Duration()
	}
	if c.MaxBackoff > 0 {
		out.MaxBackoff = c.MaxBackoff.Duration()
	}
	if c.JitterFactor > 0 {
		out.JitterFactor = c.JitterFactor
	}
	out.RateLimit = c.RateLimit
	if c.RateBurst > 0 {
		out.RateBurst = c.RateBurst
	}
	if c.QueryInChunkSize > 0 {
		out.QueryInChunkSize = c.QueryInChunkSize
	}
	if c.QueryInConcurrency > 0 {
		out.QueryInConcurrency = c.QueryInConcurrency
	}
	return out
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	// Table is the DynamoDB table name.
	Table string `yaml:"table" json:"table"`

	// TypeIndex is the GSI used for per-type queries.
	TypeIndex string `yaml:"typeIndex,omitempty" json:"typeIndex,omitempty"`
}

// ToBackend converts to the DynamoDB backend configuration.
func (c *DynamoDBConfig) ToBackend() *dynamodbstore.Config {
	if c == nil {
		return nil
	}
	return &dynamodbstore.Config{
		TableName:     c.Table,
		TypeIndexName: c.TypeIndex,
	}
}

// BreakerConfig configures circuit-breaker protection.
type BreakerConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	MinRequests  uint32   `yaml:"minRequests,omitempty" json:"minRequests,omitempty"`
	FailureRatio float64  `yaml:"failureRatio,omitempty" json:"failureRatio,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Interval     Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	HalfOpenMax  uint32   `yaml:"halfOpenMax,omitempty" json:"halfOpenMax,omitempty"`
}

// ToBreaker converts to the runtime breaker configuration. Returns nil
// when the breaker is disabled.
func (c *BreakerConfig) ToBreaker() *breaker.Config {
	if c == nil || !c.Enabled {
		return nil
	}
	return &breaker.Config{
		MinRequests:  c.MinRequests,
		FailureRatio: c.FailureRatio,
		Timeout:      c.Timeout.Duration(),
		Interval:     c.Interval.Duration(),
		HalfOpenMax:  c.HalfOpenMax,
	}
}

// AuthzConfig configures authorization and its resolution caches.
type AuthzConfig struct {
	// Scheme is the credential scheme: "sha256" or "bcrypt".
	Scheme string `yaml:"scheme,omitempty" json:"scheme,omitempty"`

	// PrincipalTTL bounds the credential-to-principal cache.
	PrincipalTTL Duration `yaml:"principalTTL,omitempty" json:"principalTTL,omitempty"`

	// RoleTTL bounds the role definition cache.
	RoleTTL Duration `yaml:"roleTTL,omitempty" json:"roleTTL,omitempty"`

	// FailOpen allows requests when the identity store is unavailable.
	FailOpen bool `yaml:"failOpen,omitempty" json:"failOpen,omitempty"`

	// AuditEnabled emits a structured audit event per decision.
	AuditEnabled bool `yaml:"auditEnabled,omitempty" json:"auditEnabled,omitempty"`

	// PrincipalCache configures the principal resolution cache.
	PrincipalCache *CacheConfig `yaml:"principalCache,omitempty" json:"principalCache,omitempty"`

	// RoleCache configures the role definition cache.
	RoleCache *CacheConfig `yaml:"roleCache,omitempty" json:"roleCache,omitempty"`
}

// ToAuthz converts to the runtime authorization configuration.
func (c AuthzConfig) ToAuthz() *authz.Config {
	return &authz.Config{
		Scheme:       c.Scheme,
		PrincipalTTL: c.PrincipalTTL.Duration(),
		RoleTTL:      c.RoleTTL.Duration(),
		FailOpen:     c.FailOpen,
		AuditEnabled: c.AuditEnabled,
	}
}

// CacheConfig configures one cache instance.
type CacheConfig struct {
	Enabled    bool              `yaml:"enabled" json:"enabled"`
	Type       string            `yaml:"type,omitempty" json:"type,omitempty"`
	TTL        Duration          `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	MaxEntries int               `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`
	Redis      *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig configures the Redis cache backend.
type RedisCacheConfig struct {
	URL            string   `yaml:"url" json:"url"`
	KeyPrefix      string   `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
	TTLJitter      float64  `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`
	HashKeys       bool     `yaml:"hashKeys,omitempty" json:"hashKeys,omitempty"`
	PoolSize       int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`
	ReadTimeout    Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout   Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
}

// ToCache converts to the runtime cache configuration. A nil config
// yields a disabled cache.
func (c *CacheConfig) ToCache() *cache.Config {
	if c == nil {
		return &cache.Config{}
	}
	out := &cache.Config{
		Enabled:    c.Enabled,
		Type:       c.Type,
		TTL:        c.TTL.Duration(),
		MaxEntries: c.MaxEntries,
	}
	if c.Redis != nil {
		out.Redis = &cache.RedisConfig{
			URL:            c.Redis.URL,
			KeyPrefix:      c.Redis.KeyPrefix,
			TTLJitter:      c.Redis.TTLJitter,
			HashKeys:       c.Redis.HashKeys,
			PoolSize:       c.Redis.PoolSize,
			ConnectTimeout: c.Redis.ConnectTimeout.Duration(),
			ReadTimeout:    c.Redis.ReadTimeout.Duration(),
			WriteTimeout:   c.Redis.WriteTimeout.Duration(),
		}
	}
	return out
}

// DefaultConfig returns a configuration with every default applied:
// the in-memory backend, JSON logging at info level, tracing off, and
// memory-backed resolution caches.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Authz: AuthzConfig{
			Scheme:         authz.SchemeSHA256,
			PrincipalCache: &CacheConfig{Enabled: true, Type: cache.TypeMemory},
			RoleCache:      &CacheConfig{Enabled: true, Type: cache.TypeMemory},
		},
	}
}
