package cache

import "time"

// Supported cache backends.
const (
	// TypeMemory selects the in-process LRU cache.
	TypeMemory = "memory"

	// TypeRedis selects the Redis-backed cache.
	TypeRedis = "redis"
)

// Config configures a cache instance. The zero value disables caching.
type Config struct {
	// Enabled turns caching on. When false New returns a cache whose
	// operations report ErrCacheDisabled.
	Enabled bool `yaml:"enabled"`

	// Type selects the backend: "memory" (default) or "redis".
	Type string `yaml:"type"`

	// TTL is the default time-to-live for entries stored without an
	// explicit TTL.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the in-memory cache. Ignored by Redis.
	MaxEntries int `yaml:"maxEntries"`

	// Redis configures the Redis backend. Required when Type is
	// "redis".
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	// URL is the Redis connection URL, e.g. redis://localhost:6379/0.
	URL string `yaml:"url"`

	// KeyPrefix is prepended to every cache key. Defaults to
	// "gatekit:".
	KeyPrefix string `yaml:"keyPrefix"`

	// TTLJitter is the maximum fractional variation applied to TTLs
	// (0.0 to 1.0) to avoid synchronized expiry.
	TTLJitter float64 `yaml:"ttlJitter"`

	// HashKeys stores keys as SHA-256 digests. Useful when keys embed
	// credential material that must not appear in the keyspace.
	HashKeys bool `yaml:"hashKeys"`

	// PoolSize overrides the client connection pool size.
	PoolSize int `yaml:"poolSize"`

	// ConnectTimeout overrides the dial timeout.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// ReadTimeout overrides the read timeout.
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// WriteTimeout overrides the write timeout.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}
