// Package cache provides bounded-TTL caching for resolution results.
//
// The cache package implements in-memory caching and Redis-based
// distributed caching for principal and role resolution. It supports:
//
//   - In-memory LRU cache with configurable size
//   - Redis-based distributed cache
//   - Configurable TTL per entry with jitter
//   - SHA-256 key hashing to keep credentials out of the keyspace
//   - Centralized retry logic with exponential backoff
//   - OpenTelemetry tracing for cache operations
//   - Prometheus metrics
//
// # Example Usage
//
//	cfg := &cache.Config{
//	    Enabled:    true,
//	    Type:       cache.TypeMemory,
//	    TTL:        5 * time.Minute,
//	    MaxEntries: 10000,
//	}
//
//	c, err := cache.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Set(ctx, "key", []byte("value"), 5*time.Minute)
//	value, err := c.Get(ctx, "key")
//
// # Thread Safety
//
// All cache implementations are safe for concurrent use.
package cache
