package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefabric/gatekit/observability"
)

// setupMiniRedis creates a miniredis server for testing.
func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func newTestRedisCache(t *testing.T, mr *miniredis.Miniredis, redisCfg *RedisConfig) *redisCache {
	t.Helper()

	if redisCfg == nil {
		redisCfg = &RedisConfig{}
	}
	if redisCfg.URL == "" {
		redisCfg.URL = "redis://" + mr.Addr()
	}

	c, err := newRedisCache(&Config{
		Enabled: true,
		Type:    TypeRedis,
		TTL:     5 * time.Minute,
		Redis:   redisCfg,
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRedisCache(t *testing.T) {
	mr := setupMiniRedis(t)

	tests := []struct {
		name      string
		redis     *RedisConfig
		expectErr bool
	}{
		{
			name:  "valid config",
			redis: &RedisConfig{URL: "redis://" + mr.Addr()},
		},
		{
			name: "with pool and timeouts",
			redis: &RedisConfig{
				URL:            "redis://" + mr.Addr(),
				PoolSize:       10,
				ConnectTimeout: 5 * time.Second,
				ReadTimeout:    3 * time.Second,
				WriteTimeout:   3 * time.Second,
			},
		},
		{
			name:  "with key prefix",
			redis: &RedisConfig{URL: "redis://" + mr.Addr(), KeyPrefix: "test:"},
		},
		{
			name:      "nil redis config",
			redis:     nil,
			expectErr: true,
		},
		{
			name:      "empty URL",
			redis:     &RedisConfig{},
			expectErr: true,
		},
		{
			name:      "invalid URL",
			redis:     &RedisConfig{URL: "invalid://url"},
			expectErr: true,
		},
		{
			name:      "connection failed",
			redis:     &RedisConfig{URL: "redis://localhost:59999"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newRedisCache(&Config{
				Enabled: true,
				Type:    TypeRedis,
				TTL:     5 * time.Minute,
				Redis:   tt.redis,
			}, observability.NopLogger())

			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
			_ = c.Close()
		})
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	_, err = c.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, &RedisConfig{KeyPrefix: "acl:"})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	assert.True(t, mr.Exists("acl:k"))
}

func TestRedisCache_HashKeys(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, &RedisConfig{HashKeys: true})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "credential:secret-token", []byte("v"), time.Minute))

	// The raw key never reaches the keyspace.
	assert.False(t, mr.Exists("gatekit:credential:secret-token"))
	assert.True(t, mr.Exists("gatekit:"+HashKey("credential:secret-token")))

	got, err := c.Get(ctx, "credential:secret-token")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestRedisCache_Expiry(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	// miniredis advances TTLs manually.
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Delete(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, c.Delete(ctx, "k"))
}

func TestRedisCache_Exists(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisCache_Stats(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "absent")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := setupMiniRedis(t)
	c := newTestRedisCache(t, mr, nil)
	ctx := context.Background()

	mr.Close()

	_, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestIsRetryableRedisError(t *testing.T) {
	t.Parallel()

	assert.False(t, isRetryableRedisError(nil))
	assert.False(t, isRetryableRedisError(context.Canceled))
	assert.False(t, isRetryableRedisError(context.DeadlineExceeded))
	assert.True(t, isRetryableRedisError(assert.AnError))
}
