package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherConfigYAML = `
logging:
  level: info
store:
  backend: memory
`

const watcherUpdatedYAML = `
logging:
  level: debug
store:
  backend: memory
`

const watcherInvalidYAML = `
store:
  backend: cassandra
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, watcherConfigYAML)

	w, err := NewWatcher(path, func(*Config) {})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 100*time.Millisecond, w.debounceDelay)

	require.NoError(t, w.watcher.Close())
}

func TestWatcherStartLoadsConfig(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, watcherConfigYAML)

	w, err := NewWatcher(path, func(*Config) {})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	cfg := w.Config()
	require.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestWatcherStartInvalidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, watcherInvalidYAML)

	w, err := NewWatcher(path, func(*Config) {})
	require.NoError(t, err)

	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.watcher.Close())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, watcherConfigYAML)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, WithDebounceDelay(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte(watcherUpdatedYAML), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "debug", w.Config().Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherKeepsLastGoodConfig(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, watcherConfigYAML)

	var errCount atomic.Int32
	errSeen := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(*Config) {},
		WithDebounceDelay(20*time.Millisecond),
		WithErrorCallback(func(error) {
			errCount.Add(1)
			select {
			case errSeen <- struct{}{}:
			default:
			}
		}))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte(watcherInvalidYAML), 0o644))

	select {
	case <-errSeen:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}

	// The previous configuration stays in effect.
	assert.Equal(t, "info", w.Config().Logging.Level)
	assert.GreaterOrEqual(t, errCount.Load(), int32(1))
}

func TestWatcherStopIdempotent(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, watcherConfigYAML)

	w, err := NewWatcher(path, func(*Config) {})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
