package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"default config", DefaultLogConfig(), false},
		{"console format", LogConfig{Level: "debug", Format: "console", Output: "stderr"}, false},
		{"invalid level", LogConfig{Level: "verbose", Format: "json", Output: "stdout"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLogger_With(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	child := logger.With(String("component", "store"))

	assert.NotNil(t, child)
	child.Info("should not panic", Int("attempt", 1))
}

func TestLogger_WithContext_NoSpan(t *testing.T) {
	t.Parallel()

	logger := NopLogger()

	// Without an active span the same logger is returned.
	assert.Equal(t, logger, logger.WithContext(context.Background()))
}

func TestGlobalLogger(t *testing.T) {
	logger := NopLogger()
	SetGlobalLogger(logger)

	assert.Equal(t, logger, GetGlobalLogger())
	assert.Equal(t, logger, L())
}

func TestGlobalLogger_Unset(t *testing.T) {
	SetGlobalLogger(nil)

	assert.NotNil(t, GetGlobalLogger())
}
