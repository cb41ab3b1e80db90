package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "test", Enabled: false})

	require.NoError(t, err)
	assert.NotNil(t, tracer.Tracer())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "test",
		SamplingRate: 0.5,
		Enabled:      true,
	})

	require.NoError(t, err)
	assert.NotNil(t, tracer.Tracer())

	_, span := tracer.Tracer().Start(context.Background(), "op")
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
	}{
		{"always", 1.0},
		{"never", 0},
		{"ratio", 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotNil(t, createSampler(tt.rate))
		})
	}
}
