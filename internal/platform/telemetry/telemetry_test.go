package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/phrazzld/formrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)

	_, span := p.Tracer.Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_ExportsSpansToWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: true, ServiceName: "formrelay-test"}, &buf)
	require.NoError(t, err)

	_, span := p.Tracer.Start(context.Background(), "task.execute")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "task.execute")
	assert.Contains(t, buf.String(), "formrelay-test")
}

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics(Noop().Meter)
	require.NoError(t, err)
	assert.NotNil(t, m.TasksClaimed)
	assert.NotNil(t, m.TaskOutcomes)
	assert.NotNil(t, m.TaskDuration)
	assert.NotNil(t, m.TasksSwept)
}
