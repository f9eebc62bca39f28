package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitLoggerWritesJSON(t *testing.T) {
	dir := t.TempDir()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger, closeFn, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("debug line", "key", "value")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(dir, "omschat.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug line"`)
	assert.Contains(t, string(data), `"service":"omschat"`)
}

func TestInitTelemetry(t *testing.T) {
	dir := t.TempDir()
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	tracer, meter, cleanup, err := InitTelemetry(context.Background(), dir, "test")
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "test_span")
	span.End()

	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "omschat_traces.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_span")
}
