package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &buf))
	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.Contains(t, buf.String(), "OpenTelemetry is disabled")
}

func TestOTelProviders_ShutdownNil(t *testing.T) {
	var providers *OTelProviders
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestOTelProviders_Shutdown(t *testing.T) {
	providers := &OTelProviders{TracerProvider: sdktrace.NewTracerProvider()}
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("no span", func(t *testing.T) {
		assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))
	})

	t.Run("recording span", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf.Reset()
		UpdateLoggerWithTraceContext(ctx, logger).Info("traced")
		assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
	})
}
