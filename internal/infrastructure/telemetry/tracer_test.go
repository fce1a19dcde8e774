package telemetry_test

import (
	"context"
	"testing"

	"github.com/campus/portal/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap/zaptest"
)

// keepGlobalProvider restores the global tracer provider when the test ends.
func keepGlobalProvider(t *testing.T) {
	t.Helper()
	original := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(original) })
}

func TestNewTracerProvider_DisabledWithoutEndpoint(t *testing.T) {
	keepGlobalProvider(t)
	before := otel.GetTracerProvider()

	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracerConfig{SamplingRatio: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.Enabled())
	assert.Same(t, before, otel.GetTracerProvider())
	assert.NoError(t, tp.ForceFlush(context.Background()))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_ExportsSpans(t *testing.T) {
	keepGlobalProvider(t)
	exp := tracetest.NewInMemoryExporter()

	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracerConfig{
		SamplingRatio:  1,
		ServiceName:    "portalctl",
		ServiceVersion: "1.2.3",
	}, zaptest.NewLogger(t), telemetry.WithExporter(exp))
	require.NoError(t, err)
	require.True(t, tp.Enabled())

	_, span := telemetry.StartSpan(context.Background(), "resource.list")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "resource.list", spans[0].Name)
	assert.Equal(t, telemetry.TracerName, spans[0].InstrumentationScope.Name)

	attrs := map[string]string{}
	for _, kv := range spans[0].Resource.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "portalctl", attrs[string(semconv.ServiceNameKey)])
	assert.Equal(t, "1.2.3", attrs[string(semconv.ServiceVersionKey)])

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_ZeroRatioSamplesNothing(t *testing.T) {
	keepGlobalProvider(t)
	exp := tracetest.NewInMemoryExporter()

	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracerConfig{SamplingRatio: 0}, nil, telemetry.WithExporter(exp))
	require.NoError(t, err)

	_, span := telemetry.StartSpan(context.Background(), "resource.get")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))
	assert.Empty(t, exp.GetSpans())
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_OTLPEndpoint(t *testing.T) {
	keepGlobalProvider(t)

	// The gRPC exporter dials lazily, so no collector is needed until spans
	// are exported.
	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracerConfig{
		OTLPEndpoint:  "127.0.0.1:4317",
		Insecure:      true,
		SamplingRatio: 0.5,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tp.Enabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
}
