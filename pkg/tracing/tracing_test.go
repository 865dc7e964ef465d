package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("user-management")
	assert.Equal(t, "user-management", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
}

func TestInitTracer_DisabledInstallsPropagator(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("svc"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestInitTracer_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := DefaultConfig("svc")
	cfg.Enabled = true
	cfg.OTLPEndpoint = "127.0.0.1:0"

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected an SDK tracer provider, got %T", otel.GetTracerProvider())

	// The collector is unreachable; only the call itself matters here.
	_ = shutdown(context.Background())
}

func TestNewSampler(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	tests := []struct {
		rate float64
		want sdktrace.SamplingDecision
	}{
		{1, sdktrace.RecordAndSample},
		{5, sdktrace.RecordAndSample},
		{0, sdktrace.Drop},
		{-1, sdktrace.Drop},
	}
	for _, tt := range tests {
		got := newSampler(tt.rate).ShouldSample(sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       traceID,
			Name:          "op",
		})
		assert.Equal(t, tt.want, got.Decision, "rate %v", tt.rate)
	}
}

func TestNewSampler_FollowsSampledParent(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	got := newSampler(0).ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent,
		TraceID:       traceID,
		Name:          "op",
	})
	assert.Equal(t, sdktrace.RecordAndSample, got.Decision)
}

func TestTracer(t *testing.T) {
	_, span := Tracer("component").Start(context.Background(), "op")
	defer span.End()
	assert.NotNil(t, span)
}
