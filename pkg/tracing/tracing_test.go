package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_DisabledStillInstallsPropagator(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())

	shutdown, err := Init(context.Background(), DefaultConfig("facetsearch"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestInit_EnabledRegistersSDKProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := DefaultConfig("facetsearch")
	cfg.Enabled = true
	cfg.Environment = "test"
	// Export is batched, so an unreachable collector only fails on flush.
	cfg.OTLPEndpoint = "127.0.0.1:0"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
}

func TestInit_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.Enabled = true
	cfg.SampleRate = 1.5

	_, err := Init(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "service name is required")
	assert.ErrorContains(t, err, "sample rate 1.50 outside [0, 1]")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "disabled skips checks", mutate: func(c *Config) { c.OTLPEndpoint = "" }},
		{name: "enabled defaults", mutate: func(c *Config) { c.Enabled = true }},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.Enabled = true; c.OTLPEndpoint = "" },
			wantErr: "otlp endpoint is required",
		},
		{
			name:    "negative rate",
			mutate:  func(c *Config) { c.Enabled = true; c.SampleRate = -0.1 },
			wantErr: "outside [0, 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("facetsearch")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate   float64
		prefix string
	}{
		{rate: 1, prefix: "ParentBased{root:AlwaysOnSampler"},
		{rate: 2, prefix: "ParentBased{root:AlwaysOnSampler"},
		{rate: 0, prefix: "ParentBased{root:AlwaysOffSampler"},
		{rate: 0.25, prefix: "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		assert.Contains(t, Sampler(tt.rate).Description(), tt.prefix, "rate %v", tt.rate)
	}
}

func TestTracerAndTraceID(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := Tracer("search").Start(context.Background(), "Search")
	id := TraceID(ctx)
	span.End()

	require.Len(t, rec.Ended(), 1)
	ended := rec.Ended()[0]
	assert.Equal(t, InstrumentationPrefix+"search", ended.InstrumentationScope().Name)
	assert.Equal(t, ended.SpanContext().TraceID().String(), id)
	assert.Len(t, id, 32)
	assert.True(t, trace.SpanContextFromContext(ctx).IsSampled())
}
