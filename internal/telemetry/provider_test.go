package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()

	res, err := newResource(cfg)
	require.NoError(t, err)
	require.NotNil(t, res)

	// Resource should contain service name attribute
	attrs := res.Attributes()
	var foundServiceName bool
	for _, attr := range attrs {
		if string(attr.Key) == "service.name" {
			assert.Equal(t, cfg.ServiceName, attr.Value.AsString())
			foundServiceName = true
		}
	}
	assert.True(t, foundServiceName, "service.name attribute not found")
}

func TestTracerProviderOption(t *testing.T) {
	opts := &tracerProviderOptions{}

	// Default should be nil
	assert.Nil(t, opts.exporter)

	// WithTraceExporter should set exporter
	WithTraceExporter(nil)(opts)
	// Since we passed nil, it should still be nil
	assert.Nil(t, opts.exporter)
}

func TestMeterProviderOption(t *testing.T) {
	opts := &meterProviderOptions{}

	// Default should be nil
	assert.Nil(t, opts.exporter)

	// WithMetricExporter should set exporter
	WithMetricExporter(nil)(opts)
	// Since we passed nil, it should still be nil
	assert.Nil(t, opts.exporter)
}

func TestNewTracerProvider_InjectedExporter(t *testing.T) {
	cfg := NewDefaultConfig()
	res, err := newResource(cfg)
	require.NoError(t, err)

	exp := tracetest.NewInMemoryExporter()
	tp, err := newTracerProvider(context.Background(), cfg, res, WithTraceExporter(exp))
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "grievance.publish")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "grievance.publish", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewMeterProvider_DisabledReturnsNil(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Metrics.Enabled = false
	res, err := newResource(cfg)
	require.NoError(t, err)

	mp, err := newMeterProvider(context.Background(), cfg, res)
	require.NoError(t, err)
	assert.Nil(t, mp)
}
