package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNew_DisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{Enabled: true}

	tel, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
		tel.SetLoggerProvider(nil)
	})

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_Shutdown(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	require.NoError(t, tel.ForceFlush(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestTelemetry_ShutdownWithProviders(t *testing.T) {
	tt := NewTestTelemetry()
	assert.True(t, tt.IsEnabled())

	_, span := tt.Tracer("test").Start(context.Background(), "grievance.submit")
	span.End()

	counter, err := tt.Meter("test").Int64Counter("grievanced.intake.turns")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, tt.ForceFlush(context.Background()))
	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	tracer := tt.Tracer("test")

	_, turn := tracer.Start(context.Background(), "intake.turn")
	turn.SetAttributes(
		attribute.String("stage", "details"),
		attribute.Int64("turn", 3),
		attribute.Float64("confidence", 0.75),
		attribute.Bool("degraded", false),
	)
	turn.End()

	_, second := tracer.Start(context.Background(), "intake.turn")
	second.End()

	assert.Nil(t, tt.SpanByName("intake.start"))
	assert.Len(t, tt.SpansByName("intake.turn"), 2)
	tt.AssertSpanExists(t, "intake.turn")
	tt.AssertSpanAttribute(t, "intake.turn", "stage", "details")
	tt.AssertSpanAttribute(t, "intake.turn", "turn", int64(3))
	tt.AssertSpanAttribute(t, "intake.turn", "confidence", 0.75)
	tt.AssertSpanAttribute(t, "intake.turn", "degraded", false)
}

func TestTestTelemetry_MetricReader(t *testing.T) {
	tt := NewTestTelemetry()

	counter, err := tt.Meter("test").Int64Counter("grievanced.otp.sent")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
	counter.Add(context.Background(), 2)

	require.NoError(t, tt.MetricReader.ForceFlush(context.Background()))
	assert.NotEmpty(t, tt.MetricReader.Metrics())

	m, ok := tt.MetricReader.Metric("grievanced.otp.sent")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	_, ok = tt.MetricReader.Metric("grievanced.otp.verified")
	assert.False(t, ok)

	require.NoError(t, tt.MetricReader.Shutdown(context.Background()))
}

func TestTestTelemetry_Install(t *testing.T) {
	tt := NewTestTelemetry()
	restore := tt.Install()

	_, span := otel.Tracer("global").Start(context.Background(), "global-span")
	span.End()
	tt.AssertSpanExists(t, "global-span")

	restore()
	_, span = otel.Tracer("global").Start(context.Background(), "after-restore")
	span.End()
	assert.Nil(t, tt.SpanByName("after-restore"))
}
