package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := newHTTPMetrics(mp.Meter(httpInstrumentationName), nil)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/sessions/:id/turns", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"session_id": c.Param("id")})
	})
	e.POST(syncStatusRoute, func(c echo.Context) error {
		return c.NoContent(http.StatusUnauthorized)
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/sessions/0f8c2b7e/turns"},
		{http.MethodPost, "/api/v1/sessions/9a1d44c0/turns"},
		{http.MethodPost, "/api/v1/grievances/GR-20250314-4F7K2Q/sync-status"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	metrics := collect(t, reader)

	requests, ok := metrics["grievanced.http.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byRoute := map[string]int64{}
	for _, dp := range requests.DataPoints {
		route, _ := dp.Attributes.Value("route")
		byRoute[route.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{
		"/health":                    1,
		"/api/v1/sessions/:id/turns": 2,
		syncStatusRoute:              1,
	}, byRoute)

	duration, ok := metrics["grievanced.http.request.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range duration.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)

	callbacks, ok := metrics["grievanced.http.sync_callbacks"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, callbacks.DataPoints, 1)
	outcome, _ := callbacks.DataPoints[0].Attributes.Value("outcome")
	assert.Equal(t, "unauthorized", outcome.AsString())

	inflight, ok := metrics["grievanced.http.inflight"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range inflight.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestHTTPMetrics_StatusClassAfterError(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := newHTTPMetrics(mp.Meter(httpInstrumentationName), nil)

	e := echo.New()
	e.Use(m.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				c.Error(err)
			}
			return nil
		}
	})
	e.GET("/api/v1/grievances/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "grievance not found")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/grievances/GR-20250101-000000", nil))

	requests := collect(t, reader)["grievanced.http.requests"].Data.(metricdata.Sum[int64])
	require.Len(t, requests.DataPoints, 1)
	assert.True(t, requests.DataPoints[0].Attributes.HasValue(attribute.Key("status_class")))
	class, _ := requests.DataPoints[0].Attributes.Value("status_class")
	assert.Equal(t, "4xx", class.AsString())
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/grievances/:id", routeLabel("/api/v1/grievances/:id"))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(0))
}
