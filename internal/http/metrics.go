package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/grievanced/internal/http"

const syncStatusRoute = "/api/v1/grievances/:id/sync-status"

// HTTPMetrics records OpenTelemetry request metrics for the API. Labels use
// echo's route template, so session and grievance ids never become label
// values.
type HTTPMetrics struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	inflight  metric.Int64UpDownCounter
	callbacks metric.Int64Counter
}

// NewHTTPMetrics creates the instruments on the global meter provider.
// Instruments that fail to register are logged and skipped.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to create http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &HTTPMetrics{}
	var err error

	m.requests, err = meter.Int64Counter("grievanced.http.requests",
		metric.WithDescription("API requests by method, route and status class."),
		metric.WithUnit("{request}"),
	)
	warn("requests", err)

	m.duration, err = meter.Float64Histogram("grievanced.http.request.duration",
		metric.WithDescription("API request latency. Turn requests include classification when a stage completes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	warn("duration", err)

	m.inflight, err = meter.Int64UpDownCounter("grievanced.http.inflight",
		metric.WithDescription("Requests currently being served."),
		metric.WithUnit("{request}"),
	)
	warn("inflight", err)

	m.callbacks, err = meter.Int64Counter("grievanced.http.sync_callbacks",
		metric.WithDescription("Legacy sync-status callbacks by outcome (accepted, rejected, unauthorized)."),
		metric.WithUnit("{callback}"),
	)
	warn("sync_callbacks", err)

	return m
}

// Middleware records one data point per request. It must run outside the
// middleware that turns handler errors into responses, so the final status
// is known.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inflight != nil {
				m.inflight.Add(ctx, 1)
				defer m.inflight.Add(ctx, -1)
			}

			err := next(c)

			route := routeLabel(c.Path())
			status := c.Response().Status
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.String("status_class", statusClass(status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if route == syncStatusRoute && m.callbacks != nil {
				m.callbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", callbackOutcome(status))))
			}
			return err
		}
	}
}

// routeLabel maps echo's matched route to a label. Unmatched requests share
// one value.
func routeLabel(route string) string {
	if route == "" {
		return "unmatched"
	}
	return route
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

func callbackOutcome(status int) string {
	switch {
	case status < 300:
		return "accepted"
	case status == 401:
		return "unauthorized"
	default:
		return "rejected"
	}
}
