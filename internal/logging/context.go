package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	grievanceKey
	requestKey
	loggerKey
)

// correlation lists the ID keys ContextFields emits, in output order.
var correlation = []struct {
	key   ctxKey
	field string
}{
	{sessionKey, "session.id"},
	{grievanceKey, "grievance.id"},
	{requestKey, "request.id"},
}

// ContextFields returns the trace and correlation IDs carried by ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	for _, c := range correlation {
		if id := idFrom(ctx, c.key); id != "" {
			fields = append(fields, zap.String(c.field, id))
		}
	}
	return fields
}

// IDs reaching a log line come from clients, so only short ASCII tokens
// are kept.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func withID(ctx context.Context, key ctxKey, id string) context.Context {
	if !idPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key ctxKey) string {
	id, _ := ctx.Value(key).(string)
	return id
}

// WithSessionID tags ctx with an intake session ID. Invalid IDs are
// ignored.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withID(ctx, sessionKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	return idFrom(ctx, sessionKey)
}

// WithGrievanceID tags ctx with a grievance ID. Invalid IDs are ignored.
func WithGrievanceID(ctx context.Context, grievanceID string) context.Context {
	return withID(ctx, grievanceKey, grievanceID)
}

func GrievanceIDFromContext(ctx context.Context) string {
	return idFrom(ctx, grievanceKey)
}

// WithRequestID tags ctx with an HTTP request ID. Invalid IDs are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withID(ctx, requestKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return idFrom(ctx, requestKey)
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return NewNop()
}
