package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. Intake uses it for raw turn text, so it
// stays off outside local debugging.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a configured level name. It accepts zap's names
// plus "trace", ignoring case and surrounding space.
func LevelFromString(level string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	switch name {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown level %q", level)
	}
	return l, nil
}

// LevelForStatus picks the access log level for an HTTP status: server
// errors at Error, client errors at Warn, everything else at Info.
func LevelForStatus(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
