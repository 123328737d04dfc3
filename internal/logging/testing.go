package logging

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry in memory for assertions.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a logger that observes all levels including trace.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{Logger: &Logger{zap: zap.New(core)}, logs: logs}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.logs.All()
}

func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.logs.FilterMessage(msg)
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() {
	t.logs.TakeAll()
}

// FieldValue returns the value of key on the first entry with message msg.
func (t *TestLogger) FieldValue(msg, key string) (interface{}, bool) {
	for _, entry := range t.logs.FilterMessage(msg).All() {
		if v, ok := entry.ContextMap()[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.logs.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	assert.Fail(tb, "log entry not found", "level %v, message containing %q", level, msgContains)
}

// AssertField fails tb unless an entry with message msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	v, ok := t.FieldValue(msg, key)
	if assert.True(tb, ok, "field %q not found on %q", key, msg) {
		assert.Equal(tb, expected, v)
	}
}

var contactData = []*regexp.Regexp{
	regexp.MustCompile(emailPattern),
	regexp.MustCompile(phonePattern),
}

// AssertNoContactData fails tb if any entry carries a clear-text phone
// number or email. The observer sees fields before any encoder runs, so
// this checks that callers masked contact data themselves.
func (t *TestLogger) AssertNoContactData(tb testing.TB) {
	tb.Helper()
	for _, entry := range t.logs.All() {
		texts := []string{entry.Message}
		for _, f := range entry.Context {
			if f.Type == zapcore.StringType {
				texts = append(texts, f.String)
			}
		}
		for _, s := range texts {
			for _, re := range contactData {
				assert.False(tb, re.MatchString(s), "contact data logged in %q: %q", entry.Message, s)
			}
		}
	}
}
