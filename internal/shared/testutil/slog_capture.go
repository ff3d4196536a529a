// Package testutil provides slog capture helpers so tests can assert on
// what the code under test logged.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is one captured log line.
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// capture is the record sink shared by a CaptureHandler and every child
// handler derived from it.
type capture struct {
	mu      sync.Mutex
	records []LogRecord
}

func (c *capture) add(rec LogRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *capture) snapshot() []LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogRecord, len(c.records))
	copy(out, c.records)
	return out
}

// CaptureHandler is a slog.Handler that stores records in memory.
// Children created through WithAttrs write into the same sink, so
// records logged via logger.With(...) stay visible on the root handler.
type CaptureHandler struct {
	sink *capture
	base []slog.Attr
	t    *testing.T
}

// NewTestLogger returns a logger whose output can be inspected through
// the returned handler. Records are echoed to t.Logf for debugging.
func NewTestLogger(t *testing.T) (*slog.Logger, *CaptureHandler) {
	handler := &CaptureHandler{sink: &capture{}, t: t}
	return slog.New(handler), handler
}

// Enabled reports every level as enabled so nothing is filtered out.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.base)+r.NumAttrs())
	for _, a := range h.base {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.sink.add(LogRecord{Time: r.Time, Level: r.Level, Message: r.Message, Attrs: attrs})

	if h.t != nil {
		h.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	base := make([]slog.Attr, 0, len(h.base)+len(attrs))
	base = append(base, h.base...)
	base = append(base, attrs...)
	return &CaptureHandler{sink: h.sink, base: base, t: h.t}
}

// WithGroup returns the handler unchanged; the code under test does not
// log through groups.
func (h *CaptureHandler) WithGroup(string) slog.Handler { return h }

// GetRecords returns a copy of everything captured so far.
func (h *CaptureHandler) GetRecords() []LogRecord {
	return h.sink.snapshot()
}

// GetRecordsByLevel returns the captured records at exactly level.
func (h *CaptureHandler) GetRecordsByLevel(level slog.Level) []LogRecord {
	var out []LogRecord
	for _, r := range h.sink.snapshot() {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many records have been captured.
func (h *CaptureHandler) Count() int {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return len(h.sink.records)
}

// AssertLogContains fails the test unless some record at level contains
// message as a substring.
func AssertLogContains(t *testing.T, handler *CaptureHandler, level slog.Level, message string) {
	t.Helper()

	records := handler.GetRecordsByLevel(level)
	for _, r := range records {
		if strings.Contains(r.Message, message) {
			return
		}
	}

	t.Errorf("no %s record contains %q", level, message)
	for _, r := range records {
		t.Logf("captured: %s", r.Message)
	}
}

// AssertLogAttr fails the test unless some record carries key=value.
func AssertLogAttr(t *testing.T, handler *CaptureHandler, key string, value any) {
	t.Helper()

	for _, r := range handler.GetRecords() {
		if got, ok := r.Attrs[key]; ok && got == value {
			return
		}
	}

	t.Errorf("no record carries %s=%v", key, value)
	for _, r := range handler.GetRecords() {
		t.Logf("captured: %s %v", r.Message, r.Attrs)
	}
}
