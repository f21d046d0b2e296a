package httpmw

import (
	"context"
	"net/http"
	"sync"

	"github.com/keithlinneman/splash-api/internal/log"
)

type logEntry struct {
	level  string
	msg    string
	err    error
	fields map[string]any
}

// captureLogger records every call, With accumulates fields into child loggers
// that share the same sink
type captureLogger struct {
	sink   *logSink
	fields []any
}

type logSink struct {
	mu      sync.Mutex
	entries []logEntry
}

func newCaptureLogger() *captureLogger { return &captureLogger{sink: &logSink{}} }

func (c *captureLogger) With(kv ...any) log.Logger {
	f := append(append([]any{}, c.fields...), kv...)
	return &captureLogger{sink: c.sink, fields: f}
}

func (c *captureLogger) add(level string, err error, msg string, kv []any) {
	m := map[string]any{}
	all := append(append([]any{}, c.fields...), kv...)
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			m[k] = all[i+1]
		}
	}
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	c.sink.entries = append(c.sink.entries, logEntry{level: level, msg: msg, err: err, fields: m})
}

func (c *captureLogger) Debug(_ context.Context, msg string, kv ...any) { c.add("debug", nil, msg, kv) }
func (c *captureLogger) Info(_ context.Context, msg string, kv ...any)  { c.add("info", nil, msg, kv) }
func (c *captureLogger) Warn(_ context.Context, msg string, kv ...any)  { c.add("warn", nil, msg, kv) }
func (c *captureLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	c.add("error", err, msg, kv)
}
func (c *captureLogger) Sync() error { return nil }

func (c *captureLogger) entries() []logEntry {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	return append([]logEntry(nil), c.sink.entries...)
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
