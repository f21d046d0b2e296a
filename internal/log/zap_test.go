package log

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newTestZap(t *testing.T, buf *bytes.Buffer, opts Options) *zapLogger {
	t.Helper()
	opts.Writer = buf
	l, err := newZap(opts)
	if err != nil {
		t.Fatalf("newZap: %v", err)
	}
	return l.(*zapLogger)
}

func TestZap_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestZap(t, &buf, Options{App: "splash", JsonFormat: true, Level: slog.LevelInfo})
	l.Info(context.Background(), "hello", "route", "/analytics/visit", "count", 3)

	m := jsonRecord(t, &buf)
	if m["msg"] != "hello" {
		t.Errorf("msg = %v", m["msg"])
	}
	if m["level"] != "INFO" {
		t.Errorf("level = %v", m["level"])
	}
	if m["app"] != "splash" {
		t.Errorf("app = %v", m["app"])
	}
	if m["route"] != "/analytics/visit" {
		t.Errorf("route = %v", m["route"])
	}
	if m["count"] != float64(3) {
		t.Errorf("count = %v", m["count"])
	}
	src, _ := m["source"].(string)
	if !strings.Contains(src, "zap_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestZap_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestZap(t, &buf, Options{App: "test", JsonFormat: true, Level: slog.LevelWarn})
	ctx := context.Background()
	l.Debug(ctx, "debug")
	l.Info(ctx, "info")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %s", buf.String())
	}
	l.Warn(ctx, "warn")
	if m := jsonRecord(t, &buf); m["msg"] != "warn" {
		t.Errorf("msg = %v", m["msg"])
	}
}

func TestZap_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base := newTestZap(t, &buf, Options{App: "test", JsonFormat: true})
	child := base.With("component", "ratelimit", 42, "ignored")
	child.Info(context.Background(), "child")

	m := jsonRecord(t, &buf)
	if m["component"] != "ratelimit" {
		t.Errorf("component = %v", m["component"])
	}

	buf.Reset()
	base.Info(context.Background(), "parent")
	if _, ok := jsonRecord(t, &buf)["component"]; ok {
		t.Error("With should not modify the parent logger")
	}
}

func TestZap_ErrorFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestZap(t, &buf, Options{App: "test", JsonFormat: true, IncludeErrorLinks: true})
	root := errors.New("disk full")
	err := fmt.Errorf("record visit: %w", root)
	l.Error(context.Background(), err, "insert failed")

	m := jsonRecord(t, &buf)
	if m["err"] != "record visit: disk full" {
		t.Errorf("err = %v", m["err"])
	}
	if m["cause_type"] != "*errors.errorString" {
		t.Errorf("cause_type = %v", m["cause_type"])
	}
	chain, _ := m["error_chain"].([]any)
	if len(chain) != 2 {
		t.Errorf("error_chain = %v", m["error_chain"])
	}
	if _, ok := m["error_links"]; !ok {
		t.Error("error_links missing")
	}
	if _, ok := m["stack"]; !ok {
		t.Error("stack missing at error level")
	}
}

func TestZap_ErrorNil(t *testing.T) {
	var buf bytes.Buffer
	l := newTestZap(t, &buf, Options{App: "test", JsonFormat: true})
	l.Error(context.Background(), nil, "no error")
	m := jsonRecord(t, &buf)
	if _, ok := m["err"]; ok {
		t.Error("err should be absent for nil error")
	}
}

func TestZap_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestZap(t, &buf, Options{App: "test", JsonFormat: true})

	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Info(ctx, "traced")
	m := jsonRecord(t, &buf)
	if m["trace_id"] != tid.String() {
		t.Errorf("trace_id = %v", m["trace_id"])
	}
	if m["span_id"] != sid.String() {
		t.Errorf("span_id = %v", m["span_id"])
	}
}

func TestZap_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newTestZap(t, &buf, Options{App: "test", JsonFormat: false})
	l.Info(context.Background(), "plain", "k", "v")
	out := buf.String()
	if !strings.Contains(out, "plain") || !strings.Contains(out, "INFO") {
		t.Errorf("unexpected console output: %s", out)
	}
}

func TestZap_Sync(t *testing.T) {
	var buf bytes.Buffer
	l := newTestZap(t, &buf, Options{App: "test"})
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestZapLevel(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want string
	}{
		{slog.LevelDebug, "debug"},
		{slog.LevelInfo, "info"},
		{slog.LevelWarn, "warn"},
		{slog.LevelError, "error"},
		{slog.LevelError + 4, "error"},
	}
	for _, tt := range tests {
		if got := zapLevel(tt.in).String(); got != tt.want {
			t.Errorf("zapLevel(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
