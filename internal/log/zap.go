package log

import (
	"context"
	"errors"
	"log/slog"
	"syscall"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger is the zap backend, field names match the slog backend so
// dashboards and queries work with either
type zapLogger struct {
	l    *zap.Logger
	errs errConfig
}

func newZap(opts Options) (Logger, error) {
	opts = withDefaults(opts)

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.MessageKey = "msg"
	ec.CallerKey = "source"
	ec.StacktraceKey = "stack"
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder

	enc := zapcore.NewConsoleEncoder(ec)
	if opts.JsonFormat {
		enc = zapcore.NewJSONEncoder(ec)
	}

	base := []zap.Field{zap.String("app", opts.App)}
	if opts.Version != "" {
		base = append(base, zap.String("version", opts.Version))
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(opts.Writer), zap.NewAtomicLevelAt(zapLevel(opts.Level)))
	l := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapLevel(opts.StacktraceLevel)),
	).With(base...)

	return &zapLogger{l: l, errs: errConfig{links: opts.IncludeErrorLinks, maxLinks: opts.MaxErrorLinks}}, nil
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l < slog.LevelInfo:
		return zapcore.DebugLevel
	case l < slog.LevelWarn:
		return zapcore.InfoLevel
	case l < slog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func zapFields(ctx context.Context, kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2+2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields = append(fields, zap.Any(k, kv[i+1]))
		}
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return fields
}

func (z *zapLogger) With(kv ...any) Logger {
	return &zapLogger{l: z.l.With(zapFields(nil, kv)...), errs: z.errs}
}

func (z *zapLogger) Debug(ctx context.Context, msg string, kv ...any) {
	if ce := z.l.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(zapFields(ctx, kv)...)
	}
}

func (z *zapLogger) Info(ctx context.Context, msg string, kv ...any) {
	if ce := z.l.Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(zapFields(ctx, kv)...)
	}
}

func (z *zapLogger) Warn(ctx context.Context, msg string, kv ...any) {
	if ce := z.l.Check(zapcore.WarnLevel, msg); ce != nil {
		ce.Write(zapFields(ctx, kv)...)
	}
}

func (z *zapLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if ce := z.l.Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(zapFields(ctx, append(kv, errorFields(err, z.errs.links, z.errs.maxLinks)...))...)
	}
}

// Sync ignores the EINVAL/ENOTTY zap gets from syncing a terminal or pipe
func (z *zapLogger) Sync() error {
	if err := z.l.Sync(); err != nil && !isSyncNoise(err) {
		return err
	}
	return nil
}

func isSyncNoise(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
