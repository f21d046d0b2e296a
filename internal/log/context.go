package log

import "context"

type loggerKey struct{}

// WithContext attaches l to ctx, request middleware uses it to hand handlers a
// logger already carrying request_id and client fields
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext never returns nil, code running outside a request gets Nop
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}
