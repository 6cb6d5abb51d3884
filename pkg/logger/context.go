package logger

import "context"

type contextKey struct{}

// NewContext attaches the logger to ctx so components deeper in the call
// graph can pick it up without threading it explicitly.
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger attached to ctx, or a default info-level
// logger when none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return NewLogger("info")
}
