package ports

import "context"

// Logger defines a standard interface for logging messages and errors.
// The production implementation is backed by zap; tests inject mocks.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs a message at Warning level.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs an error message at Error level.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}

type passIDKey struct{}

// WithPassID returns a context carrying the reconciliation pass id, which
// loggers attach to every entry.
func WithPassID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, passIDKey{}, id)
}

// PassIDFromContext returns the pass id stored by WithPassID, if any.
func PassIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(passIDKey{}).(string)
	return id, ok && id != ""
}
