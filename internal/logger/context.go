package logger

import (
	"context"
	"sync"
)

// contextKey is private to keep the logger entry collision-free.
type contextKey struct{}

var loggerKey = contextKey{}

// The default logger backs every log call made without a richer context.
var (
	defaultLogger   *Logger
	defaultLoggerMu sync.RWMutex
)

func init() {
	defaultLogger = New(nil)
}

// SetDefaultLogger replaces the process-wide fallback logger.
// Parameters:
//   - l: logger to install; nil is ignored.
// Returns: none.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		defaultLoggerMu.Lock()
		defaultLogger = l
		defaultLoggerMu.Unlock()
	}
}

func getDefault() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// WithContext returns a context carrying l. The Ctx log helpers and the
// field setters below will use it from there on.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, or the default logger.
// Parameters:
//   - ctx: context to inspect; nil is allowed.
// Returns:
//   - *Logger: logger with accumulated fields, or the default.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*Logger); ok {
			return l
		}
	}
	return getDefault()
}

// withField stores a copy of the context logger with one more field.
func withField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// SetRequestID tags the context logger with the HTTP request ID.
func SetRequestID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldRequestID, id)
}

// SetJobID tags the context logger with the download job ID.
func SetJobID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldJobID, id)
}

// SetUserID tags the context logger with the job owner.
func SetUserID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldUserID, id)
}

// SetVideoID tags the context logger with the probed video ID.
func SetVideoID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldVideoID, id)
}

// SetComponent tags the context logger with the emitting component.
func SetComponent(ctx context.Context, name string) context.Context {
	return withField(ctx, FieldComponent, name)
}
