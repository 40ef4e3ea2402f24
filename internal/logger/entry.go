package logger

import (
	"context"
)

// Entry carries metric fields (duration_ms, count, size) for a single
// log call. Tracing fields live on the context; metric fields ride here
// so they are never copied into child contexts.
type Entry struct {
	logger *Logger
	fields Fields
}

// With opens an Entry with the given metric fields.
//
//	logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Jobs queued")
func With(fields Fields) *Entry {
	return &Entry{
		logger: getDefault(),
		fields: fields,
	}
}

// resolve prefers the context logger so tracing fields come along.
func (e *Entry) resolve(ctx context.Context) *Logger {
	if ctx != nil {
		return FromContext(ctx)
	}
	return e.logger
}

// Debug logs the entry at debug level.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Debugf(format, args...)
}

// Info logs the entry at info level.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn logs the entry at warn level.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Warnf(format, args...)
}

// Error logs the entry at error level.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Errorf(format, args...)
}
