// Package observability provides the SDK's logging, metrics, and tracing
// plumbing: structured logging via zap, Prometheus metrics, and OpenTelemetry
// spans, following the same ambient stack the rest of this module's teacher
// codebase uses for its own cross-cutting concerns.
package observability

import (
	"go.uber.org/zap"
)

// LogContext is an immutable snapshot of key/value fields added to a
// logger captured for one task submission.
type LogContext struct {
	fields []zap.Field
}

// NewLogContext builds a LogContext from the given zap fields.
func NewLogContext(fields ...zap.Field) LogContext {
	return LogContext{fields: fields}
}

// Capture snapshots the current logger augmented with this LogContext's
// fields. The task sink calls this at submission time and stores the
// result; during execution it passes the result to ScopedLogContext.
func (lc LogContext) Capture(base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	if len(lc.fields) == 0 {
		return base
	}
	return base.With(lc.fields...)
}

// ScopedLogContext calls fn with logger. It installs no process-wide
// logger and restores nothing; code that does not use fn's argument does
// not see the captured fields.
func ScopedLogContext(logger *zap.Logger, fn func(*zap.Logger)) {
	fn(logger)
}
