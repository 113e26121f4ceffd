package postgres

import (
	"context"
	"math"
	"time"
)

// Logger interface for SQL query logging, operational metrics, warnings,
// and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace
// correlation. Implementations can integrate with any logging backend that
// supports context-based correlation, e.g. the OpenTelemetry slog bridge.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector interface for collecting store performance and
// operational metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and
// updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector interface for collecting distributed tracing information
// from store operations. Implementations are dependency-free and can
// integrate with any tracing backend.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

const (
	logMsgSQLExecuted  = "executed sql for: "
	logMsgOperation    = "store operation: "
	logAttrError       = "error"
	logAttrQuery       = "query"
	logAttrDurationMS  = "duration_ms"
	spanAttrOperation  = "operation"
	spanAttrErrorType  = "error_type"
	statusOK          = "ok"
	statusError       = "error"
	metricOpDuration  = "store_operation_duration_seconds"
	metricStoreErrors = "store_errors_total"
	metricGuardMisses = "store_guarded_write_misses_total"
	spanNamePrefix    = "loancoord.store."
	spanStatusOK      = "ok"
	spanStatusError   = "error"
	logAttrOperation  = "operation"
)

// logQuery logs SQL queries with execution time at debug level.
func (s *Store) logQuery(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action,
			logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action,
			logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level.
func (s *Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

// logError logs error information at error level.
func (s *Store) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}

	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}
}

// observe starts a span and a timer for a store operation; the returned
// finish func records duration and span status.
func (s *Store) observe(ctx context.Context, operation string) (context.Context, func(status string)) {
	start := time.Now()

	var span SpanContext
	if s.tracing != nil {
		ctx, span = s.tracing.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
			spanAttrOperation: operation,
		})
	}

	finish := func(status string) {
		duration := time.Since(start)

		if s.metrics != nil {
			s.metrics.RecordDuration(metricOpDuration, duration, map[string]string{
				spanAttrOperation: operation,
				"status":          status,
			})
		}

		if s.tracing != nil && span != nil {
			spanStatus := spanStatusOK
			if status == statusError {
				spanStatus = spanStatusError
			}
			s.tracing.FinishSpan(span, spanStatus, nil)
		}
	}

	return ctx, finish
}

// recordErrorMetrics counts failed store operations by error type.
func (s *Store) recordErrorMetrics(operation, errorType string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(metricStoreErrors, map[string]string{
			spanAttrOperation: operation,
			"status":          statusError,
			spanAttrErrorType: errorType,
		})
	}
}

// recordGuardMiss counts guarded writes that matched no row.
func (s *Store) recordGuardMiss(operation string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(metricGuardMisses, map[string]string{
			spanAttrOperation: operation,
		})
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3
// decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
