package realtime

import (
	"context"

	"github.com/ziplend/loancoord-go/domain"
)

// Logger interface for operational logging, matching the store's.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace
// correlation.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// LoggingNotifier adapts a Broker to the coordinator's notification
// contract: publish failures are logged and discarded, never surfaced to
// the operation that produced the message.
type LoggingNotifier struct {
	broker           Broker
	logger           Logger
	contextualLogger ContextualLogger
}

// NotifierOption configures a LoggingNotifier during construction.
type NotifierOption func(*LoggingNotifier)

// WithNotifierLogger configures a logger for delivery failures.
func WithNotifierLogger(logger Logger) NotifierOption {
	return func(n *LoggingNotifier) {
		n.logger = logger
	}
}

// WithNotifierContextualLogger configures a context-aware logger for
// delivery failures. It takes precedence over a plain Logger.
func WithNotifierContextualLogger(logger ContextualLogger) NotifierOption {
	return func(n *LoggingNotifier) {
		n.contextualLogger = logger
	}
}

// NewLoggingNotifier wraps a broker for use as a coordinator notifier.
func NewLoggingNotifier(broker Broker, options ...NotifierOption) *LoggingNotifier {
	notifier := &LoggingNotifier{broker: broker}

	for _, option := range options {
		option(notifier)
	}

	return notifier
}

// NewChatMessage pushes a freshly appended message to userID.
func (n *LoggingNotifier) NewChatMessage(ctx context.Context, userID int64, message domain.ChatMessage) {
	n.publish(ctx, NewEvent(EventNewChatMessage, userID, message))
}

// UpdatedChatMessage pushes a changed message to userID.
func (n *LoggingNotifier) UpdatedChatMessage(ctx context.Context, userID int64, message domain.ChatMessage) {
	n.publish(ctx, NewEvent(EventUpdatedChatMessage, userID, message))
}

func (n *LoggingNotifier) publish(ctx context.Context, event Event) {
	err := n.broker.Publish(ctx, event)
	if err == nil {
		return
	}

	if n.contextualLogger != nil {
		n.contextualLogger.WarnContext(ctx, "dropping undeliverable event",
			"event_type", string(event.Type), "user_id", event.UserID, "error", err.Error())
		return
	}

	if n.logger != nil {
		n.logger.Warn("dropping undeliverable event",
			"event_type", string(event.Type), "user_id", event.UserID, "error", err.Error())
	}
}
