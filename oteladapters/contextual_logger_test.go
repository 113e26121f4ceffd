package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/ziplend/loancoord-go/oteladapters"
)

func Test_NewSlogBridgeLogger_Construction(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("test")
	assert.NotNil(t, logger, "NewSlogBridgeLogger should return non-nil logger")
}

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	logger.DebugContext(ctx, "debug message", "operation", "create_loan_request")
	logger.InfoContext(ctx, "info message", "operation", "execute_loan_request")
	logger.WarnContext(ctx, "warn message", "operation", "mark_message_seen")
	logger.ErrorContext(ctx, "error message", "operation", "end_loan")

	output := buf.String()

	assert.Contains(t, output, "debug message", "Debug message should be logged")
	assert.Contains(t, output, "info message", "Info message should be logged")
	assert.Contains(t, output, "warn message", "Warn message should be logged")
	assert.Contains(t, output, "error message", "Error message should be logged")
	assert.Contains(t, output, `"operation":"create_loan_request"`, "Attributes should be present")
}

func Test_SlogBridgeLogger_WithAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)

	logger.InfoContext(context.Background(), "test message",
		"chat_key", "10-20",
		"message_id", 42,
		"duration_ms", 3.14,
		"seen", true,
	)

	output := buf.String()

	assert.Contains(t, output, "test message", "Message should be logged")
	assert.Contains(t, output, `"chat_key":"10-20"`, "String attribute should be present")
	assert.Contains(t, output, `"message_id":42`, "Int attribute should be present")
	assert.Contains(t, output, `"duration_ms":3.14`, "Float attribute should be present")
	assert.Contains(t, output, `"seen":true`, "Bool attribute should be present")
}

func Test_OTelLogger_AllLevels(t *testing.T) {
	otelLogger := noop.NewLoggerProvider().Logger("test")
	logger := oteladapters.NewOTelLogger(otelLogger)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "debug message", "key", "value")
		logger.InfoContext(ctx, "info message", "key", "value")
		logger.WarnContext(ctx, "warn message", "key", "value")
		logger.ErrorContext(ctx, "error message", "key", "value")
	}, "all levels should emit without panicking")
}

func Test_OTelLogger_OddArgumentCount(t *testing.T) {
	otelLogger := noop.NewLoggerProvider().Logger("test")
	logger := oteladapters.NewOTelLogger(otelLogger)

	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "test message", "dangling_key")
	}, "a dangling key should be tolerated")
}
