// Package testdoubles provides observability spies for asserting on the
// logging behavior of the store and coordinator.
package testdoubles

import (
	"context"
	"strings"
	"sync"
)

// LogRecord is one captured logging call.
type LogRecord struct {
	Level   string
	Message string
	Args    []any
}

// ContextualLoggerSpy captures contextual logging calls for testing. It
// satisfies the ContextualLogger interfaces of the postgres, coordinator,
// and realtime packages.
type ContextualLoggerSpy struct {
	mu      sync.Mutex
	records []LogRecord
}

// NewContextualLoggerSpy creates an empty spy.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

// DebugContext records a debug call.
func (s *ContextualLoggerSpy) DebugContext(_ context.Context, msg string, args ...any) {
	s.record("debug", msg, args)
}

// InfoContext records an info call.
func (s *ContextualLoggerSpy) InfoContext(_ context.Context, msg string, args ...any) {
	s.record("info", msg, args)
}

// WarnContext records a warn call.
func (s *ContextualLoggerSpy) WarnContext(_ context.Context, msg string, args ...any) {
	s.record("warn", msg, args)
}

// ErrorContext records an error call.
func (s *ContextualLoggerSpy) ErrorContext(_ context.Context, msg string, args ...any) {
	s.record("error", msg, args)
}

func (s *ContextualLoggerSpy) record(level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, LogRecord{Level: level, Message: msg, Args: args})
}

// Records returns all captured calls in order.
func (s *ContextualLoggerSpy) Records() []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]LogRecord(nil), s.records...)
}

// CountContaining counts records at the given level whose message contains
// the substring.
func (s *ContextualLoggerSpy) CountContaining(level, substring string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.records {
		if record.Level == level && strings.Contains(record.Message, substring) {
			count++
		}
	}

	return count
}

// LoggerSpy captures plain logging calls for testing. It satisfies the
// Logger interfaces of the postgres, coordinator, and realtime packages.
type LoggerSpy struct {
	mu      sync.Mutex
	records []LogRecord
}

// NewLoggerSpy creates an empty spy.
func NewLoggerSpy() *LoggerSpy {
	return &LoggerSpy{}
}

// Debug records a debug call.
func (s *LoggerSpy) Debug(msg string, args ...any) { s.record("debug", msg, args) }

// Info records an info call.
func (s *LoggerSpy) Info(msg string, args ...any) { s.record("info", msg, args) }

// Warn records a warn call.
func (s *LoggerSpy) Warn(msg string, args ...any) { s.record("warn", msg, args) }

// Error records an error call.
func (s *LoggerSpy) Error(msg string, args ...any) { s.record("error", msg, args) }

func (s *LoggerSpy) record(level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, LogRecord{Level: level, Message: msg, Args: args})
}

// Records returns all captured calls in order.
func (s *LoggerSpy) Records() []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]LogRecord(nil), s.records...)
}
