package postgres

import "errors"

// Option configures a Store during construction.
type Option func(*Store) error

// TableNames configures the tables the store reads and writes. Zero-value
// fields fall back to the defaults.
type TableNames struct {
	Users        string
	Items        string
	LoanRequests string
	Loans        string
	Chats        string
	ChatMessages string
}

func defaultTableNames() TableNames {
	return TableNames{
		Users:        "users",
		Items:        "items",
		LoanRequests: "loan_requests",
		Loans:        "loans",
		Chats:        "chats",
		ChatMessages: "chat_messages",
	}
}

// WithTableNames overrides the default table names.
func WithTableNames(names TableNames) Option {
	return func(s *Store) error {
		defaults := defaultTableNames()
		if names.Users == "" {
			names.Users = defaults.Users
		}
		if names.Items == "" {
			names.Items = defaults.Items
		}
		if names.LoanRequests == "" {
			names.LoanRequests = defaults.LoanRequests
		}
		if names.Loans == "" {
			names.Loans = defaults.Loans
		}
		if names.Chats == "" {
			names.Chats = defaults.Chats
		}
		if names.ChatMessages == "" {
			names.ChatMessages = defaults.ChatMessages
		}
		s.tables = names

		return nil
	}
}

// WithLogger configures a logger for the store.
// SQL queries are logged at debug level, operational info at info level,
// and errors at error level.
func WithLogger(logger Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = logger

		return nil
	}
}

// WithContextualLogger configures a context-aware logger for the store.
// When both a Logger and a ContextualLogger are configured, the contextual
// logger takes precedence.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *Store) error {
		if logger == nil {
			return errors.New("contextual logger must not be nil")
		}
		s.contextualLogger = logger

		return nil
	}
}

// WithMetrics configures a metrics collector for the store.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Store) error {
		if collector == nil {
			return errors.New("metrics collector must not be nil")
		}
		s.metrics = collector

		return nil
	}
}

// WithTracing configures a tracing collector for the store.
func WithTracing(collector TracingCollector) Option {
	return func(s *Store) error {
		if collector == nil {
			return errors.New("tracing collector must not be nil")
		}
		s.tracing = collector

		return nil
	}
}
