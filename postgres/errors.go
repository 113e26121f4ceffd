package postgres

import (
	"errors"
)

// Engine-level errors. Domain-level outcomes (not found, conflicts, state
// errors) are reported with the domain package's error types instead.
var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrBuildingQueryFailed   = errors.New("failed to build sql query")
	ErrQueryFailed           = errors.New("database query execution failed")
	ErrScanningRowFailed     = errors.New("failed to scan database row")
	ErrBeginTxFailed         = errors.New("failed to begin transaction")
	ErrCommitTxFailed        = errors.New("failed to commit transaction")
)
