package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/postgres/internal/adapters"
)

const (
	pgCodeUniqueViolation       = "23505"
	pgCodeExclusionViolation    = "23P01"
	pgCodeForeignKeyViolation   = "23503"
	pgCodeSerializationFailure  = "40001"
	pgCodeDeadlockDetected      = "40P01"
	pgConstraintOneActive       = "loan_requests_one_active_per_item_borrower"
	pgConstraintNoOverlap       = "no_overlapping_loans"
	pgConstraintChatsPrimaryKey = "chats_pkey"
)

// Store persists loan requests, loans, chats, and chat messages in Postgres
// and enforces the lifecycle rules with guarded, transactional writes.
type Store struct {
	db               adapters.DBAdapter
	tables           TableNames
	logger           Logger
	contextualLogger ContextualLogger
	metrics          MetricsCollector
	tracing          TracingCollector
}

// NewStoreFromPGXPool creates a Store using a pgx connection pool.
func NewStoreFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Store, error) {
	if pool == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(pool), options...)
}

// NewStoreFromSQLDB creates a Store using a database/sql connection pool.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a Store using an sqlx connection pool.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	store := &Store{
		db:     db,
		tables: defaultTableNames(),
	}

	for _, option := range options {
		if err := option(store); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// runner abstracts the query surface shared by the pool adapter and an open
// transaction, so entity operations can run inside or outside a transaction.
type runner interface {
	Query(ctx context.Context, sqlQuery string) (adapters.DBRows, error)
	Exec(ctx context.Context, sqlQuery string) (adapters.DBResult, error)
}

// withTx runs fn inside a transaction, translating commit and rollback
// failures. The transaction is rolled back when fn returns an error.
func (s *Store) withTx(ctx context.Context, fn func(tx adapters.DBTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Join(ErrBeginTxFailed, s.translateError(err))
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback(ctx)

		return err
	}

	if err = tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)

		return errors.Join(ErrCommitTxFailed, s.translateError(err))
	}

	return nil
}

// translateError maps Postgres driver errors onto the domain error taxonomy.
// Constraint violations become conflicts, serialization failures and
// deadlocks become transient conflicts, and foreign key violations surface
// as not-found because they always mean a referenced entity is missing.
func (s *Store) translateError(err error) error {
	if err == nil {
		return nil
	}

	code, constraint := pgErrorDetails(err)
	if code == "" {
		return err
	}

	switch code {
	case pgCodeUniqueViolation:
		if constraint == pgConstraintOneActive {
			return errors.Join(err, domain.ConflictError{Reason: "an active loan request for this item and borrower already exists"})
		}
		if constraint == pgConstraintChatsPrimaryKey {
			return errors.Join(err, domain.ConflictError{Reason: "chat already exists"})
		}

		return errors.Join(err, domain.ConflictError{Reason: fmt.Sprintf("unique constraint violated: %s", constraint)})

	case pgCodeExclusionViolation:
		if constraint == pgConstraintNoOverlap {
			return errors.Join(err, domain.ConflictError{Reason: "an active loan for this item already exists"})
		}

		return errors.Join(err, domain.ConflictError{Reason: fmt.Sprintf("exclusion constraint violated: %s", constraint)})

	case pgCodeSerializationFailure, pgCodeDeadlockDetected:
		return errors.Join(err, domain.ErrTransientConflict)

	case pgCodeForeignKeyViolation:
		return errors.Join(err, domain.NotFoundError{Entity: entityFromConstraint(constraint), Key: "referenced row"})
	}

	return err
}

// pgErrorDetails extracts the SQLSTATE code and constraint name from either
// a pgx or a lib/pq driver error.
func pgErrorDetails(err error) (code string, constraint string) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}

	return "", ""
}

func entityFromConstraint(constraint string) string {
	switch {
	case strings.Contains(constraint, "item"):
		return "item"
	case strings.Contains(constraint, "borrower"), strings.Contains(constraint, "user"), strings.Contains(constraint, "sender"):
		return "user"
	case strings.Contains(constraint, "chat"):
		return "chat"
	case strings.Contains(constraint, "loan_request"):
		return "loan request"
	case strings.Contains(constraint, "loan"):
		return "loan"
	default:
		return "row"
	}
}

// query builds, executes, and logs a select query on the given runner.
func (s *Store) query(ctx context.Context, r runner, ds *goqu.SelectDataset, action string) (adapters.DBRows, error) {
	sqlQuery, _, err := ds.ToSQL()
	if err != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	start := time.Now()
	rows, err := r.Query(ctx, sqlQuery)
	s.logQuery(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		translated := s.translateError(err)
		s.logError(ctx, "query failed", translated, logAttrOperation, action)

		return nil, errors.Join(ErrQueryFailed, translated)
	}

	return rows, nil
}

// exec builds, executes, and logs a write query on the given runner and
// returns the number of affected rows.
func (s *Store) exec(ctx context.Context, r runner, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, err := r.Exec(ctx, sqlQuery)
	s.logQuery(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		translated := s.translateError(err)
		s.logError(ctx, "exec failed", translated, logAttrOperation, action)

		return 0, errors.Join(ErrQueryFailed, translated)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(ErrQueryFailed, err)
	}

	return affected, nil
}

// queryRowInt64 runs a select expected to return a single int64 column.
// It reports domain.ErrNotFound when no row matches.
func (s *Store) queryRowInt64(ctx context.Context, r runner, ds *goqu.SelectDataset, action string) (int64, error) {
	rows, err := s.query(ctx, r, ds, action)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return 0, domain.ErrNotFound
	}

	var value int64
	if err := rows.Scan(&value); err != nil {
		return 0, errors.Join(ErrScanningRowFailed, err)
	}

	return value, rows.Close()
}

func (s *Store) dialect() goqu.DialectWrapper {
	return goqu.Dialect("postgres")
}
