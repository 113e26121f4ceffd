// Package postgreswrapper wires store integration tests to a real Postgres
// database. Tests are skipped unless LOANCOORD_TEST_POSTGRES_DSN is set;
// ADAPTER_TYPE selects which database adapter backs the store.
package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/postgres"
)

const (
	// EnvDSN names the environment variable carrying the test database DSN.
	EnvDSN = "LOANCOORD_TEST_POSTGRES_DSN"

	// EnvAdapterType selects the adapter backing the store under test.
	EnvAdapterType = "ADAPTER_TYPE"

	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// Wrapper abstracts over the adapter-specific test setups.
type Wrapper interface {
	GetStore() *postgres.Store
	Exec(t testing.TB, sqlStatement string)
	QueryInt64(t testing.TB, sqlQuery string) int64
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing.
type PGXPoolWrapper struct {
	pool  *pgxpool.Pool
	store *postgres.Store
}

func (w *PGXPoolWrapper) GetStore() *postgres.Store {
	return w.store
}

func (w *PGXPoolWrapper) Exec(t testing.TB, sqlStatement string) {
	_, err := w.pool.Exec(context.Background(), sqlStatement)
	require.NoError(t, err, "error executing test statement")
}

func (w *PGXPoolWrapper) QueryInt64(t testing.TB, sqlQuery string) int64 {
	var value int64
	err := w.pool.QueryRow(context.Background(), sqlQuery).Scan(&value)
	require.NoError(t, err, "error running test query")

	return value
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing.
type SQLDBWrapper struct {
	db    *sql.DB
	store *postgres.Store
}

func (w *SQLDBWrapper) GetStore() *postgres.Store {
	return w.store
}

func (w *SQLDBWrapper) Exec(t testing.TB, sqlStatement string) {
	_, err := w.db.ExecContext(context.Background(), sqlStatement)
	require.NoError(t, err, "error executing test statement")
}

func (w *SQLDBWrapper) QueryInt64(t testing.TB, sqlQuery string) int64 {
	var value int64
	err := w.db.QueryRowContext(context.Background(), sqlQuery).Scan(&value)
	require.NoError(t, err, "error running test query")

	return value
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close()
}

// SQLXWrapper wraps sqlx.DB-based testing.
type SQLXWrapper struct {
	db    *sqlx.DB
	store *postgres.Store
}

func (w *SQLXWrapper) GetStore() *postgres.Store {
	return w.store
}

func (w *SQLXWrapper) Exec(t testing.TB, sqlStatement string) {
	_, err := w.db.ExecContext(context.Background(), sqlStatement)
	require.NoError(t, err, "error executing test statement")
}

func (w *SQLXWrapper) QueryInt64(t testing.TB, sqlQuery string) int64 {
	var value int64
	err := w.db.QueryRowContext(context.Background(), sqlQuery).Scan(&value)
	require.NoError(t, err, "error running test query")

	return value
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close()
}

// CreateWrapperWithTestConfig creates the wrapper matching ADAPTER_TYPE, or
// skips the test when no test database is configured.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgres.Option) Wrapper {
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("skipping: %s is not set", EnvDSN)
	}

	adapterType := strings.ToLower(os.Getenv(EnvAdapterType))

	switch adapterType {
	case typePGXPool, "":
		pool, err := pgxpool.New(context.Background(), dsn)
		require.NoError(t, err, "error connecting to DB pool in test setup")

		store, err := postgres.NewStoreFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating store in test setup")

		return &PGXPoolWrapper{pool: pool, store: store}

	case typeSQLDB:
		db, err := sql.Open("postgres", dsn)
		require.NoError(t, err, "error opening DB in test setup")

		store, err := postgres.NewStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating store in test setup")

		return &SQLDBWrapper{db: db, store: store}

	case typeSQLXDB:
		db, err := sqlx.Open("postgres", dsn)
		require.NoError(t, err, "error opening DB in test setup")

		store, err := postgres.NewStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating store in test setup")

		return &SQLXWrapper{db: db, store: store}

	default:
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterType))
	}
}

// CleanUp truncates all lending tables and resets the id sequences.
func CleanUp(t testing.TB, wrapper Wrapper) {
	wrapper.Exec(t, `TRUNCATE TABLE chat_messages, chats, loans, loan_requests, items, users RESTART IDENTITY CASCADE`)
}

// SeedUser inserts a user row and returns its id.
func SeedUser(t testing.TB, wrapper Wrapper, name string) int64 {
	return wrapper.QueryInt64(t, fmt.Sprintf(
		`INSERT INTO users (name) VALUES ('%s') RETURNING id`, name))
}

// SeedItem inserts an item row owned by ownerID and returns its id.
func SeedItem(t testing.TB, wrapper Wrapper, ownerID int64, name string, available bool) int64 {
	return wrapper.QueryInt64(t, fmt.Sprintf(
		`INSERT INTO items (owner_id, name, available) VALUES (%d, '%s', %t) RETURNING id`,
		ownerID, name, available))
}
