// Package adapters provides database adapter implementations for the
// PostgreSQL entity store.
//
// The adapter pattern supports multiple PostgreSQL database libraries:
// pgxpool.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent
// functionality through a common DBAdapter interface, including
// transaction handles, so the store works with any supported connection
// type.
package adapters
