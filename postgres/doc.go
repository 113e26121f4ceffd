// Package postgres implements the transactional entity store of the
// lending coordinator on PostgreSQL.
//
// Every mutating operation runs in exactly one transaction and relies on
// guarded conditional writes plus store-level constraints instead of
// long-held locks:
//
//   - loan request transitions are UPDATE ... WHERE state IN (expected)
//     RETURNING, so concurrent attempts on the same row race safely to
//     exactly one winner
//   - the "one active request per (item, borrower)" invariant is a partial
//     unique index
//   - the "no overlapping loans per item" invariant is an exclusion
//     constraint over the loan interval
//
// Constraint violations are translated into the domain error taxonomy;
// serialization failures and deadlocks map to domain.ErrTransientConflict
// and are retried once by the coordinator.
//
// The store supports pgxpool.Pool, sql.DB and sqlx.DB connections through
// the internal adapters package, and optional structured logging, metrics
// and tracing through the observability interfaces.
package postgres
