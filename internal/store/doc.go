// Package store provides SQLite-backed storage for reconciliation runs.
//
// The msgpack artifacts are the canonical outputs; the store is the
// queryable side channel. Each run appends its reconciled events, flags,
// and summary row, keyed by run and content-addressed event ID so re-writes
// of an identical run are idempotent (ON CONFLICT DO NOTHING).
//
// Database configuration:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
