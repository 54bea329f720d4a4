// Package store provides the SQLite-backed record store behind the app's
// local data.
//
// Records are untyped field bags grouped by kind:
//   - records: one row per (kind, id), seq gives stable enumeration order
//   - record_fields: one row per set field, tagged with its record.Value type
//   - store_meta: engine bookkeeping (compaction flag)
//
// # Schema Version
//
// The schema version is PRAGMA user_version. It is written inside the same
// transaction as the data it describes, so a rolled-back migration also
// rolls back the version.
//
// # Writes
//
//   - Update: synchronous write transaction, re-entrant through the context
//   - Write: re-entrant write that returns a Future; outside a transaction
//     the body runs on the store's single background writer
//
// A Tx must only be used by the goroutine running the body it was passed to.
// Reads inside a write body go through the Tx, not the Store.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Fields cascade with their record
//
// In-memory stores use a named shared-cache database and are never written
// to disk.
package store
