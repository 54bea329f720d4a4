// Package record provides the value types stored in record fields.
//
// This package contains type definitions only. The store, the migration
// engine and the schema history all import record; record imports nothing
// internal.
//
// Key design constraints:
//   - Records are untyped field bags addressed by (kind, id)
//   - A missing field reads as Null{}, never as a nil Value
//   - Bool is its own type and is never folded into Int
package record
