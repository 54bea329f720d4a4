// Package migrate advances a record store from its persisted schema version
// to the version the running binary expects.
//
// A Registry holds version-gated Steps. The Engine reads the stored version,
// runs every step whose gate is above it, in gate order, and records the
// target version. All of it happens in one write transaction: a failure or
// crash part-way through leaves the store exactly as it was, and the next
// open runs the same steps again.
//
// Steps only see a View: enumerate a kind, read or write one field, delete
// or rekey one record. The primitives in this package (BackfillDefault,
// DedupeByKey, RecomputeIdentifier, CopyField, RewriteBlob, ...) cover the
// transform shapes the schema history needs and are safe to run twice.
package migrate
