// Package lifecycle owns the live record store for the process.
//
// A Manager resolves the store directory, opens or creates the store file,
// migrates it to the current schema and decides whether the file should be
// compacted on its next open. Callers receive a Handle; nothing here is a
// process-wide singleton.
//
// State machine:
//
//	Closed -> Opening -> Migrating -> Ready
//	Opening, Migrating -> Degraded   (open failure, failed migration step)
//	Migrating -> Failed              (store written by a newer binary)
//
// A Degraded handle is an in-memory store: writes succeed but are lost at
// exit. Handle.Degraded reports it, and the registered FailureObserver is
// told once so the UI can offer to delete the store or quit.
package lifecycle
