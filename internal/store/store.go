package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// maxFileConns bounds the pool for file-backed stores. WAL mode lets readers
// proceed while the single writer holds its transaction.
const maxFileConns = 4

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// WriteRecorder receives the outcome of every write scheduled through Write.
// metrics.Metrics implements it.
type WriteRecorder interface {
	ObserveWrite(err error)
}

// Store is an open handle on an embedded record store.
//
// A file-backed store uses SQLite in WAL mode: reads from many goroutines
// run against stable snapshots while writes are serialized through writeMu
// and the background write queue. An in-memory store uses a named
// shared-cache database and a single connection.
type Store struct {
	db         *sql.DB
	path       string
	identifier string
	memory     bool
	created    bool

	log      *slog.Logger
	recorder WriteRecorder

	writeMu   sync.Mutex
	queue     *writeQueue
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool

	// transaction accounting, read by tests
	txBegun  atomic.Int64
	txActive atomic.Int32
}

// Option configures a Store at open time.
type Option func(*Store)

// WithLogger sets the logger used for write failures and compaction.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWriteRecorder sets the sink for background write outcomes.
func WithWriteRecorder(r WriteRecorder) Option {
	return func(s *Store) { s.recorder = r }
}

// Open creates or opens a store file at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// If a previous open flagged the file for compaction, Open runs VACUUM
// before returning and before any transaction begins. A failed VACUUM is
// logged and the store opens uncompacted.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	// SQLite treats an empty file as a new database.
	info, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist) || (statErr == nil && info.Size() == 0)

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL",
		escapePath(path))

	s, err := openDSN(dsn, maxFileConns, opts...)
	if err != nil {
		return nil, err
	}
	s.path = path
	s.created = created

	if _, err := s.compactIfPending(context.Background()); err != nil {
		s.log.Warn("store compaction failed; opening uncompacted", "path", path, "error", err)
	}

	return s, nil
}

// OpenMemory opens a non-persistent store named by identifier.
// Every open with the same identifier in the same process shares one
// database until the last handle closes. Nothing is ever written to disk.
func OpenMemory(identifier string, opts ...Option) (*Store, error) {
	if identifier == "" {
		return nil, errors.New("in-memory store requires an identifier")
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", url.PathEscape(identifier))

	s, err := openDSN(dsn, 1, opts...)
	if err != nil {
		return nil, err
	}
	s.identifier = identifier
	s.memory = true
	s.created = true
	return s, nil
}

func openDSN(dsn string, maxConns int, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Keep at least one idle connection: a shared-cache memory database
	// disappears when its last connection closes.
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:    db,
		log:   slog.Default(),
		queue: newWriteQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.runWriter()

	return s, nil
}

// applySchema creates the record tables if they don't exist.
// A corrupt or foreign file fails here, on the first real read of the header.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// escapePath keeps '?' and '#' in file names from being read as URI syntax.
func escapePath(path string) string {
	u := url.URL{Path: filepath.ToSlash(path)}
	return u.EscapedPath()
}

// Close drains pending background writes and closes the database.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		// Queued writes still run; only new ones are refused.
		s.queue.Close()
		s.wg.Wait()
		s.closed.Store(true)
		err = s.db.Close()
	})
	return err
}

// Path returns the database file path, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Identifier returns the in-memory identifier, or "" for a file store.
func (s *Store) Identifier() string {
	return s.identifier
}

// IsInMemory reports whether the store has no persisted identity.
func (s *Store) IsInMemory() bool {
	return s.memory
}

// Created reports whether Open created the file (no prior data existed).
func (s *Store) Created() bool {
	return s.created
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion reads the persisted schema version. Inside an Update or
// Write body it reads through the enclosing transaction.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.querier(ctx).QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier returns the transaction carried by ctx, if any. An in-memory store
// has one connection, so a read outside it would wait on the open writer.
func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := s.txFrom(ctx); ok {
		return tx.tx
	}
	return s.db
}

// DeleteAll removes every record in a single write. The schema version is kept.
func (s *Store) DeleteAll(ctx context.Context) error {
	return s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(tx.ctx, "DELETE FROM records"); err != nil {
			return fmt.Errorf("delete all: %w", err)
		}
		return nil
	})
}
