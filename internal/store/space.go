package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const metaCompactPending = "compact_pending"

var errBackupInTx = errors.New("backup inside a write transaction")

// Usage describes how much of the database file holds live data.
type Usage struct {
	FileBytes int64
	UsedBytes int64
}

// SpaceUsage reports the logical file size and the bytes not on the freelist.
func (s *Store) SpaceUsage(ctx context.Context) (Usage, error) {
	var pageCount, pageSize, freePages int64
	for _, p := range []struct {
		pragma string
		dst    *int64
	}{
		{"PRAGMA page_count", &pageCount},
		{"PRAGMA page_size", &pageSize},
		{"PRAGMA freelist_count", &freePages},
	} {
		if err := s.querier(ctx).QueryRowContext(ctx, p.pragma).Scan(p.dst); err != nil {
			return Usage{}, fmt.Errorf("%s: %w", p.pragma, err)
		}
	}
	return Usage{
		FileBytes: pageCount * pageSize,
		UsedBytes: (pageCount - freePages) * pageSize,
	}, nil
}

// MarkCompaction flags the file to be compacted by the next Open.
// Compaction never happens on a store that is in use.
func (s *Store) MarkCompaction(ctx context.Context) error {
	return s.Update(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(tx.ctx, `
			INSERT INTO store_meta (key, value) VALUES (?, '1')
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, metaCompactPending)
		if err != nil {
			return fmt.Errorf("mark compaction: %w", err)
		}
		return nil
	})
}

// CompactionPending reports whether the next Open will compact the file.
func (s *Store) CompactionPending(ctx context.Context) (bool, error) {
	var v string
	err := s.querier(ctx).QueryRowContext(ctx,
		"SELECT value FROM store_meta WHERE key = ?", metaCompactPending).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read compaction flag: %w", err)
	}
	return v == "1", nil
}

// compactIfPending clears the flag and runs VACUUM when it was set. The flag
// is not restored on failure; the next open re-evaluates the policy.
// Called from Open only, before the handle is returned.
func (s *Store) compactIfPending(ctx context.Context) (bool, error) {
	pending, err := s.CompactionPending(ctx)
	if err != nil || !pending {
		return false, err
	}

	before, _ := s.SpaceUsage(ctx)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM store_meta WHERE key = ?", metaCompactPending); err != nil {
		return false, fmt.Errorf("clear compaction flag: %w", err)
	}
	// VACUUM cannot run inside a transaction.
	if err := vacuum(ctx, s.db); err != nil {
		return false, fmt.Errorf("VACUUM failed: %w", err)
	}
	after, _ := s.SpaceUsage(ctx)

	s.log.Info("store compacted",
		"path", s.path,
		"before_bytes", before.FileBytes,
		"after_bytes", after.FileBytes,
	)
	return true, nil
}

// vacuum rewrites the file without its free pages. Tests replace it.
var vacuum = func(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "VACUUM")
	return err
}

// BackupTo writes a compact, independently openable copy of the store to
// dest. The copy reads a consistent snapshot; concurrent writers are not
// blocked. dest must not exist. It cannot run inside an Update or Write body.
func (s *Store) BackupTo(ctx context.Context, dest string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.InTransaction(ctx) {
		return errBackupInTx
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backup to %s: %w", dest, err)
	}
	return nil
}
