package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// BackupPath returns the fixed backup file location. Restoring means
// replacing StorePath with this file while the process is stopped.
func (m *Manager) BackupPath() string {
	return filepath.Join(m.StoreDirectory(), m.backupFile)
}

// Backup writes a snapshot of the live store to BackupPath, replacing any
// previous backup, and returns the path. The live store is opened if needed.
//
// Backups are best-effort: every failure is logged and reported as ("", false).
// A degraded store is never backed up, since its contents are not the user's
// data on disk.
func (m *Manager) Backup(ctx context.Context) (string, bool) {
	path, err := m.backup(ctx)
	m.metrics.ObserveBackup(err == nil)
	if err != nil {
		m.log.Error("backup failed", "path", path, "error", err)
		return "", false
	}
	m.log.Info("backup written", "path", path)
	return path, true
}

func (m *Manager) backup(ctx context.Context) (string, error) {
	h, err := m.OpenLiveStore(ctx)
	if err != nil {
		return "", err
	}
	if h.Degraded() || h.IsInMemory() {
		return "", ErrDegraded
	}

	path := m.BackupPath()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Error("unable to remove previous backup", "path", path, "error", err)
	}
	// The copy runs even if ctx is cancelled; a partial backup is worse than none.
	if err := h.BackupTo(context.WithoutCancel(ctx), path); err != nil {
		os.Remove(path)
		return path, err
	}
	return path, nil
}

// ExportBackup takes a fresh backup and streams it to w zstd-compressed,
// for support bundles. The backup file on disk stays uncompressed and
// directly openable.
func (m *Manager) ExportBackup(ctx context.Context, w io.Writer) (int64, error) {
	path, ok := m.Backup(ctx)
	if !ok {
		return 0, errors.New("export: backup failed")
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	n, err := io.Copy(enc, f)
	if err != nil {
		enc.Close()
		return n, fmt.Errorf("export: compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("export: finish: %w", err)
	}
	return n, nil
}
