package lifecycle

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/homestore/internal/record"
	"github.com/roach88/homestore/internal/schema"
	"github.com/roach88/homestore/internal/store"
)

func TestBackup_WritesOpenableSnapshot(t *testing.T) {
	m, env := newTestManager(t)
	h, err := m.OpenLiveStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Update(context.Background(), func(tx *store.Tx) error {
		return tx.Put(record.KindScene, "s1", record.Fields{"Name": record.String("Evening")})
	}))

	path, ok := m.Backup(context.Background())
	require.True(t, ok)
	assert.Equal(t, filepath.Join(env.dir, "dataStore", "backup.db"), path)
	assert.Equal(t, path, m.BackupPath())

	b, err := store.Open(path)
	require.NoError(t, err)
	defer b.Close()
	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.TargetVersion, snap.SchemaVersion)
	assert.Equal(t, 1, snap.RecordCount())
}

func TestBackup_ReplacesPreviousBackup(t *testing.T) {
	m, _ := newTestManager(t)
	h, err := m.OpenLiveStore(context.Background())
	require.NoError(t, err)

	first, ok := m.Backup(context.Background())
	require.True(t, ok)

	require.NoError(t, h.Update(context.Background(), func(tx *store.Tx) error {
		return tx.Put(record.KindZone, "z1", nil)
	}))
	second, ok := m.Backup(context.Background())
	require.True(t, ok)
	assert.Equal(t, first, second)

	b, err := store.Open(second)
	require.NoError(t, err)
	defer b.Close()
	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RecordCount(), "backup reflects the latest data")
}

func TestBackup_DegradedStoreIsRefused(t *testing.T) {
	m, env := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(env.storePath()), 0o700))
	require.NoError(t, os.WriteFile(env.storePath(), bytes.Repeat([]byte("junk"), 2048), 0o600))

	path, ok := m.Backup(context.Background())
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Contains(t, env.logs.String(), "backup failed")

	_, err := os.Stat(m.BackupPath())
	assert.True(t, os.IsNotExist(err))
}

func TestBackup_OpensLiveStoreOnDemand(t *testing.T) {
	m, _ := newTestManager(t)
	_, ok := m.Backup(context.Background())
	assert.True(t, ok)
	assert.Equal(t, StateReady, m.State())
}

func TestExportBackup_Zstd(t *testing.T) {
	m, _ := newTestManager(t)
	h, err := m.OpenLiveStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Update(context.Background(), func(tx *store.Tx) error {
		return tx.Put(record.KindAction, "a1", record.Fields{"Name": record.String("Lights")})
	}))

	var out bytes.Buffer
	n, err := m.ExportBackup(context.Background(), &out)
	require.NoError(t, err)

	raw, err := os.ReadFile(m.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), n)

	dec, err := zstd.NewReader(&out)
	require.NoError(t, err)
	defer dec.Close()
	var plain bytes.Buffer
	_, err = plain.ReadFrom(dec)
	require.NoError(t, err)
	assert.Equal(t, raw, plain.Bytes())
}
