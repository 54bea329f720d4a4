package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/homestore/internal/record"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seed writes records in order so enumeration order is the argument order.
func seed(t *testing.T, s *Store, kind string, recs ...seedRecord) {
	t.Helper()
	err := s.Update(context.Background(), func(tx *Tx) error {
		for _, r := range recs {
			if err := tx.Put(kind, r.id, r.fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed %s: %v", kind, err)
	}
}

type seedRecord struct {
	id     string
	fields record.Fields
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
