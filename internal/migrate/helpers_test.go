package migrate

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/homestore/internal/record"
	"github.com/roach88/homestore/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type rec struct {
	id     string
	fields record.Fields
}

func put(t *testing.T, s *store.Store, kind string, recs ...rec) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx *store.Tx) error {
		for _, r := range recs {
			if err := tx.Put(kind, r.id, r.fields); err != nil {
				return err
			}
		}
		return nil
	}))
}

func setVersion(t *testing.T, s *store.Store, v int) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx *store.Tx) error {
		return tx.SetSchemaVersion(v)
	}))
}

func version(t *testing.T, s *store.Store) int {
	t.Helper()
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	return v
}

// dump captures every record of every kind, in enumeration order.
type dumpedRecord struct {
	Kind   string
	ID     string
	Fields record.Fields
}

func dump(t *testing.T, s *store.Store) []dumpedRecord {
	t.Helper()
	var out []dumpedRecord
	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		kinds, err := tx.Kinds()
		if err != nil {
			return err
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			ids, err := tx.Enumerate(kind)
			if err != nil {
				return err
			}
			for _, id := range ids {
				f, err := tx.Record(kind, id)
				if err != nil {
					return err
				}
				out = append(out, dumpedRecord{Kind: kind, ID: id, Fields: f})
			}
		}
		return nil
	}))
	return out
}

// apply runs a single transform in its own transaction.
func apply(t *testing.T, s *store.Store, tr Transform) error {
	t.Helper()
	return s.Update(context.Background(), func(tx *store.Tx) error {
		return tr(tx, 0)
	})
}

func ids(t *testing.T, s *store.Store, kind string) []string {
	t.Helper()
	var out []string
	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		var err error
		out, err = tx.Enumerate(kind)
		return err
	}))
	return out
}

func field(t *testing.T, s *store.Store, kind, id, name string) record.Value {
	t.Helper()
	var v record.Value
	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		var err error
		v, err = tx.GetField(kind, id, name)
		return err
	}))
	return v
}
