package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/homestore/internal/record"
)

type txKey struct{}

// Tx is a transaction on a Store. Inside Update and Write bodies it is the
// mutable record view: records are addressed by (kind, id) and read or
// written one field at a time, without knowing the record's full shape.
//
// A Tx is bound to the goroutine running the body and must not escape it.
type Tx struct {
	s        *Store
	tx       *sql.Tx
	ctx      context.Context
	writable bool
}

// Context returns a context that carries this transaction.
// Passing it to Update or Write on the same store re-enters the transaction
// instead of starting a nested one.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// InTransaction reports whether ctx carries an open write transaction on s.
func (s *Store) InTransaction(ctx context.Context) bool {
	_, ok := s.txFrom(ctx)
	return ok
}

func (s *Store) txFrom(ctx context.Context) (*Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok || tx.s != s || !tx.writable {
		return nil, false
	}
	return tx, true
}

// Update runs fn inside a single write transaction and commits if fn
// returns nil. Any error rolls back every change fn made.
//
// If ctx already carries a write transaction on this store, fn runs inside
// it and no new transaction is started.
//
// Cancelling ctx does not interrupt a transaction that has begun.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if tx, ok := s.txFrom(ctx); ok {
		return fn(tx)
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	s.txBegun.Add(1)
	s.txActive.Add(1)
	defer s.txActive.Add(-1)

	tx := &Tx{s: s, tx: sqlTx, writable: true}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// View runs fn inside a read transaction against a stable snapshot.
// Writes attempted through the Tx fail.
//
// If ctx carries a write transaction on this store, fn reads through it and
// sees its uncommitted changes.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	if wtx, ok := s.txFrom(ctx); ok {
		return fn(&Tx{s: s, tx: wtx.tx, ctx: wtx.ctx})
	}
	if s.closed.Load() {
		return ErrClosed
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{s: s, tx: sqlTx, ctx: ctx}
	return fn(tx)
}

var errReadOnly = errors.New("write attempted in read transaction")

func (t *Tx) checkWritable() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

// SchemaVersion reads the schema version as seen by this transaction.
func (t *Tx) SchemaVersion() (int, error) {
	var version int
	if err := t.tx.QueryRowContext(t.ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// SetSchemaVersion records the schema version. It commits or rolls back
// with the rest of the transaction.
func (t *Tx) SetSchemaVersion(version int) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if version < 0 {
		return fmt.Errorf("set user_version: negative version %d", version)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Enumerate returns the ids of every record of kind in enumeration order
// (insertion order, stable across rekeys).
func (t *Tx) Enumerate(kind string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id FROM records
		WHERE kind = ?
		ORDER BY seq ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("enumerate %s: scan: %w", kind, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", kind, err)
	}
	return ids, nil
}

func (t *Tx) recordSeq(kind, id string) (int64, error) {
	var seq int64
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT seq FROM records WHERE kind = ? AND id = ?", kind, id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", kind, id, err)
	}
	return seq, nil
}

// GetField reads one field. A field that was never set reads as record.Null.
// Returns ErrNotFound if the record does not exist.
func (t *Tx) GetField(kind, id, name string) (record.Value, error) {
	seq, err := t.recordSeq(kind, id)
	if err != nil {
		return nil, err
	}

	var typ string
	var raw any
	err = t.tx.QueryRowContext(t.ctx,
		"SELECT type, value FROM record_fields WHERE record_seq = ? AND name = ?",
		seq, name).Scan(&typ, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Null{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %q.%s: %w", kind, id, name, err)
	}
	return decodeValue(typ, raw)
}

// SetField writes one field. Writing record.Null removes the field.
func (t *Tx) SetField(kind, id, name string, v record.Value) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	seq, err := t.recordSeq(kind, id)
	if err != nil {
		return err
	}
	return t.setFieldSeq(seq, kind, id, name, v)
}

func (t *Tx) setFieldSeq(seq int64, kind, id, name string, v record.Value) error {
	if record.IsNull(v) {
		if _, err := t.tx.ExecContext(t.ctx,
			"DELETE FROM record_fields WHERE record_seq = ? AND name = ?", seq, name); err != nil {
			return fmt.Errorf("clear %s %q.%s: %w", kind, id, name, err)
		}
		return nil
	}

	typ, raw, err := encodeValue(v)
	if err != nil {
		return fmt.Errorf("set %s %q.%s: %w", kind, id, name, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO record_fields (record_seq, name, type, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_seq, name) DO UPDATE SET type = excluded.type, value = excluded.value
	`, seq, name, typ, raw)
	if err != nil {
		return fmt.Errorf("set %s %q.%s: %w", kind, id, name, err)
	}
	return nil
}

// Delete removes a record and all its fields. Deleting a missing record is a no-op.
func (t *Tx) Delete(kind, id string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM records WHERE kind = ? AND id = ?", kind, id); err != nil {
		return fmt.Errorf("delete %s %q: %w", kind, id, err)
	}
	return nil
}

// Rekey changes a record's primary identifier, keeping its fields and its
// enumeration position. Fails if newID is already taken within kind.
func (t *Tx) Rekey(kind, oldID, newID string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if oldID == newID {
		return nil
	}
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE records SET id = ? WHERE kind = ? AND id = ?", newID, kind, oldID)
	if err != nil {
		return fmt.Errorf("rekey %s %q -> %q: %w", kind, oldID, newID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rekey %s %q: rows affected: %w", kind, oldID, err)
	}
	if n == 0 {
		return fmt.Errorf("rekey %s %q: %w", kind, oldID, ErrNotFound)
	}
	return nil
}

// Put creates the record if needed and sets the given fields.
// Fields not mentioned are left as they are.
func (t *Tx) Put(kind, id string, fields record.Fields) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("put %s: empty id", kind)
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO records (kind, id) VALUES (?, ?)
		ON CONFLICT(kind, id) DO NOTHING
	`, kind, id); err != nil {
		return fmt.Errorf("put %s %q: %w", kind, id, err)
	}
	seq, err := t.recordSeq(kind, id)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := t.setFieldSeq(seq, kind, id, name, fields[name]); err != nil {
			return err
		}
	}
	return nil
}

// Record reads every field of a record.
func (t *Tx) Record(kind, id string) (record.Fields, error) {
	seq, err := t.recordSeq(kind, id)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT name, type, value FROM record_fields WHERE record_seq = ? ORDER BY name", seq)
	if err != nil {
		return nil, fmt.Errorf("read %s %q: %w", kind, id, err)
	}
	defer rows.Close()

	fields := make(record.Fields)
	for rows.Next() {
		var name, typ string
		var raw any
		if err := rows.Scan(&name, &typ, &raw); err != nil {
			return nil, fmt.Errorf("read %s %q: scan: %w", kind, id, err)
		}
		v, err := decodeValue(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("read %s %q.%s: %w", kind, id, name, err)
		}
		fields[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s %q: %w", kind, id, err)
	}
	return fields, nil
}

// Count returns the number of records of kind.
func (t *Tx) Count(kind string) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(t.ctx,
		"SELECT COUNT(*) FROM records WHERE kind = ?", kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Kinds lists every kind that has at least one record, sorted.
func (t *Tx) Kinds() ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT DISTINCT kind FROM records ORDER BY kind")
	if err != nil {
		return nil, fmt.Errorf("list kinds: %w", err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list kinds: scan: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

// encodeValue maps a record.Value onto a type tag and a SQLite value.
func encodeValue(v record.Value) (string, any, error) {
	switch val := v.(type) {
	case record.String:
		return record.TypeString, string(val), nil
	case record.Int:
		return record.TypeInt, int64(val), nil
	case record.Double:
		return record.TypeDouble, float64(val), nil
	case record.Bool:
		if val {
			return record.TypeBool, int64(1), nil
		}
		return record.TypeBool, int64(0), nil
	case record.Bytes:
		// Non-nil so an empty blob is not stored as NULL.
		b := []byte(val)
		if b == nil {
			b = []byte{}
		}
		return record.TypeBytes, b, nil
	default:
		return "", nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// decodeValue reverses encodeValue. The driver may hand back TEXT as either
// string or []byte, so both are accepted.
func decodeValue(typ string, raw any) (record.Value, error) {
	switch typ {
	case record.TypeNull:
		return record.Null{}, nil
	case record.TypeString:
		switch s := raw.(type) {
		case string:
			return record.String(s), nil
		case []byte:
			return record.String(string(s)), nil
		}
	case record.TypeInt:
		if n, ok := raw.(int64); ok {
			return record.Int(n), nil
		}
	case record.TypeDouble:
		switch f := raw.(type) {
		case float64:
			return record.Double(f), nil
		case int64:
			// SQLite stores integral REALs compactly and may return them as INTEGER.
			return record.Double(float64(f)), nil
		}
	case record.TypeBool:
		if n, ok := raw.(int64); ok {
			return record.Bool(n != 0), nil
		}
	case record.TypeBytes:
		switch b := raw.(type) {
		case []byte:
			return record.Bytes(append([]byte(nil), b...)), nil
		case string:
			return record.Bytes([]byte(b)), nil
		case nil:
			return record.Bytes([]byte{}), nil
		}
	default:
		return nil, fmt.Errorf("unknown field type %q", typ)
	}
	return nil, fmt.Errorf("field type %q holds %T", typ, raw)
}
