package migrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/homestore/internal/record"
)

// Compose runs transforms in order, stopping at the first error.
func Compose(ts ...Transform) Transform {
	return func(v View, oldVersion int) error {
		for _, t := range ts {
			if err := t(v, oldVersion); err != nil {
				return err
			}
		}
		return nil
	}
}

// forEach calls fn for every record of kind.
func forEach(v View, kind string, fn func(id string) error) error {
	ids, err := v.Enumerate(kind)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// BackfillDefault sets field to value on every record of kind.
func BackfillDefault(kind, field string, value record.Value) Transform {
	return func(v View, _ int) error {
		return forEach(v, kind, func(id string) error {
			return v.SetField(kind, id, field, value)
		})
	}
}

// BackfillMissing sets field to gen() on every record of kind where the
// field is unset. Records that already hold a value keep it, so generated
// values (fresh UUIDs) survive a second run.
func BackfillMissing(kind, field string, gen func() record.Value) Transform {
	return func(v View, _ int) error {
		return forEach(v, kind, func(id string) error {
			cur, err := v.GetField(kind, id, field)
			if err != nil {
				return err
			}
			if !record.IsNull(cur) {
				return nil
			}
			return v.SetField(kind, id, field, gen())
		})
	}
}

// DedupeByKey deletes every record of kind whose keyField repeats one seen
// earlier in enumeration order. The first record with a key is kept.
// Records without a key are never deleted.
func DedupeByKey(kind, keyField string) Transform {
	return func(v View, _ int) error {
		seen := make(map[string]struct{})
		return forEach(v, kind, func(id string) error {
			key, err := v.GetField(kind, id, keyField)
			if err != nil {
				return err
			}
			if record.IsNull(key) {
				return nil
			}
			k := fmt.Sprintf("%s:%v", record.TypeName(key), record.Interface(key))
			if _, dup := seen[k]; dup {
				return v.Delete(kind, id)
			}
			seen[k] = struct{}{}
			return nil
		})
	}
}

// Reference names a field on another kind that holds a record id.
type Reference struct {
	Kind  string
	Field string
}

// RecomputeIdentifier replaces the id of every record of kind with
// derive(id, context), where context is the record's contextField. Fields
// listed in refs that held the old id are pointed at the new one.
//
// derive must be idempotent: derive(derive(id, c), c) == derive(id, c).
// Records whose id is already derived, or that have no string context,
// are left alone.
func RecomputeIdentifier(kind, contextField string, derive func(id, context string) string, refs ...Reference) Transform {
	return func(v View, _ int) error {
		ids, err := v.Enumerate(kind)
		if err != nil {
			return err
		}

		renamed := make(map[string]string)
		for _, id := range ids {
			ctxVal, err := v.GetField(kind, id, contextField)
			if err != nil {
				return err
			}
			ctx, ok := record.AsString(ctxVal)
			if !ok || ctx == "" {
				continue
			}
			newID := derive(id, ctx)
			if newID == id {
				continue
			}
			if err := v.Rekey(kind, id, newID); err != nil {
				return err
			}
			renamed[id] = newID
		}
		if len(renamed) == 0 {
			return nil
		}

		for _, ref := range refs {
			err := forEach(v, ref.Kind, func(id string) error {
				cur, err := v.GetField(ref.Kind, id, ref.Field)
				if err != nil {
					return err
				}
				old, ok := record.AsString(cur)
				if !ok {
					return nil
				}
				newID, ok := renamed[old]
				if !ok {
					return nil
				}
				return v.SetField(ref.Kind, id, ref.Field, record.String(newID))
			})
			if err != nil {
				return fmt.Errorf("reattach %s.%s: %w", ref.Kind, ref.Field, err)
			}
		}
		return nil
	}
}

// CopyField copies from into to on every record of kind that has a value
// for from. The source field is left in place.
func CopyField(kind, from, to string) Transform {
	return func(v View, _ int) error {
		return forEach(v, kind, func(id string) error {
			cur, err := v.GetField(kind, id, from)
			if err != nil {
				return err
			}
			if record.IsNull(cur) {
				return nil
			}
			return v.SetField(kind, id, to, cur)
		})
	}
}

// RenameField moves a field to a new name with copy semantics: the old
// field keeps its value and is simply no longer read. An interrupted rename
// can always be run again.
func RenameField(kind, from, to string) Transform {
	return CopyField(kind, from, to)
}

// MapField rewrites field on every record of kind through fn. fn reports
// whether it changed the value; unchanged values are not written.
func MapField(kind, field string, fn func(record.Value) (record.Value, bool)) Transform {
	return func(v View, _ int) error {
		return forEach(v, kind, func(id string) error {
			cur, err := v.GetField(kind, id, field)
			if err != nil {
				return err
			}
			next, changed := fn(cur)
			if !changed {
				return nil
			}
			return v.SetField(kind, id, field, next)
		})
	}
}

// MapString rewrites a string field through fn. Non-string values are skipped.
func MapString(kind, field string, fn func(string) string) Transform {
	return MapField(kind, field, func(cur record.Value) (record.Value, bool) {
		s, ok := record.AsString(cur)
		if !ok {
			return nil, false
		}
		next := fn(s)
		return record.String(next), next != s
	})
}

// RewriteBlob rewrites one value inside a JSON document stored in field.
//
// path leads through nested objects to the value passed to fn; fn returns
// the replacement and whether to write it. A record whose field is not a
// JSON object, or whose document lacks the path, is skipped and migration
// continues with the next record. The field keeps its storage type (Bytes
// or String). Numbers round-trip exactly.
func RewriteBlob(kind, field string, path []string, fn func(any) (any, bool)) Transform {
	return func(v View, _ int) error {
		if len(path) == 0 {
			return fmt.Errorf("rewrite %s.%s: empty path", kind, field)
		}
		return forEach(v, kind, func(id string) error {
			cur, err := v.GetField(kind, id, field)
			if err != nil {
				return err
			}

			var raw []byte
			asString := false
			switch val := cur.(type) {
			case record.Bytes:
				raw = val
			case record.String:
				raw = []byte(val)
				asString = true
			default:
				return nil
			}

			doc, err := decodeObject(raw)
			if err != nil {
				slog.Debug("skipping undecodable blob",
					"kind", kind, "id", id, "field", field, "error", err)
				return nil
			}

			parent := doc
			for _, key := range path[:len(path)-1] {
				next, ok := parent[key].(map[string]any)
				if !ok {
					return nil
				}
				parent = next
			}
			leafKey := path[len(path)-1]
			leaf, ok := parent[leafKey]
			if !ok {
				return nil
			}
			replacement, changed := fn(leaf)
			if !changed {
				return nil
			}
			parent[leafKey] = replacement

			out, err := json.Marshal(doc)
			if err != nil {
				slog.Debug("skipping unencodable blob",
					"kind", kind, "id", id, "field", field, "error", err)
				return nil
			}
			if asString {
				return v.SetField(kind, id, field, record.String(out))
			}
			return v.SetField(kind, id, field, record.Bytes(out))
		})
	}
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return doc, nil
}
