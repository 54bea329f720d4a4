package record

import (
	"bytes"
	"fmt"
)

// Value is a sealed interface over the field types a stored record can hold.
// Only Null, String, Int, Double, Bool and Bytes implement it.
type Value interface {
	recordValue() // Sealed - only these types implement it
}

// Null marks an absent or cleared field.
// Reading a field that was never written yields Null{}, never a nil Value.
type Null struct{}

func (Null) recordValue() {}

// String is a text field.
type String string

func (String) recordValue() {}

// Int is a signed integer field. Booleans are NOT stored as Int.
type Int int64

func (Int) recordValue() {}

// Double is a floating point field.
type Double float64

func (Double) recordValue() {}

// Bool is a boolean field.
type Bool bool

func (Bool) recordValue() {}

// Bytes is an opaque binary field, usually an encoded sub-document.
type Bytes []byte

func (Bytes) recordValue() {}

// Type names as persisted alongside each field value.
const (
	TypeNull   = "none"
	TypeString = "string"
	TypeInt    = "int"
	TypeDouble = "double"
	TypeBool   = "bool"
	TypeBytes  = "bytes"
)

// TypeName returns the persisted type tag for v. A nil Value reports TypeNull.
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return TypeNull
	case String:
		return TypeString
	case Int:
		return TypeInt
	case Double:
		return TypeDouble
	case Bool:
		return TypeBool
	case Bytes:
		return TypeBytes
	default:
		return fmt.Sprintf("unknown(%T)", v)
	}
}

// IsNull reports whether v carries no value.
func IsNull(v Value) bool {
	switch v.(type) {
	case nil, Null:
		return true
	}
	return false
}

// AsString returns the string held by v, if v is a String.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsBytes returns the bytes held by v, if v is Bytes.
func AsBytes(v Value) ([]byte, bool) {
	b, ok := v.(Bytes)
	return []byte(b), ok
}

// Equal compares two values by type and content.
// A nil Value equals Null{}.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Double:
		bv, ok := b.(Double)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Bytes:
		bv, ok := b.(Bytes)
		return ok && bytes.Equal(av, bv)
	default:
		return false
	}
}

// Interface converts v into a plain Go value suitable for encoding/json.
// Bytes are returned as []byte (base64 when marshaled).
func Interface(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Double:
		return float64(val)
	case Bool:
		return bool(val)
	case Bytes:
		return []byte(val)
	default:
		return nil
	}
}

// Fields is a full record: field name to value.
type Fields map[string]Value
