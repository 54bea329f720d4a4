package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Verify all types implement Value (compile-time check via assignment)
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Double(1.5)
	var _ Value = Bool(true)
	var _ Value = Bytes("blob")
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{nil, TypeNull},
		{Null{}, TypeNull},
		{String("x"), TypeString},
		{Int(1), TypeInt},
		{Double(1), TypeDouble},
		{Bool(false), TypeBool},
		{Bytes(nil), TypeBytes},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeName(tt.v), "%#v", tt.v)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(String("a"), String("a")))
	assert.True(t, Equal(Bytes{}, Bytes(nil)))
	assert.True(t, Equal(Bytes("ab"), Bytes("ab")))

	assert.False(t, Equal(String("1"), Int(1)), "types must match")
	assert.False(t, Equal(Int(1), Double(1)), "int and double are distinct")
	assert.False(t, Equal(Bool(true), Int(1)), "bool is not an int")
	assert.False(t, Equal(Null{}, String("")))
}

func TestAccessors(t *testing.T) {
	s, ok := AsString(String("hello"))
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = AsString(Int(3))
	assert.False(t, ok)

	b, ok := AsBytes(Bytes("raw"))
	require.True(t, ok)
	assert.Equal(t, []byte("raw"), b)

	_, ok = AsBytes(String("raw"))
	assert.False(t, ok)
}

func TestInterface_JSON(t *testing.T) {
	fields := map[string]any{}
	for name, v := range (Fields{
		"name":  String("Lights"),
		"count": Int(3),
		"ratio": Double(0.5),
		"on":    Bool(true),
		"gone":  Null{},
	}) {
		fields[name] = Interface(v)
	}

	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3,"gone":null,"name":"Lights","on":true,"ratio":0.5}`, string(data))
}
