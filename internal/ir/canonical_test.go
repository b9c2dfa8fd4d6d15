package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"reference", Reference("/data/a"), `"/data/a"`},
		{"int", 42, "42"},
		{"int64", int64(-100), "-100"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"string slice", []string{"b", "a"}, `["b","a"]`},
		{"empty object", map[string]any{}, "{}"},
		{"string map", map[string]string{"b": "2", "a": "1"}, `{"a":"1","b":"2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"y": true, "x": false},
		"beta":  []any{"<&>"},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"x":false,"y":true},"beta":["<&>"],"zebra":1}`, string(result))
}

func TestMarshalCanonicalRejectsFloatAndNull(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"a": nil})
	assert.Error(t, err)
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	result, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestToCanonical_Struct(t *testing.T) {
	v, err := ToCanonical(NodeDef{Name: "rep", Kind: KindRepeat, Count: 2})
	require.NoError(t, err)

	result, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"count":2,"kind":"repeat","name":"rep"}`, string(result))
}
