package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
		{"time", NewIRTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)), `"2024-03-01T12:00:00Z"`},
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
	obj := IRObject{
		"zebra": IRInt(1),
		"alpha": IRInt(2),
		"beta":  IRObject{"y": IRBool(true), "x": IRNull{}},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":null,"y":true},"zebra":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<a> & <b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a> & <b>"`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = MarshalCanonical(map[string]any{"price": 9.99})
	require.Error(t, err)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	result1, err := MarshalCanonical(IRString(composed))
	require.NoError(t, err)
	result2, err := MarshalCanonical(IRString(decomposed))
	require.NoError(t, err)

	assert.Equal(t, result1, result2, "NFC normalization should make these equal")

	keys1, err := MarshalCanonical(IRObject{composed: IRInt(1)})
	require.NoError(t, err)
	keys2, err := MarshalCanonical(IRObject{decomposed: IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, keys1, keys2)
}

func TestMarshalCanonicalWithGoTypes(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{
		"name":  "Comment",
		"count": 2,
		"tags":  []any{"a", int64(1), true, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"count":2,"name":"Comment","tags":["a",1,true,null]}`, string(result))
}

func TestMarshalCanonicalU2028U2029NotEscaped(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
	assert.NotContains(t, string(result), `\u2028`)
	assert.NotContains(t, string(result), `\u2029`)
}

func TestMarshalCanonicalLiteralBackslashU2028(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "literal backslash-u2028 text",
			input:    `the escape sequence is \u2028`,
			expected: `"the escape sequence is \\u2028"`,
		},
		{
			name:     "mixed literal and actual",
			input:    "literal \\u2028 and actual \u2028",
			expected: "\"literal \\\\u2028 and actual \u2028\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}
