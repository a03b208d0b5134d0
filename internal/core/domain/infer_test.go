package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferColumnType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		values       []string
		wantType     ColumnType
		wantNullable bool
	}{
		{"integers", []string{"1", "42", "-7"}, TypeInteger, false},
		{"integers with plus sign", []string{"+3", "10"}, TypeInteger, false},
		{"floats", []string{"1.5", "2.0", "-0.25"}, TypeFloat, false},
		{"mixed int and float widens to float", []string{"1", "2.5", "3"}, TypeFloat, false},
		{"scientific notation", []string{"1e3", "2.5E-2"}, TypeFloat, false},
		{"boolean words", []string{"true", "False", "YES", "no"}, TypeBoolean, false},
		{"digit flags are integers not booleans", []string{"1", "0", "1"}, TypeInteger, false},
		{"dates iso", []string{"2023-01-15", "2024-12-31"}, TypeDate, false},
		{"dates us", []string{"01/15/2023", "12/31/2024"}, TypeDate, false},
		{"datetimes", []string{"2023-01-15 10:30:00", "2023-01-16 00:00:00"}, TypeDateTime, false},
		{"datetimes rfc3339", []string{"2023-01-15T10:30:00Z"}, TypeDateTime, false},
		{"mixed date and word is string", []string{"2023-01-15", "yesterday"}, TypeString, false},
		{"mixed number and word is string", []string{"42", "n/a"}, TypeString, false},
		{"plain strings", []string{"alice", "bob"}, TypeString, false},
		{"empty value sets nullable", []string{"1", "", "3"}, TypeInteger, true},
		{"whitespace-only value counts as null", []string{"a", "   "}, TypeString, true},
		{"all empty is unknown", []string{"", "", ""}, TypeUnknown, true},
		{"no values is unknown", nil, TypeUnknown, false},
		{"values are trimmed", []string{" 7 ", "8"}, TypeInteger, false},
		{"lone sign is string", []string{"-", "+"}, TypeString, false},
		{"lone dot is string", []string{"."}, TypeString, false},
		{"double dot is string", []string{"1.2.3"}, TypeString, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotType, gotNullable := InferColumnType(tt.values)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantNullable, gotNullable)
		})
	}
}

func TestIsIntegerToken(t *testing.T) {
	t.Parallel()
	assert.True(t, isIntegerToken("0"))
	assert.True(t, isIntegerToken("-123"))
	assert.True(t, isIntegerToken("+9"))
	assert.False(t, isIntegerToken(""))
	assert.False(t, isIntegerToken("-"))
	assert.False(t, isIntegerToken("12a"))
	assert.False(t, isIntegerToken("1.0"))
}

func TestIsFloatToken(t *testing.T) {
	t.Parallel()
	assert.True(t, isFloatToken("1.5"))
	assert.True(t, isFloatToken(".5"))
	assert.True(t, isFloatToken("5."))
	assert.True(t, isFloatToken("42"))
	assert.True(t, isFloatToken("-1e10"))
	assert.True(t, isFloatToken("2.5E-2"))
	assert.False(t, isFloatToken(""))
	assert.False(t, isFloatToken("."))
	assert.False(t, isFloatToken("1.2.3"))
	assert.False(t, isFloatToken("1e"))
	assert.False(t, isFloatToken("1e1.5"))
	assert.False(t, isFloatToken("abc"))
}
