package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeHeaders(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "unique names unchanged",
			input: []string{"id", "name", "score"},
			want:  []string{"id", "name", "score"},
		},
		{
			name:  "duplicates get positional suffixes",
			input: []string{"x", "x", "x"},
			want:  []string{"x", "x_2", "x_3"},
		},
		{
			name:  "empty names become column_N",
			input: []string{"", "a", ""},
			want:  []string{"column_1", "a", "column_3"},
		},
		{
			name:  "duplicate empty names",
			input: []string{"", ""},
			want:  []string{"column_1", "column_2"},
		},
		{
			name:  "suffixed name collides with literal",
			input: []string{"x", "x", "x_2"},
			want:  []string{"x", "x_2", "x_2_2"},
		},
		{
			name:  "nil input",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DedupeHeaders(tt.input))
		})
	}
}

func TestDetectError(t *testing.T) {
	t.Parallel()

	plain := NewDetectError(ErrInsufficientSample, "needed %d rows", 5)
	assert.Equal(t, "insufficient_sample: needed 5 rows", plain.Error())
	assert.Nil(t, plain.Unwrap())

	cause := errors.New("connection reset")
	wrapped := WrapDetectError(ErrUpstreamFetch, cause, "range request")
	assert.Contains(t, wrapped.Error(), "upstream_fetch_error")
	assert.Contains(t, wrapped.Error(), "connection reset")
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrDecodeFailed, KindOf(NewDetectError(ErrDecodeFailed, "bad bytes")))

	// Wrapped DetectErrors are still found through the chain.
	inner := NewDetectError(ErrRangeUnsupported, "no ranges")
	require.Equal(t, ErrRangeUnsupported, KindOf(WrapDetectError(ErrRangeUnsupported, inner, "outer")))

	// Unknown errors default to upstream fetch.
	assert.Equal(t, ErrUpstreamFetch, KindOf(errors.New("boom")))
	assert.Equal(t, ErrUpstreamFetch, KindOf(context.DeadlineExceeded))
}
