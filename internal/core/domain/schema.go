package domain

import (
	"errors"
	"fmt"
)

// ColumnType is the semantic type inferred for a column from its sampled values.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInteger  ColumnType = "integer"
	TypeFloat    ColumnType = "float"
	TypeDate     ColumnType = "date"
	TypeDateTime ColumnType = "datetime"
	TypeBoolean  ColumnType = "boolean"
	// TypeUnknown is reported only when a column had zero non-null sampled values.
	TypeUnknown ColumnType = "unknown"
)

// ColumnSchema describes one column of a tabular resource.
type ColumnSchema struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Nullable     bool       `json:"nullable"`
	SampleValues []string   `json:"sample_values,omitempty"`
}

// ErrorKind classifies detection failures. All kinds are resource-scoped:
// a failed resource never aborts a dataset scan.
type ErrorKind string

const (
	ErrRangeUnsupported   ErrorKind = "range_unsupported"
	ErrDecodeFailed       ErrorKind = "decode_failed"
	ErrInsufficientSample ErrorKind = "insufficient_sample"
	ErrUnsupportedFormat  ErrorKind = "unsupported_format"
	ErrUpstreamFetch      ErrorKind = "upstream_fetch_error"
	ErrTimeout            ErrorKind = "timeout"
)

// DetectError carries a detection failure with its kind.
type DetectError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DetectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DetectError) Unwrap() error { return e.Err }

// NewDetectError builds a DetectError with a formatted message.
func NewDetectError(kind ErrorKind, format string, args ...any) *DetectError {
	return &DetectError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapDetectError attaches a kind and message to an underlying error.
func WrapDetectError(kind ErrorKind, err error, format string, args ...any) *DetectError {
	return &DetectError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, or ErrUpstreamFetch if err carries none.
func KindOf(err error) ErrorKind {
	var de *DetectError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrUpstreamFetch
}

// DedupeHeaders returns header names made unique by positional suffixing:
// the second occurrence of a name becomes name_2, the third name_3, and so on.
// Empty names are replaced with column_<position> (1-based) before de-duplication.
func DedupeHeaders(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
			// The suffixed form could itself collide with a later literal name.
			seen[name]++
		}
		out[i] = name
	}
	return out
}
