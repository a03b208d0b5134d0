package domain

import (
	"strings"
	"time"
)

// Boolean word tokens. Digit tokens "1"/"0" are deliberately excluded: they
// are ambiguous with integers, so a column is boolean only when every
// non-null value is one of these words.
var boolWords = map[string]bool{
	"true":  true,
	"false": true,
	"yes":   true,
	"no":    true,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
}

// InferColumnType classifies a column from its sampled raw values. An empty
// string counts as null: it sets the nullable flag and is excluded from
// classification. The returned type is the most specific one satisfied by
// every non-null value; numeric disagreement widens integer -> float ->
// string, and any disagreement involving boolean, date, or datetime falls
// back to string. A column with zero non-null values is TypeUnknown.
func InferColumnType(values []string) (ColumnType, bool) {
	nullable := false
	seen := 0
	allInt, allFloat, allBool, allDate, allDateTime := true, true, true, true, true

	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			nullable = true
			continue
		}
		seen++

		if allInt && !isIntegerToken(v) {
			allInt = false
		}
		if allFloat && !isFloatToken(v) {
			allFloat = false
		}
		if allBool && !boolWords[strings.ToLower(v)] {
			allBool = false
		}
		if allDate && !matchesAny(v, dateLayouts) {
			allDate = false
		}
		if allDateTime && !matchesAny(v, dateTimeLayouts) {
			allDateTime = false
		}
	}

	if seen == 0 {
		return TypeUnknown, nullable
	}

	switch {
	case allBool:
		return TypeBoolean, nullable
	case allInt:
		return TypeInteger, nullable
	case allFloat:
		return TypeFloat, nullable
	case allDate:
		return TypeDate, nullable
	case allDateTime:
		return TypeDateTime, nullable
	default:
		return TypeString, nullable
	}
}

// isIntegerToken reports whether v is an optional sign followed by digits only.
func isIntegerToken(v string) bool {
	if v == "" {
		return false
	}
	if v[0] == '+' || v[0] == '-' {
		v = v[1:]
	}
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// isFloatToken reports whether v is digits with at most one decimal point and
// an optional exponent. Plain integers satisfy the float pattern too.
func isFloatToken(v string) bool {
	if v == "" {
		return false
	}
	if v[0] == '+' || v[0] == '-' {
		v = v[1:]
	}

	mantissa := v
	if i := strings.IndexAny(v, "eE"); i >= 0 {
		mantissa = v[:i]
		exp := v[i+1:]
		if !isIntegerToken(exp) {
			return false
		}
	}

	digits := 0
	dots := 0
	for i := 0; i < len(mantissa); i++ {
		switch {
		case mantissa[i] >= '0' && mantissa[i] <= '9':
			digits++
		case mantissa[i] == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func matchesAny(v string, layouts []string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
