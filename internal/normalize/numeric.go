// Package normalize coerces human-formatted spreadsheet cells into typed
// values: numbers that may carry thousands separators, and dates stored as
// Excel serials or text.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ToNumber coerces a cell to a float. Text may contain thousands separators
// and whitespace anywhere; blank or non-numeric text reports ok=false.
// Native numeric values pass through unchanged. It never panics.
func ToNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case string:
		return parseNumber(v)
	case []byte:
		return parseNumber(string(v))
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

// NaN and infinities are not readings.
func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
