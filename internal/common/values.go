package common

import (
	"fmt"
	"strings"
)

// UnknownStr is the String() fallback for out-of-range enum values.
const UnknownStr = "unknown"

// IsBlank reports whether a field value carries no data: nil, a
// whitespace-only string, or an empty list or map.
func IsBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// ValuesEqual compares two scalar field values loosely, so that the int 7,
// the float 7.0 and the string "7" all match. Lookups go through this because
// source rows are mostly strings while stored attributes are typed.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return Stringify(a) == Stringify(b)
}

// Stringify renders a scalar value the way it is compared and keyed.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}

		return fmt.Sprintf("%g", val)
	case float32:
		return Stringify(float64(val))
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
