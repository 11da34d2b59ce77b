package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CanonicalKey converts an identifier of any source type into the string
// both tables are joined on. Integral floats lose their fraction so that
// 42, 42.0, "42" and json.Number("42.0") all produce "42".
// Nil and unrepresentable values produce "", which never matches.
func CanonicalKey(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return canonicalString(x)
	case json.Number:
		return canonicalString(x.String())
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return canonicalFloat(float64(x))
	case float64:
		return canonicalFloat(x)
	case fmt.Stringer:
		return canonicalString(x.String())
	default:
		return canonicalString(fmt.Sprint(x))
	}
}

// canonicalString trims the value and collapses numeric text onto the
// same form as the equivalent number.
func canonicalString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return canonicalFloat(f)
	}
	return s
}

func canonicalFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
