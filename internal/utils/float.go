package utils

import (
	"encoding/json"
	"math"
)

// ToFloat64 converts numeric cell values to float64.
// Returns the converted value and true if successful, or 0 and false if the
// value is not numeric. Strings are not parsed here; see normalize.ParseNumber.
func ToFloat64(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Clamp01 limits f to [0, 1], substituting def when f is not finite.
func Clamp01(f, def float64) float64 {
	if !IsFinite(f) {
		f = def
	}
	return math.Max(0, math.Min(1, f))
}
