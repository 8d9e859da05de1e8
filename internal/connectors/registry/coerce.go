package registry

import (
	"encoding/json"
	"strconv"
	"strings"
)

// UnknownName is the placeholder used when an upstream omits a name field.
const UnknownName = "Unknown"

// The Coerce helpers are the single defaulting policy applied by every
// metric normalizer: numbers coerce to zero, names to UnknownName, and no
// normalized result ever exposes a missing-type ambiguity to its consumer.

// CoerceString returns the trimmed string value of v, or def when v is
// absent, empty, or not string-like.
func CoerceString(v any, def string) string {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return s
		}
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return def
}

// CoerceName is CoerceString with the UnknownName placeholder.
func CoerceName(v any) string {
	return CoerceString(v, UnknownName)
}

// CoerceFloat returns the numeric value of v, or 0 when absent or mistyped.
// Numeric strings are accepted since several vendors serialize numbers as
// strings.
func CoerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	case bool:
		if val {
			return 1
		}
	}
	return 0
}

// CoerceInt truncates CoerceFloat to an int.
func CoerceInt(v any) int {
	return int(CoerceFloat(v))
}

// CoerceBool returns the boolean value of v, or false when absent or
// mistyped. "true"/"on"/"1" strings count as true.
func CoerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "on", "1", "yes":
			return true
		}
	case float64:
		return val != 0
	}
	return false
}
