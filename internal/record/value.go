package record

import (
	"encoding/json"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// NormalizeValue coerces v into one of the permitted field types.
//
// Permitted: nil, string (NFC normalized), bool, int64. Other integer kinds
// are widened to int64. json.Number must hold an integer. Floats are rejected
// even when integral so that ordering and equality never depend on rounding.
func NormalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return norm.NFC.String(val), nil
	case bool:
		return val, nil
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return int64(val), nil
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an integer", val)
		}
		return i, nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not permitted: %v", val)
	default:
		return nil, fmt.Errorf("unsupported field type %T", v)
	}
}

// NormalizeFields normalizes every value in fields into a new map.
// A nil input yields an empty, non-nil map.
func NormalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}
