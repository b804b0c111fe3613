package decode

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// FromNative converts an Avro native value into the JSON-like model used by
// Record. Values with no JSON representation (NaN, ±Inf, unknown types) are
// conversion errors.
func FromNative(native any) (any, error) {
	switch v := native.(type) {
	case nil, bool, string:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return finite(float64(v))
	case float64:
		return finite(v)
	case []byte:
		out := make([]any, len(v))
		for i, b := range v {
			out[i] = int64(b)
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			c, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			c, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case time.Duration:
		return v.Milliseconds(), nil
	case *big.Rat:
		if v == nil {
			return nil, nil
		}
		return v.RatString(), nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", native)
	}
}

func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}
