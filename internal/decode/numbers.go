package decode

import (
	stdjson "encoding/json"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// normalizeNumbers replaces the textual numbers left by a UseNumber decode:
// integers become int64 (uint64 past the int64 range), everything else
// float64.
func normalizeNumbers(v any) (any, error) {
	switch t := v.(type) {
	case stdjson.Number:
		return parseNumber(string(t))
	case jsoniter.Number:
		return parseNumber(string(t))
	case []any:
		for i, item := range t {
			n, err := normalizeNumbers(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			t[i] = n
		}
		return t, nil
	case map[string]any:
		for k, item := range t {
			n, err := normalizeNumbers(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			t[k] = n
		}
		return t, nil
	default:
		return v, nil
	}
}

func parseNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("number %s: %w", s, err)
	}
	return f, nil
}
