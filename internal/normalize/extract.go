package normalize

import (
	"encoding/json"
	"strconv"
)

// extract returns the first key of record holding a scalar, stringified.
// Objects, arrays and nulls count as missing.
func extract(record map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		v, ok := record[key]
		if !ok {
			continue
		}
		if s, ok := scalarString(v); ok {
			return s, true
		}
	}
	return "", false
}

// lookup returns the raw value stored under the first present key
func lookup(record map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if v, ok := record[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// keysOr returns key when set, the defaults otherwise
func keysOr(key string, defaults ...string) []string {
	if key != "" {
		return []string{key}
	}
	return defaults
}
