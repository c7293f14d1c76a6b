// Package guard verifies the runtime shape of values decoded from JSON.
//
// Values are expected to come from encoding/json decoding into any, so objects
// are map[string]any, arrays are []any and numbers are float64 (or json.Number
// when the decoder was configured with UseNumber).
package guard

import (
	"encoding/json"
)

// Guard checks that v has the shape of T and returns it as T.
type Guard[T any] func(v any) (T, bool)

// IsDefinedObject reports whether v is a non-nil JSON object.
func IsDefinedObject(v any) bool {
	m, ok := v.(map[string]any)
	return ok && m != nil
}

// IsString reports whether object v has a string property named key.
func IsString(v any, key string) bool {
	_, ok := property(v, key).(string)
	return ok
}

// IsBoolean reports whether object v has a boolean property named key.
func IsBoolean(v any, key string) bool {
	_, ok := property(v, key).(bool)
	return ok
}

// IsNumber reports whether object v has a numeric property named key.
func IsNumber(v any, key string) bool {
	switch property(v, key).(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	default:
		return false
	}
}

// IsObject reports whether object v has a nested object property named key.
func IsObject(v any, key string) bool {
	return IsDefinedObject(property(v, key))
}

// IsArray reports whether object v has an array property named key.
func IsArray(v any, key string) bool {
	_, ok := property(v, key).([]any)
	return ok
}

func property(v any, key string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

// Struct returns a Guard that accepts JSON objects satisfying every check and
// decodes them into T.
func Struct[T any](checks ...func(v any) bool) Guard[T] {
	return func(v any) (T, bool) {
		var out T
		if !IsDefinedObject(v) {
			return out, false
		}
		for _, check := range checks {
			if !check(v) {
				return out, false
			}
		}
		if err := convert(v, &out); err != nil {
			return out, false
		}
		return out, true
	}
}

// Has is a check for Struct that requires the named property to pass pred.
func Has(key string, pred func(v any, key string) bool) func(v any) bool {
	return func(v any) bool {
		return pred(v, key)
	}
}

// Any accepts every value without conversion.
func Any(v any) (any, bool) {
	return v, true
}

func convert(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
