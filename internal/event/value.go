package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface for the values allowed in call parameters.
// Only String, Int, Bool, List and Object implement it. Floats are rejected
// everywhere because they make invocation identity unstable.
type Value interface {
	value()
}

// String is a string parameter value.
type String string

func (String) value() {}

// Int is an integer parameter value. Always int64, never float64.
type Int int64

func (Int) value() {}

// Bool is a boolean parameter value.
type Bool bool

func (Bool) value() {}

// List is an ordered list of values.
type List []Value

func (List) value() {}

// Object maps string keys to values. Use SortedKeys for deterministic
// iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units, not UTF-8
// bytes).
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// ToValue converts a generic decoded value (as produced by encoding/json,
// yaml.v3 or CUE) into a Value. Nil and floats are rejected.
func ToValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid parameter value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not valid parameter values: %s", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not valid parameter values: %v", val)
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			ev, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	case map[string]any:
		return ToObject(val)
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}

// ToObject converts a generic map into an Object.
func ToObject(m map[string]any) (Object, error) {
	obj := make(Object, len(m))
	for k, elem := range m {
		ev, err := ToValue(elem)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		obj[k] = ev
	}
	return obj, nil
}

// UnmarshalJSON decodes an object, keeping integers exact and rejecting
// floats and nulls.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	obj, err := ToObject(raw)
	if err != nil {
		return err
	}
	*o = obj
	return nil
}

// MarshalJSON encodes the object with sorted keys. It is the canonical
// encoding, so stored params hash the same after a round trip.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}
