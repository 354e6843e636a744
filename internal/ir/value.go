package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface over the value types allowed in canonical
// documents. Only IRString, IRInt, IRBool, IRArray and IRObject implement it.
// There is no float and no null: both break byte-level determinism.
type IRValue interface {
	irValue()
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values. Use SortedKeys for iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Strings builds an IRArray of IRString.
func Strings(ss []string) IRArray {
	arr := make(IRArray, len(ss))
	for i, s := range ss {
		arr[i] = IRString(s)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// sort.Strings orders by UTF-8 bytes, which differs above the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Field lookup helpers. They return descriptive errors so decoders can wrap
// them with the path of the document being read.

// Has reports whether key is present.
func (obj IRObject) Has(key string) bool {
	_, ok := obj[key]
	return ok
}

// String returns obj[key] as a string.
func (obj IRObject) String(key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(IRString)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %s", key, kindOf(v))
	}
	return string(s), nil
}

// Int returns obj[key] as an int64.
func (obj IRObject) Int(key string) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, ok := v.(IRInt)
	if !ok {
		return 0, fmt.Errorf("field %q: expected int, got %s", key, kindOf(v))
	}
	return int64(n), nil
}

// Bool returns obj[key] as a bool.
func (obj IRObject) Bool(key string) (bool, error) {
	v, ok := obj[key]
	if !ok {
		return false, fmt.Errorf("missing field %q", key)
	}
	b, ok := v.(IRBool)
	if !ok {
		return false, fmt.Errorf("field %q: expected bool, got %s", key, kindOf(v))
	}
	return bool(b), nil
}

// Array returns obj[key] as an IRArray.
func (obj IRObject) Array(key string) (IRArray, error) {
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}
	arr, ok := v.(IRArray)
	if !ok {
		return nil, fmt.Errorf("field %q: expected array, got %s", key, kindOf(v))
	}
	return arr, nil
}

// Object returns obj[key] as an IRObject.
func (obj IRObject) Object(key string) (IRObject, error) {
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}
	o, ok := v.(IRObject)
	if !ok {
		return nil, fmt.Errorf("field %q: expected object, got %s", key, kindOf(v))
	}
	return o, nil
}

// StringList returns obj[key] as a list of strings.
func (obj IRObject) StringList(key string) ([]string, error) {
	arr, err := obj.Array(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(arr))
	for i, v := range arr {
		s, ok := v.(IRString)
		if !ok {
			return nil, fmt.Errorf("field %q[%d]: expected string, got %s", key, i, kindOf(v))
		}
		out[i] = string(s)
	}
	return out, nil
}

// OnlyKeys fails if obj carries a key outside allowed.
func (obj IRObject) OnlyKeys(allowed ...string) error {
	for _, k := range obj.SortedKeys() {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("unexpected field %q", k)
		}
	}
	return nil
}

func kindOf(v IRValue) string {
	switch v.(type) {
	case IRString:
		return "string"
	case IRInt:
		return "int"
	case IRBool:
		return "bool"
	case IRArray:
		return "array"
	case IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// UnmarshalIRValue decodes JSON into an IRValue with strict validation.
// Floats and null are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return convertToIRValue(raw)
}

// UnmarshalIRObject decodes a JSON object.
func UnmarshalIRObject(data []byte) (IRObject, error) {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(IRObject)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", kindOf(v))
	}
	return obj, nil
}

func convertToIRValue(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in IR")
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in IR: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
