// Package codec translates between the daemon's native structs and the
// uniform documents exchanged with callers and observers.
package codec

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
)

// ErrInvalidInput is returned when an input document has the wrong shape.
var ErrInvalidInput = errors.New("invalid input")

// Document is a generic structured input, as produced by decoding JSON into
// map[string]any or by converting a Lua table.
type Document map[string]any

// Int returns the value at key if it holds an integer.
func (d Document) Int(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// Bool returns the value at key if it holds a bool.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// String returns the value at key if it holds a string.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// toInt accepts any Go integer, a float64 with no fractional part (JSON and
// Lua numbers), or a json.Number holding an integer.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt(float64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func toInt32(v any) (int32, bool) {
	n, ok := toInt(v)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int32(n), true
}

func toInt16(v any) (int16, bool) {
	n, ok := toInt(v)
	if !ok || n < math.MinInt16 || n > math.MaxInt16 {
		return 0, false
	}
	return int16(n), true
}

// sequence returns element i of a slice or array value, or nil when v is not
// a sequence or i is out of range.
func sequence(v any, i int) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	if i >= rv.Len() {
		return nil
	}
	return rv.Index(i).Interface()
}
