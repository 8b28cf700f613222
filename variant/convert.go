package variant

import (
	"math"
	"reflect"

	"github.com/wippyai/script-bridge/errors"
)

// FromGo converts a plain Go value into a Variant.
//
// Supported: nil, bool, all integer and float kinds, string, []byte (as
// UTF-8 text), String, Variant and any Object implementation.
func FromGo(v any) (Variant, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Variant:
		return x, nil
	case String:
		return FromString(x), nil
	case Object:
		return Ref(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return Str(x), nil
	case []byte:
		return FromString(Encoded(x, UTF8)), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case int32:
		return Int(int64(x)), nil
	case float64:
		return Float(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Null(), errors.Overflow(errors.PhaseNative, nil, u, "int64")
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return Str(rv.String()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
	}
	return Null(), errors.New(errors.PhaseNative, errors.KindTypeMismatch).
		NativeType(rv.Type().String()).
		Detail("no variant representation").
		Value(v).
		Build()
}

// Interface returns the Go value held by v: nil, bool, int64, float64,
// string or Object.
func (v Variant) Interface() any {
	switch v.kind {
	case KindBool:
		return v.Bool()
	case KindInt:
		return int64(v.bits)
	case KindFloat:
		return math.Float64frombits(v.bits)
	case KindString:
		return v.str.Text()
	case KindObject:
		return v.obj
	}
	return nil
}
