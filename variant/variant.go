package variant

import (
	"math"
	"strconv"
)

// Kind identifies the dynamic type held by a Variant.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Object is a shared reference carried by a Variant. Holders that keep a
// reference beyond a call must AddRef and later Release it.
type Object interface {
	AddRef()
	Release()
}

// Variant is an immutable dynamic value.
type Variant struct {
	obj  Object
	str  String
	bits uint64
	kind Kind
}

// Null returns the null variant.
func Null() Variant {
	return Variant{}
}

func Bool(b bool) Variant {
	v := Variant{kind: KindBool}
	if b {
		v.bits = 1
	}
	return v
}

func Int(i int64) Variant {
	return Variant{kind: KindInt, bits: uint64(i)}
}

func Float(f float64) Variant {
	return Variant{kind: KindFloat, bits: math.Float64bits(f)}
}

// Str returns a UTF-8 string variant.
func Str(s string) Variant {
	return Variant{kind: KindString, str: NewString(s)}
}

// FromString wraps an encoding-tagged string.
func FromString(s String) Variant {
	return Variant{kind: KindString, str: s}
}

// Ref wraps an object reference. A nil object yields Null.
func Ref(o Object) Variant {
	if o == nil {
		return Null()
	}
	return Variant{kind: KindObject, obj: o}
}

func (v Variant) Kind() Kind {
	return v.kind
}

func (v Variant) IsNull() bool {
	return v.kind == KindNull
}

// Bool returns the boolean value; false for non-bool kinds.
func (v Variant) Bool() bool {
	return v.kind == KindBool && v.bits != 0
}

// Int returns the integer value. Floats with an exact int64 value convert.
func (v Variant) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return int64(v.bits), true
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// Float returns the numeric value as float64 for Int and Float kinds.
func (v Variant) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(int64(v.bits)), true
	case KindFloat:
		return math.Float64frombits(v.bits), true
	}
	return 0, false
}

func (v Variant) Str() (String, bool) {
	if v.kind != KindString {
		return String{}, false
	}
	return v.str, true
}

func (v Variant) Object() (Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// String renders the variant for logs and REPL output.
func (v Variant) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case KindString:
		return v.str.Text()
	case KindObject:
		if s, ok := v.obj.(interface{ String() string }); ok {
			return s.String()
		}
		return "[object]"
	}
	return v.kind.String()
}

// Equal compares two variants. Numbers compare by value across Int and
// Float, strings by content, objects by identity.
func Equal(a, b Variant) bool {
	if isNumber(a.kind) && isNumber(b.kind) {
		if a.kind == KindInt && b.kind == KindInt {
			return a.bits == b.bits
		}
		af, _ := a.Float()
		bf, _ := b.Float()
		return af == bf
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.bits == b.bits
	case KindString:
		return a.str.Equal(b.str)
	case KindObject:
		return a.obj == b.obj
	}
	return false
}

func isNumber(k Kind) bool {
	return k == KindInt || k == KindFloat
}
