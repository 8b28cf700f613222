package native

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// Methods with these Go names are never exposed; they belong to the object
// contract itself.
var reservedMethods = map[string]bool{
	"AddRef":              true,
	"Release":             true,
	"Refs":                true,
	"Type":                true,
	"GetProperty":         true,
	"SetProperty":         true,
	"Invoke":              true,
	"EnumerateProperties": true,
}

var (
	variantType  = reflect.TypeFor[variant.Variant]()
	variantsType = reflect.TypeFor[[]variant.Variant]()
	errorType    = reflect.TypeFor[error]()
	refCountType = reflect.TypeFor[RefCount]()
)

type reflectedType struct {
	info    *scriptbridge.TypeInfo
	fields  map[string]string // script name -> Go field name
	methods map[string]string // script name -> Go method name
	order   []string
}

type typeKey struct {
	t   reflect.Type
	mod *scriptbridge.Module
}

type typeCache struct {
	types map[typeKey]*reflectedType
	mu    sync.RWMutex
}

var reflectedTypes = typeCache{types: make(map[typeKey]*reflectedType)}

// Reflected exposes a Go struct pointer as a native object.
type Reflected struct {
	RefCount
	target reflect.Value
	rt     *reflectedType
}

// Reflect wraps ptr, which must be a non-nil pointer to a struct. Types are
// reflected once per (type, module) and share one TypeInfo.
func Reflect(ptr any, mod *scriptbridge.Module) (*Reflected, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, errors.New(errors.PhaseNative, errors.KindTypeMismatch).
			NativeType(typeName(ptr)).
			Detail("expected non-nil pointer to struct").
			Build()
	}
	return &Reflected{target: rv, rt: reflectType(rv.Type(), mod)}, nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

func reflectType(pt reflect.Type, mod *scriptbridge.Module) *reflectedType {
	key := typeKey{t: pt, mod: mod}

	reflectedTypes.mu.RLock()
	rt, ok := reflectedTypes.types[key]
	reflectedTypes.mu.RUnlock()
	if ok {
		return rt
	}

	st := pt.Elem()
	rt = &reflectedType{
		info:    &scriptbridge.TypeInfo{Name: st.Name(), Module: mod},
		fields:  make(map[string]string),
		methods: make(map[string]string),
	}

	// The first embedded struct becomes the parent type
	var parentPtr reflect.Type
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.IsExported() && f.Type != refCountType {
			parentPtr = reflect.PointerTo(f.Type)
			parent := reflectType(parentPtr, mod)
			rt.info.Parent = parent.info
			for name, goName := range parent.fields {
				rt.fields[name] = goName
			}
			for name, goName := range parent.methods {
				rt.methods[name] = goName
			}
			rt.order = append(rt.order, parent.order...)
			break
		}
	}

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := scriptName(f.Name)
		if _, dup := rt.fields[name]; dup {
			continue
		}
		rt.fields[name] = f.Name
		rt.order = append(rt.order, name)
		rt.info.Properties = append(rt.info.Properties, name)
	}

	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if !m.IsExported() || reservedMethods[m.Name] {
			continue
		}
		if parentPtr != nil {
			if _, inherited := parentPtr.MethodByName(m.Name); inherited {
				continue
			}
		}
		name := scriptName(m.Name)
		rt.methods[name] = m.Name
		rt.info.Methods = append(rt.info.Methods, name)
	}

	reflectedTypes.mu.Lock()
	defer reflectedTypes.mu.Unlock()
	if existing, ok := reflectedTypes.types[key]; ok {
		return existing
	}
	reflectedTypes.types[key] = rt
	return rt
}

// Target returns the wrapped pointer.
func (r *Reflected) Target() any {
	return r.target.Interface()
}

func (r *Reflected) Type() *scriptbridge.TypeInfo {
	return r.rt.info
}

func (r *Reflected) GetProperty(name string) (variant.Variant, bool) {
	goName, ok := r.rt.fields[name]
	if !ok {
		return variant.Null(), false
	}
	v, err := toVariant(r.target.Elem().FieldByName(goName))
	if err != nil {
		Logger().Debug("unrepresentable field",
			zap.String("type", r.rt.info.Name), zap.String("field", goName), zap.Error(err))
		return variant.Null(), false
	}
	return v, true
}

func (r *Reflected) SetProperty(name string, v variant.Variant) bool {
	goName, ok := r.rt.fields[name]
	if !ok {
		return false
	}
	f := r.target.Elem().FieldByName(goName)
	if !f.CanSet() {
		return false
	}
	out, err := fromVariant(v, f.Type())
	if err != nil {
		return false
	}
	f.Set(out)
	return true
}

func (r *Reflected) EnumerateProperties(yield func(string) bool) {
	for _, name := range r.rt.order {
		if !yield(name) {
			return
		}
	}
}

func (r *Reflected) Invoke(name string, args []variant.Variant) (variant.Variant, error) {
	goName, ok := r.rt.methods[name]
	if !ok {
		return variant.Null(), notFoundMethod(r.rt.info, name)
	}
	m := r.target.MethodByName(goName)
	in, err := callArgs(m.Type(), args, name)
	if err != nil {
		return variant.Null(), err
	}
	return callResults(m.Call(in), name)
}

func notFoundMethod(ti *scriptbridge.TypeInfo, name string) error {
	return errors.New(errors.PhaseNative, errors.KindNotFound).
		NativeType(ti.Name).
		Path(name).
		Detail("method %q not found", name).
		Build()
}

func callArgs(ft reflect.Type, args []variant.Variant, method string) ([]reflect.Value, error) {
	n := ft.NumIn()
	if ft.IsVariadic() && ft.In(n-1) == variantsType {
		fixed := n - 1
		if len(args) < fixed {
			return nil, arity(method, fixed, len(args))
		}
		in := make([]reflect.Value, 0, n)
		for i := 0; i < fixed; i++ {
			v, err := fromVariant(args[i], ft.In(i))
			if err != nil {
				return nil, argError(method, i, err)
			}
			in = append(in, v)
		}
		for _, a := range args[fixed:] {
			in = append(in, reflect.ValueOf(a))
		}
		return in, nil
	}

	if len(args) != n {
		return nil, arity(method, n, len(args))
	}
	in := make([]reflect.Value, n)
	for i := range args {
		v, err := fromVariant(args[i], ft.In(i))
		if err != nil {
			return nil, argError(method, i, err)
		}
		in[i] = v
	}
	return in, nil
}

func arity(method string, want, got int) error {
	return errors.New(errors.PhaseNative, errors.KindInvalidInput).
		Path(method).
		Detail("expected %d arguments, got %d", want, got).
		Build()
}

func argError(method string, i int, cause error) error {
	return errors.New(errors.PhaseNative, errors.KindTypeMismatch).
		Path(method).
		Detail("argument %d", i).
		Cause(cause).
		Build()
}

func callResults(out []reflect.Value, method string) (variant.Variant, error) {
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if !out[n-1].IsNil() {
			return variant.Null(), out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return variant.Null(), nil
	case 1:
		v, err := toVariant(out[0])
		if err != nil {
			return variant.Null(), errors.Wrap(errors.PhaseNative, errors.KindMarshal, err, "result of "+method)
		}
		return v, nil
	}
	return variant.Null(), errors.Unsupported(errors.PhaseNative, "multiple results from "+method)
}

func toVariant(v reflect.Value) (variant.Variant, error) {
	if v.Kind() == reflect.Interface && v.IsNil() {
		return variant.Null(), nil
	}
	return variant.FromGo(v.Interface())
}

func fromVariant(v variant.Variant, t reflect.Type) (reflect.Value, error) {
	if t == variantType {
		return reflect.ValueOf(v), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		if v.Kind() == variant.KindBool {
			return reflect.ValueOf(v.Bool()).Convert(t), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.Int(); ok {
			out := reflect.New(t).Elem()
			if out.OverflowInt(i) {
				return reflect.Value{}, errors.Overflow(errors.PhaseNative, nil, i, t.String())
			}
			out.SetInt(i)
			return out, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i, ok := v.Int(); ok {
			out := reflect.New(t).Elem()
			if i < 0 || out.OverflowUint(uint64(i)) {
				return reflect.Value{}, errors.Overflow(errors.PhaseNative, nil, i, t.String())
			}
			out.SetUint(uint64(i))
			return out, nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := v.Float(); ok {
			return reflect.ValueOf(f).Convert(t), nil
		}
	case reflect.String:
		if s, ok := v.Str(); ok {
			return reflect.ValueOf(s.Text()).Convert(t), nil
		}
	case reflect.Slice:
		// strings fill byte slices as UTF-8
		if s, ok := v.Str(); ok && t.Elem().Kind() == reflect.Uint8 {
			b, err := s.AppendTo(nil, variant.UTF8)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(b).Convert(t), nil
		}
	case reflect.Interface:
		if v.IsNull() {
			return reflect.Zero(t), nil
		}
		if o, ok := v.Object(); ok && reflect.TypeOf(o).Implements(t) {
			return reflect.ValueOf(o), nil
		}
		if t.NumMethod() == 0 {
			return reflect.ValueOf(v.Interface()), nil
		}
	case reflect.Pointer:
		if v.IsNull() {
			return reflect.Zero(t), nil
		}
		if o, ok := v.Object(); ok {
			if reflect.TypeOf(o) == t {
				return reflect.ValueOf(o), nil
			}
			if r, ok := o.(*Reflected); ok && r.target.Type() == t {
				return r.target, nil
			}
		}
	}

	return reflect.Value{}, errors.TypeMismatch(errors.PhaseNative, nil, t.String(), v.Kind().String())
}

// scriptName converts an exported Go name to lowerCamel.
// Leading acronyms stay together: URLPath -> urlPath, ID -> id
func scriptName(s string) string {
	runes := []rune(s)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return s
	}

	end := 1
	for end < len(runes) && unicode.IsUpper(runes[end]) {
		end++
	}
	// Last uppercase before lowercase starts the next word
	if end > 1 && end < len(runes) && unicode.IsLower(runes[end]) {
		end--
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range runes[:end] {
		b.WriteRune(unicode.ToLower(r))
	}
	b.WriteString(string(runes[end:]))
	return b.String()
}
