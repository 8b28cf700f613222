package bridge

import (
	"strconv"
	"sync/atomic"
	"unsafe"

	"github.com/dop251/goja"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/binding"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// ScriptKind is the shape of a wrapped script object, detected once.
type ScriptKind uint8

const (
	ScriptPlain ScriptKind = iota
	ScriptFunction
	ScriptArray
	ScriptTypedArray
)

func (k ScriptKind) String() string {
	switch k {
	case ScriptFunction:
		return "function"
	case ScriptArray:
		return "array"
	case ScriptTypedArray:
		return "typed_array"
	}
	return "object"
}

var scriptTypes = [...]*scriptbridge.TypeInfo{
	ScriptPlain:      {Name: "ScriptObject"},
	ScriptFunction:   {Name: "ScriptFunction", Methods: []string{"call"}},
	ScriptArray:      {Name: "ScriptArray", Properties: []string{"length"}},
	ScriptTypedArray: {Name: "ScriptTypedArray", Properties: []string{"length"}},
}

// ScriptObject exposes a script object to native code. It is Gettable,
// Settable, Enumerable and Invokable; arrays add index access and typed
// arrays a zero-copy view of their bytes.
//
// Every method must be called on the goroutine owning the context.
type ScriptObject struct {
	realm  *Realm
	obj    *goja.Object
	fn     goja.Callable
	buf    goja.ArrayBuffer
	refs   atomic.Int64
	handle binding.Handle
	offset int
	length int
	kind   ScriptKind
}

var (
	_ scriptbridge.Object     = (*ScriptObject)(nil)
	_ scriptbridge.Gettable   = (*ScriptObject)(nil)
	_ scriptbridge.Settable   = (*ScriptObject)(nil)
	_ scriptbridge.Invokable  = (*ScriptObject)(nil)
	_ scriptbridge.Enumerable = (*ScriptObject)(nil)
	_ scriptbridge.Indexed    = (*ScriptObject)(nil)
	_ scriptbridge.Bufferable = (*ScriptObject)(nil)
)

func newScriptObject(r *Realm, obj *goja.Object) *ScriptObject {
	so := &ScriptObject{realm: r, obj: obj}
	if fn, ok := goja.AssertFunction(obj); ok {
		so.fn = fn
		so.kind = ScriptFunction
		return so
	}
	if err := catch(func() {
		if ab, off, n, ok := typedArrayView(obj); ok {
			so.buf, so.offset, so.length = ab, off, n
			so.kind = ScriptTypedArray
		} else if obj.ClassName() == "Array" {
			so.kind = ScriptArray
		}
	}); err != nil {
		so.kind = ScriptPlain
	}
	return so
}

// typedArrayView recognises typed arrays by their backing ArrayBuffer.
func typedArrayView(obj *goja.Object) (goja.ArrayBuffer, int, int, bool) {
	if obj.Get("BYTES_PER_ELEMENT") == nil {
		return goja.ArrayBuffer{}, 0, 0, false
	}
	bv := obj.Get("buffer")
	if bv == nil {
		return goja.ArrayBuffer{}, 0, 0, false
	}
	ab, ok := bv.Export().(goja.ArrayBuffer)
	if !ok {
		return goja.ArrayBuffer{}, 0, 0, false
	}
	off := int(obj.Get("byteOffset").ToInteger())
	n := int(obj.Get("byteLength").ToInteger())
	return ab, off, n, true
}

// catch turns a script exception thrown through the goja Go API into an
// error.
func catch(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			switch x := p.(type) {
			case *goja.Exception:
				err = x
			case *goja.InterruptedError:
				err = x
			default:
				panic(p)
			}
		}
	}()
	fn()
	return nil
}

func (o *ScriptObject) Type() *scriptbridge.TypeInfo {
	return scriptTypes[o.kind]
}

func (o *ScriptObject) AddRef() {
	o.refs.Add(1)
}

func (o *ScriptObject) Release() {
	if o.refs.Add(-1) < 0 {
		o.refs.Store(0)
	}
}

// Refs returns the native reference count.
func (o *ScriptObject) Refs() int64 {
	return o.refs.Load()
}

func (o *ScriptObject) Kind() ScriptKind {
	return o.kind
}

// Value returns the wrapped script object.
func (o *ScriptObject) Value() *goja.Object {
	return o.obj
}

func (o *ScriptObject) String() string {
	return "[" + o.Type().Name + "]"
}

func (o *ScriptObject) enter(op string) *RealmScope {
	return enterRealm(o.realm.ctx, o.realm, op)
}

// Call invokes a function object with the given receiver.
func (o *ScriptObject) Call(this variant.Variant, args []variant.Variant) (variant.Variant, error) {
	scope := o.enter("ScriptObject.Call")
	defer scope.Exit()
	if !scope.IsValid() {
		return variant.Null(), scope.Err()
	}
	if o.fn == nil {
		return variant.Null(), errors.New(errors.PhaseExecute, errors.KindTypeMismatch).
			ScriptType(o.kind.String()).
			Detail("not callable").
			Build()
	}
	return o.call(o.fn, this, args)
}

func (o *ScriptObject) call(fn goja.Callable, this variant.Variant, args []variant.Variant) (variant.Variant, error) {
	r := o.realm
	thisVal, err := r.marshal(this)
	if err != nil {
		return variant.Null(), err
	}
	in := make([]goja.Value, len(args))
	for i, a := range args {
		if in[i], err = r.marshal(a); err != nil {
			return variant.Null(), err
		}
	}

	r.ctx.activate()
	res, err := fn(thisVal, in...)
	if err != nil {
		return variant.Null(), r.ctx.scriptError(err, r.ctx.topFrameName())
	}
	return r.unmarshal(res)
}

// Invoke calls the method name with the object as receiver. A function
// object answers "call" and "" by calling itself.
func (o *ScriptObject) Invoke(name string, args []variant.Variant) (variant.Variant, error) {
	scope := o.enter("ScriptObject.Invoke")
	defer scope.Exit()
	if !scope.IsValid() {
		return variant.Null(), scope.Err()
	}

	if o.fn != nil && (name == "" || name == "call") {
		return o.call(o.fn, variant.Null(), args)
	}

	var method goja.Callable
	if err := catch(func() {
		if v := o.obj.Get(name); v != nil {
			method, _ = goja.AssertFunction(v)
		}
	}); err != nil {
		return variant.Null(), o.realm.ctx.scriptError(err, "")
	}
	if method == nil {
		return variant.Null(), errors.New(errors.PhaseExecute, errors.KindNotFound).
			ScriptType(o.kind.String()).
			Path(name).
			Detail("method %q not found", name).
			Build()
	}
	return o.call(method, variant.Ref(o), args)
}

func (o *ScriptObject) GetProperty(name string) (variant.Variant, bool) {
	scope := o.enter("ScriptObject.GetProperty")
	defer scope.Exit()
	if !scope.IsValid() {
		return variant.Null(), false
	}

	var v goja.Value
	if err := catch(func() { v = o.obj.Get(name) }); err != nil || v == nil {
		return variant.Null(), false
	}
	out, err := o.realm.unmarshal(v)
	if err != nil {
		return variant.Null(), false
	}
	return out, true
}

func (o *ScriptObject) SetProperty(name string, v variant.Variant) bool {
	scope := o.enter("ScriptObject.SetProperty")
	defer scope.Exit()
	if !scope.IsValid() {
		return false
	}

	val, err := o.realm.marshal(v)
	if err != nil {
		return false
	}
	var setErr error
	if err := catch(func() { setErr = o.obj.Set(name, val) }); err != nil || setErr != nil {
		return false
	}
	return true
}

func (o *ScriptObject) EnumerateProperties(yield func(string) bool) {
	scope := o.enter("ScriptObject.EnumerateProperties")
	defer scope.Exit()
	if !scope.IsValid() {
		return
	}

	var keys []string
	if err := catch(func() { keys = o.obj.Keys() }); err != nil {
		return
	}
	for _, k := range keys {
		if !yield(k) {
			return
		}
	}
}

// Len returns the element count of an array or typed array, or 0.
func (o *ScriptObject) Len() int {
	scope := o.enter("ScriptObject.Len")
	defer scope.Exit()
	if !scope.IsValid() {
		return 0
	}
	return o.len()
}

func (o *ScriptObject) len() int {
	if o.kind != ScriptArray && o.kind != ScriptTypedArray {
		return 0
	}
	var n int64
	if err := catch(func() { n = o.obj.Get("length").ToInteger() }); err != nil {
		return 0
	}
	return int(n)
}

// Index reads element i.
func (o *ScriptObject) Index(i int) (variant.Variant, error) {
	scope := o.enter("ScriptObject.Index")
	defer scope.Exit()
	if !scope.IsValid() {
		return variant.Null(), scope.Err()
	}
	if err := o.checkIndex(i); err != nil {
		return variant.Null(), err
	}

	var v goja.Value
	if err := catch(func() { v = o.obj.Get(strconv.Itoa(i)) }); err != nil {
		return variant.Null(), o.realm.ctx.scriptError(err, "")
	}
	return o.realm.unmarshal(v)
}

// SetIndex writes element i.
func (o *ScriptObject) SetIndex(i int, v variant.Variant) error {
	scope := o.enter("ScriptObject.SetIndex")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	if o.kind != ScriptArray && o.kind != ScriptTypedArray {
		return errors.Unsupported(errors.PhaseMarshal, "index access on "+o.kind.String())
	}
	if i < 0 || (o.kind == ScriptTypedArray && i >= o.len()) {
		return errors.InvalidInput(errors.PhaseMarshal, "index "+strconv.Itoa(i)+" out of range")
	}

	val, err := o.realm.marshal(v)
	if err != nil {
		return err
	}
	var setErr error
	if err := catch(func() { setErr = o.obj.Set(strconv.Itoa(i), val) }); err != nil {
		return o.realm.ctx.scriptError(err, "")
	}
	return setErr
}

func (o *ScriptObject) checkIndex(i int) error {
	if o.kind != ScriptArray && o.kind != ScriptTypedArray {
		return errors.Unsupported(errors.PhaseUnmarshal, "index access on "+o.kind.String())
	}
	if i < 0 || i >= o.len() {
		return errors.InvalidInput(errors.PhaseUnmarshal, "index "+strconv.Itoa(i)+" out of range")
	}
	return nil
}

// Bytes returns the typed array's bytes without copying. Writes through
// the slice are visible to script. Nil for other kinds.
func (o *ScriptObject) Bytes() []byte {
	if o.kind != ScriptTypedArray || !onOwner(o.realm.ctx, "ScriptObject.Bytes") {
		return nil
	}
	data := o.buf.Bytes()
	if o.offset+o.length > len(data) {
		return nil
	}
	return data[o.offset : o.offset+o.length : o.offset+o.length]
}

// Address returns the address of the first byte of a typed array, or 0.
func (o *ScriptObject) Address() uintptr {
	b := o.Bytes()
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// Size returns the typed array's byte length, or 0.
func (o *ScriptObject) Size() int {
	return len(o.Bytes())
}
