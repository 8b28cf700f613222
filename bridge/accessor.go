package bridge

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/variant"
)

// PropertyAccessor is the getter/setter pair standing in for one native
// property name. One pair exists per name per realm and is shared by every
// proxy exposing that name.
type PropertyAccessor struct {
	realm  *Realm
	getter *goja.Object
	setter *goja.Object
	name   variant.Identifier
}

// Name returns the property name.
func (a *PropertyAccessor) Name() string {
	return a.name.String()
}

// Getter returns the script function reading the property of its receiver.
func (a *PropertyAccessor) Getter() *goja.Object {
	return a.getter
}

// Setter returns the script function writing the property of its receiver.
func (a *PropertyAccessor) Setter() *goja.Object {
	return a.setter
}

// accessor returns the cached pair for name, creating it on first use.
func (r *Realm) accessor(name variant.Identifier) *PropertyAccessor {
	if a, ok := r.accessors[name]; ok {
		return a
	}

	a := &PropertyAccessor{realm: r, name: name}
	a.getter = r.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		if !onOwner(r.ctx, "accessor get") {
			return goja.Undefined()
		}
		b := r.bindingForProxy(call.This)
		if b == nil {
			panic(r.rt.NewTypeError("illegal invocation of getter %q", a.Name()))
		}
		v, _ := a.get(b)
		return v
	}).ToObject(r.rt)
	a.setter = r.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		if !onOwner(r.ctx, "accessor set") {
			return goja.Undefined()
		}
		b := r.bindingForProxy(call.This)
		if b == nil {
			panic(r.rt.NewTypeError("illegal invocation of setter %q", a.Name()))
		}
		a.set(b, call.Argument(0))
		return goja.Undefined()
	}).ToObject(r.rt)

	r.accessors[name] = a
	r.ctx.log.Debug("property accessor created", zap.String("name", a.Name()))
	return a
}

// get reads the property from the bound native object. ok is false when
// the object has no such property.
func (a *PropertyAccessor) get(b *proxyBinding) (goja.Value, bool) {
	g, ok := b.native.(scriptbridge.Gettable)
	if !ok {
		return goja.Undefined(), false
	}
	v, ok := g.GetProperty(a.Name())
	if !ok {
		return goja.Undefined(), false
	}
	out, err := a.realm.marshal(v)
	if err != nil {
		panic(a.realm.rt.NewGoError(err))
	}
	return out, true
}

// set writes the property on the bound native object.
func (a *PropertyAccessor) set(b *proxyBinding, value goja.Value) bool {
	s, ok := b.native.(scriptbridge.Settable)
	if !ok {
		return false
	}
	v, err := a.realm.unmarshal(value)
	if err != nil {
		panic(a.realm.rt.NewGoError(err))
	}
	return s.SetProperty(a.Name(), v)
}

// traceAccessors reports how many accessor functions the realm keeps live.
// The accessor map is their root set: an entry is never dropped before the
// realm tears down, and every entry holds both functions.
func (r *Realm) traceAccessors() int {
	return 2 * len(r.accessors)
}

// GetPropertyAccessor returns the shared accessor for name.
func (c *Context) GetPropertyAccessor(name string) (*PropertyAccessor, error) {
	scope := c.enter("GetPropertyAccessor")
	defer scope.Exit()
	if !scope.IsValid() {
		return nil, scope.Err()
	}
	return c.main.accessor(variant.Intern(name)), nil
}
