package bridge

import (
	"strconv"

	"github.com/dop251/goja"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// Precedence decides which side wins when a name is both a prototype
// method and a native property.
type Precedence uint8

const (
	// PrecedenceMethods resolves prototype members first
	PrecedenceMethods Precedence = iota
	// PrecedenceProperties resolves native properties first
	PrecedenceProperties
)

// ScriptClass is the script-side descriptor of one native type in one
// realm: a prototype carrying the type's methods and the trap table shared
// by every proxy of that type.
type ScriptClass struct {
	realm   *Realm
	info    *scriptbridge.TypeInfo
	parent  *ScriptClass
	proto   *goja.Object
	traps   *goja.ProxyTrapConfig
	methods map[string]bool // own prototype methods
}

func newScriptClass(r *Realm, ti *scriptbridge.TypeInfo, parent *ScriptClass) (*ScriptClass, error) {
	c := &ScriptClass{
		realm:   r,
		info:    ti,
		parent:  parent,
		proto:   r.rt.NewObject(),
		methods: make(map[string]bool, len(ti.Methods)),
	}

	if parent != nil {
		if err := c.proto.SetPrototype(parent.proto); err != nil {
			return nil, errors.New(errors.PhaseRegister, errors.KindClassRegistration).
				NativeType(ti.Name).
				Detail("link parent prototype").
				Cause(err).
				Build()
		}
	}

	tag := r.rt.ToValue(ti.Name)
	if err := c.proto.DefineDataPropertySymbol(goja.SymToStringTag, tag, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, errors.ClassRegistration(ti.Name, ti.ModuleName(), err.Error())
	}

	for _, name := range ti.Methods {
		if c.methods[name] {
			continue
		}
		fn := r.rt.ToValue(c.method(name))
		if err := c.proto.DefineDataProperty(name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return nil, errors.ClassRegistration(ti.Name, ti.ModuleName(), err.Error())
		}
		c.methods[name] = true
	}

	c.traps = c.trapTable()
	return c, nil
}

// Type returns the native type the class describes.
func (c *ScriptClass) Type() *scriptbridge.TypeInfo {
	return c.info
}

func (c *ScriptClass) Parent() *ScriptClass {
	return c.parent
}

// Prototype returns the generated prototype object.
func (c *ScriptClass) Prototype() *goja.Object {
	return c.proto
}

// MethodCount returns the number of methods defined on this class's own
// prototype.
func (c *ScriptClass) MethodCount() int {
	return len(c.methods)
}

// method builds the prototype function forwarding to Invoke.
func (c *ScriptClass) method(name string) func(goja.FunctionCall) goja.Value {
	r := c.realm
	return func(call goja.FunctionCall) goja.Value {
		if !onOwner(r.ctx, "method call") {
			return goja.Undefined()
		}
		b := r.bindingForProxy(call.This)
		if b == nil {
			panic(r.rt.NewTypeError("%s.%s called on incompatible receiver", c.info.Name, name))
		}
		inv, ok := b.native.(scriptbridge.Invokable)
		if !ok {
			panic(r.rt.NewTypeError("%s does not support method calls", c.info.Name))
		}
		args, err := r.unmarshalArgs(call.Arguments)
		if err != nil {
			panic(r.rt.NewGoError(err))
		}
		res, err := inv.Invoke(name, args)
		if err != nil {
			panic(r.rt.NewGoError(err))
		}
		v, err := r.marshal(res)
		if err != nil {
			panic(r.rt.NewGoError(err))
		}
		return v
	}
}

// protoMember looks a name up along the prototype chain.
func (c *ScriptClass) protoMember(name string) goja.Value {
	return c.proto.Get(name)
}

func (c *ScriptClass) methodsFirst() bool {
	return c.realm.ctx.opts.Policy.Precedence == PrecedenceMethods
}

// nativeHas probes the native object for a property.
func nativeHas(obj scriptbridge.Object, name string) bool {
	if g, ok := obj.(scriptbridge.Gettable); ok {
		if _, ok := g.GetProperty(name); ok {
			return true
		}
	}
	return obj.Type().HasProperty(name)
}

func (c *ScriptClass) trapTable() *goja.ProxyTrapConfig {
	idx := strconv.Itoa
	return &goja.ProxyTrapConfig{
		GetPrototypeOf: func(*goja.Object) *goja.Object {
			return c.proto
		},
		SetPrototypeOf: func(*goja.Object, *goja.Object) bool {
			return false
		},
		PreventExtensions: func(*goja.Object) bool {
			return false
		},
		GetOwnPropertyDescriptor: c.getOwnPropertyDescriptor,
		GetOwnPropertyDescriptorIdx: func(t *goja.Object, i int) goja.PropertyDescriptor {
			return c.getOwnPropertyDescriptor(t, idx(i))
		},
		DefineProperty: func(*goja.Object, string, goja.PropertyDescriptor) bool {
			return false
		},
		DefinePropertyIdx: func(*goja.Object, int, goja.PropertyDescriptor) bool {
			return false
		},
		Has: c.has,
		HasIdx: func(t *goja.Object, i int) bool {
			return c.has(t, idx(i))
		},
		Get: c.get,
		GetIdx: func(t *goja.Object, i int, receiver goja.Value) goja.Value {
			return c.get(t, idx(i), receiver)
		},
		GetSym: func(_ *goja.Object, sym *goja.Symbol, _ goja.Value) goja.Value {
			if v := c.proto.GetSymbol(sym); v != nil {
				return v
			}
			return goja.Undefined()
		},
		Set: c.set,
		SetIdx: func(t *goja.Object, i int, v goja.Value, receiver goja.Value) bool {
			return c.set(t, idx(i), v, receiver)
		},
		DeleteProperty: func(*goja.Object, string) bool {
			return false
		},
		DeletePropertyIdx: func(*goja.Object, int) bool {
			return false
		},
		OwnKeys: c.ownKeys,
	}
}

func (c *ScriptClass) getOwnPropertyDescriptor(target *goja.Object, name string) goja.PropertyDescriptor {
	r := c.realm
	if !onOwner(r.ctx, "getOwnPropertyDescriptor") {
		return goja.PropertyDescriptor{}
	}
	b := r.bindingForTarget(target)
	if b == nil {
		return goja.PropertyDescriptor{}
	}
	if c.methodsFirst() && c.protoMember(name) != nil {
		return goja.PropertyDescriptor{}
	}
	if !nativeHas(b.native, name) {
		return goja.PropertyDescriptor{}
	}

	acc := r.accessor(variant.Intern(name))
	desc := goja.PropertyDescriptor{
		Getter:       acc.getter,
		Enumerable:   goja.FLAG_TRUE,
		Configurable: goja.FLAG_TRUE,
	}
	if _, ok := b.native.(scriptbridge.Settable); ok {
		desc.Setter = acc.setter
	}
	return desc
}

func (c *ScriptClass) has(target *goja.Object, name string) bool {
	r := c.realm
	if !onOwner(r.ctx, "has") {
		return false
	}
	b := r.bindingForTarget(target)
	if b == nil {
		return false
	}
	if c.protoMember(name) != nil {
		return true
	}
	return nativeHas(b.native, name)
}

func (c *ScriptClass) get(target *goja.Object, name string, _ goja.Value) goja.Value {
	r := c.realm
	if !onOwner(r.ctx, "get") {
		return goja.Undefined()
	}
	b := r.bindingForTarget(target)
	if b == nil {
		return goja.Undefined()
	}

	if c.methodsFirst() {
		if v := c.protoMember(name); v != nil {
			return v
		}
	}
	if v, ok := r.accessor(variant.Intern(name)).get(b); ok {
		return v
	}
	if v := c.protoMember(name); v != nil {
		return v
	}
	return goja.Undefined()
}

func (c *ScriptClass) set(target *goja.Object, name string, value goja.Value, _ goja.Value) bool {
	r := c.realm
	if !onOwner(r.ctx, "set") {
		return false
	}
	b := r.bindingForTarget(target)
	if b == nil {
		return false
	}
	if c.methodsFirst() && c.protoMember(name) != nil {
		return false
	}
	return r.accessor(variant.Intern(name)).set(b, value)
}

func (c *ScriptClass) ownKeys(target *goja.Object) *goja.Object {
	r := c.realm
	var keys []any
	if onOwner(r.ctx, "ownKeys") {
		if b := r.bindingForTarget(target); b != nil {
			if e, ok := b.native.(scriptbridge.Enumerable); ok {
				e.EnumerateProperties(func(name string) bool {
					if !c.methodsFirst() || c.protoMember(name) == nil {
						keys = append(keys, name)
					}
					return true
				})
			}
		}
	}
	return r.rt.NewArray(keys...)
}
