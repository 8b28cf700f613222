package bridge

import (
	"runtime"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/binding"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// Realm is one isolated global scope: a goja runtime plus the class
// registry and identity maps for values crossing into it.
type Realm struct {
	ctx       *Context
	rt        *goja.Runtime
	registry  *ClassRegistry
	table     *binding.Table
	queue     *finalizeQueue
	byNative  map[scriptbridge.Object]binding.Handle
	byProxy   map[weak.Pointer[goja.Object]]binding.Handle
	byScript  map[weak.Pointer[goja.Object]]binding.Handle
	accessors map[variant.Identifier]*PropertyAccessor
	name      string
}

// proxyBinding ties a native object to its proxy. The proxy is held weakly
// so the script side decides its lifetime.
type proxyBinding struct {
	native  scriptbridge.Object
	class   *ScriptClass
	proxy   weak.Pointer[goja.Object]
	cleanup runtime.Cleanup
	handle  binding.Handle
}

// Drop releases the bridge's native reference.
func (b *proxyBinding) Drop() {
	b.cleanup.Stop()
	b.native.Release()
}

// scriptBinding ties a script object to its native wrapper. Both sides are
// weak; the wrapper keeps the script object alive while native code holds it.
type scriptBinding struct {
	obj     weak.Pointer[goja.Object]
	wrapper weak.Pointer[ScriptObject]
	cleanup runtime.Cleanup
}

func (b *scriptBinding) Drop() {
	b.cleanup.Stop()
}

// proxySlot is the private target of every proxy. Its only state is the
// binding handle; all property traffic goes through the class traps.
type proxySlot struct {
	handle binding.Handle
}

func (s *proxySlot) Get(string) goja.Value       { return nil }
func (s *proxySlot) Set(string, goja.Value) bool { return false }
func (s *proxySlot) Has(string) bool             { return false }
func (s *proxySlot) Delete(string) bool          { return false }
func (s *proxySlot) Keys() []string              { return nil }

func newRealm(c *Context, name string) (r *Realm, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, errors.New(errors.PhaseInit, errors.KindInitialization).
				Detail("create runtime for realm %q: %v", name, p).
				Build()
		}
	}()

	r = &Realm{
		ctx:       c,
		rt:        goja.New(),
		registry:  newClassRegistry(),
		table:     binding.NewTable(),
		queue:     &finalizeQueue{},
		byNative:  make(map[scriptbridge.Object]binding.Handle),
		byProxy:   make(map[weak.Pointer[goja.Object]]binding.Handle),
		byScript:  make(map[weak.Pointer[goja.Object]]binding.Handle),
		accessors: make(map[variant.Identifier]*PropertyAccessor),
		name:      name,
	}
	r.table.Subscribe(c)
	return r, nil
}

// Runtime returns the realm's goja runtime.
func (r *Realm) Runtime() *goja.Runtime {
	return r.rt
}

func (r *Realm) Name() string {
	return r.name
}

// Registry returns the realm's class registry.
func (r *Realm) Registry() *ClassRegistry {
	return r.registry
}

// resolveClass returns the class for ti, building its parents first.
func (r *Realm) resolveClass(ti *scriptbridge.TypeInfo) (*ScriptClass, error) {
	if ti == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "nil type info")
	}
	if c, ok := r.registry.LookupClass(ti); ok {
		return c, nil
	}
	if !r.registry.Attached(ti.Module) {
		return nil, errors.ClassRegistration(ti.Name, ti.ModuleName(), "module is not attached")
	}

	var parent *ScriptClass
	if ti.Parent != nil {
		p, err := r.resolveClass(ti.Parent)
		if err != nil {
			return nil, err
		}
		parent = p
	}

	c, err := newScriptClass(r, ti, parent)
	if err != nil {
		return nil, err
	}
	added, err := r.registry.AddClass(c)
	if err != nil {
		return nil, err
	}
	if added == c {
		r.ctx.log.Debug("class registered",
			zap.String("type", ti.Name),
			zap.String("module", ti.ModuleName()),
			zap.Int("methods", len(c.methods)))
	}
	return added, nil
}

// resolveObject returns the canonical proxy for obj, creating it on first use.
func (r *Realm) resolveObject(obj scriptbridge.Object) (*goja.Object, error) {
	if obj == nil {
		return nil, errors.InvalidInput(errors.PhaseMarshal, "nil native object")
	}
	if h, ok := r.byNative[obj]; ok {
		if v, ok := r.table.GetKind(h, binding.KindProxy); ok {
			if p := v.(*proxyBinding).proxy.Value(); p != nil {
				return p, nil
			}
		}
		// collected but not yet finalized
		r.finalize(h)
	}

	class, err := r.resolveClass(obj.Type())
	if err != nil {
		return nil, err
	}

	slot := &proxySlot{}
	proxy := r.rt.ToValue(r.rt.NewProxy(r.rt.NewDynamicObject(slot), class.traps)).ToObject(r.rt)

	b := &proxyBinding{native: obj, class: class, proxy: weak.Make(proxy)}
	h := r.table.Insert(binding.KindProxy, b)
	if h == 0 {
		return nil, errors.Closed(errors.PhaseMarshal, "realm")
	}
	b.handle = h
	slot.handle = h
	obj.AddRef()
	r.byNative[obj] = h
	r.byProxy[b.proxy] = h
	b.cleanup = runtime.AddCleanup(proxy, r.queue.push, h)

	r.ctx.noteBinding()
	return proxy, nil
}

// bindingForTarget returns the live binding behind a proxy target.
func (r *Realm) bindingForTarget(target *goja.Object) *proxyBinding {
	if target == nil {
		return nil
	}
	slot, ok := target.Export().(*proxySlot)
	if !ok {
		return nil
	}
	v, ok := r.table.GetKind(slot.handle, binding.KindProxy)
	if !ok {
		return nil
	}
	return v.(*proxyBinding)
}

// bindingForProxy returns the live binding of a proxy object.
func (r *Realm) bindingForProxy(v goja.Value) *proxyBinding {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return nil
	}
	h, ok := r.byProxy[weak.Make(obj)]
	if !ok {
		return nil
	}
	b, ok := r.table.GetKind(h, binding.KindProxy)
	if !ok {
		return nil
	}
	return b.(*proxyBinding)
}

// wrapScriptObject returns the native wrapper for a script object, reusing
// an existing binding.
func (r *Realm) wrapScriptObject(obj *goja.Object) *ScriptObject {
	key := weak.Make(obj)
	if h, ok := r.byScript[key]; ok {
		if v, ok := r.table.GetKind(h, binding.KindScriptObject); ok {
			if so := v.(*scriptBinding).wrapper.Value(); so != nil {
				return so
			}
		}
		r.finalize(h)
	}

	so := newScriptObject(r, obj)
	b := &scriptBinding{obj: key, wrapper: weak.Make(so)}
	h := r.table.Insert(binding.KindScriptObject, b)
	so.handle = h
	r.byScript[key] = h
	b.cleanup = runtime.AddCleanup(so, r.queue.push, h)

	r.ctx.noteBinding()
	return so
}

// finalize unregisters a binding whose script side is gone. Native
// releases go through the context so they are deferred during a pass.
func (r *Realm) finalize(h binding.Handle) bool {
	v, ok := r.table.Detach(h)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case *proxyBinding:
		b.cleanup.Stop()
		if r.byNative[b.native] == h {
			delete(r.byNative, b.native)
		}
		if r.byProxy[b.proxy] == h {
			delete(r.byProxy, b.proxy)
		}
		r.ctx.releaseNative(b.native)
	case *scriptBinding:
		b.cleanup.Stop()
		if r.byScript[b.obj] == h {
			delete(r.byScript, b.obj)
		}
	}
	return true
}

// unbind is the explicit form of finalize, used by RemoveReference.
func (r *Realm) unbind(h binding.Handle) bool {
	if !r.finalize(h) {
		return false
	}
	r.ctx.log.Debug("binding removed", zap.Uint64("handle", uint64(h)))
	return true
}

// close drops every binding, releasing native references.
func (r *Realm) close() error {
	err := r.table.Close()
	clear(r.byNative)
	clear(r.byProxy)
	clear(r.byScript)
	clear(r.accessors)
	r.registry.clear()
	r.queue.drain()
	return err
}
