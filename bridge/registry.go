package bridge

import (
	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
)

// ClassRegistry holds the classes of one realm, bucketed by module. Types
// without a module live in the default bucket, which is always attached.
type ClassRegistry struct {
	buckets map[*scriptbridge.Module]*classBucket
}

type classBucket struct {
	module  *scriptbridge.Module
	classes map[*scriptbridge.TypeInfo]*ScriptClass
}

func newClassRegistry() *ClassRegistry {
	r := &ClassRegistry{buckets: make(map[*scriptbridge.Module]*classBucket)}
	r.buckets[nil] = &classBucket{classes: make(map[*scriptbridge.TypeInfo]*ScriptClass)}
	return r
}

// RegisterModule attaches a module. Attaching twice is a no-op.
func (r *ClassRegistry) RegisterModule(m *scriptbridge.Module) error {
	if m == nil {
		return errors.InvalidInput(errors.PhaseRegister, "nil module")
	}
	if _, ok := r.buckets[m]; ok {
		return nil
	}
	r.buckets[m] = &classBucket{
		module:  m,
		classes: make(map[*scriptbridge.TypeInfo]*ScriptClass),
	}
	return nil
}

// UnregisterModule detaches a module and returns the classes it owned.
func (r *ClassRegistry) UnregisterModule(m *scriptbridge.Module) ([]*ScriptClass, error) {
	if m == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "the default module cannot be detached")
	}
	b, ok := r.buckets[m]
	if !ok {
		return nil, errors.ClassRegistration("", m.Name, "module is not attached")
	}
	delete(r.buckets, m)

	removed := make([]*ScriptClass, 0, len(b.classes))
	for _, c := range b.classes {
		removed = append(removed, c)
	}
	return removed, nil
}

// Attached reports whether m is attached. The default module always is.
func (r *ClassRegistry) Attached(m *scriptbridge.Module) bool {
	_, ok := r.buckets[m]
	return ok
}

// LookupClass finds the class registered for ti in ti's module.
func (r *ClassRegistry) LookupClass(ti *scriptbridge.TypeInfo) (*ScriptClass, bool) {
	if ti == nil {
		return nil, false
	}
	b, ok := r.buckets[ti.Module]
	if !ok {
		return nil, false
	}
	c, ok := b.classes[ti]
	return c, ok
}

// AddClass registers c under its type's module. If the type already has a
// class, that class is returned and c is discarded.
func (r *ClassRegistry) AddClass(c *ScriptClass) (*ScriptClass, error) {
	ti := c.info
	b, ok := r.buckets[ti.Module]
	if !ok {
		return nil, errors.ClassRegistration(ti.Name, ti.ModuleName(), "module is not attached")
	}
	if existing, ok := b.classes[ti]; ok {
		return existing, nil
	}
	b.classes[ti] = c
	return c, nil
}

// Len returns the number of registered classes.
func (r *ClassRegistry) Len() int {
	n := 0
	for _, b := range r.buckets {
		n += len(b.classes)
	}
	return n
}

// Modules returns the number of attached modules, excluding the default.
func (r *ClassRegistry) Modules() int {
	return len(r.buckets) - 1
}

func (r *ClassRegistry) each(fn func(*ScriptClass)) {
	for _, b := range r.buckets {
		for _, c := range b.classes {
			fn(c)
		}
	}
}

func (r *ClassRegistry) clear() {
	for m := range r.buckets {
		if m != nil {
			delete(r.buckets, m)
		}
	}
	clear(r.buckets[nil].classes)
}
