package scriptbridge

import (
	"github.com/wippyai/script-bridge/variant"
)

// Object is a reference-counted native object with reflected type info.
// Identity is the interface value: two Objects are the same object when
// they compare equal.
type Object interface {
	variant.Object
	Type() *TypeInfo
}

// Gettable objects expose named properties for reading.
type Gettable interface {
	GetProperty(name string) (variant.Variant, bool)
}

// Settable objects accept property writes. SetProperty returns false when
// the property is read-only or unknown.
type Settable interface {
	SetProperty(name string, value variant.Variant) bool
}

// Invokable objects expose named methods.
type Invokable interface {
	Invoke(name string, args []variant.Variant) (variant.Variant, error)
}

// Enumerable objects report their property names.
type Enumerable interface {
	EnumerateProperties(yield func(name string) bool)
}

// Indexed objects expose array-style element access.
type Indexed interface {
	Len() int
	Index(i int) (variant.Variant, error)
	SetIndex(i int, value variant.Variant) error
}

// Bufferable objects expose their backing memory for zero-copy access.
// The memory stays valid only while the object is referenced.
type Bufferable interface {
	Bytes() []byte
	Address() uintptr
	Size() int
}

// Module is the deployable unit that owns a set of native types. Classes
// registered for a module's types are purged when the module detaches.
type Module struct {
	Name string
}

// TypeInfo describes a native type to the bridge.
type TypeInfo struct {
	Parent     *TypeInfo
	Module     *Module
	Name       string
	Methods    []string
	Properties []string
}

// HasMethod reports whether the type or one of its parents declares name.
func (t *TypeInfo) HasMethod(name string) bool {
	for ti := t; ti != nil; ti = ti.Parent {
		for _, m := range ti.Methods {
			if m == name {
				return true
			}
		}
	}
	return false
}

// HasProperty reports whether the type or one of its parents declares name.
func (t *TypeInfo) HasProperty(name string) bool {
	for ti := t; ti != nil; ti = ti.Parent {
		for _, p := range ti.Properties {
			if p == name {
				return true
			}
		}
	}
	return false
}

// ModuleName returns the owning module name, or "" for the default module.
func (t *TypeInfo) ModuleName() string {
	if t == nil || t.Module == nil {
		return ""
	}
	return t.Module.Name
}
