package native

import (
	"slices"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/variant"
)

// Handler implements a native call.
type Handler func(args []variant.Variant) (variant.Variant, error)

// Func is a native object with a single handler. Every Invoke runs the
// handler, whatever method name the caller used.
type Func struct {
	RefCount
	info *scriptbridge.TypeInfo
	fn   Handler
}

// NewFunc creates a callable native object.
func NewFunc(name string, fn Handler) *Func {
	return &Func{
		info: &scriptbridge.TypeInfo{Name: "Function", Methods: []string{name}},
		fn:   fn,
	}
}

func (f *Func) Type() *scriptbridge.TypeInfo {
	return f.info
}

func (f *Func) Invoke(_ string, args []variant.Variant) (variant.Variant, error) {
	return f.fn(args)
}

// Methods is a native object dispatching Invoke by name.
type Methods struct {
	RefCount
	info     *scriptbridge.TypeInfo
	handlers map[string]Handler
}

// NewMethods creates a native object whose type declares one method per
// handler.
func NewMethods(ti *scriptbridge.TypeInfo, handlers map[string]Handler) *Methods {
	if ti == nil {
		ti = &scriptbridge.TypeInfo{Name: "Object"}
	}
	if len(ti.Methods) == 0 {
		for name := range handlers {
			ti.Methods = append(ti.Methods, name)
		}
		slices.Sort(ti.Methods)
	}
	return &Methods{info: ti, handlers: handlers}
}

func (m *Methods) Type() *scriptbridge.TypeInfo {
	return m.info
}

func (m *Methods) Invoke(name string, args []variant.Variant) (variant.Variant, error) {
	h, ok := m.handlers[name]
	if !ok {
		return variant.Null(), notFoundMethod(m.info, name)
	}
	return h(args)
}
