package native

import (
	"slices"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/variant"
)

// Map is a native object holding named properties in insertion order.
// It is not safe for concurrent use.
type Map struct {
	RefCount
	info     *scriptbridge.TypeInfo
	values   map[string]variant.Variant
	keys     []string
	readOnly map[string]bool
	frozen   bool
}

// NewMap creates a property bag with its own type.
func NewMap(typeName string, props map[string]variant.Variant) *Map {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	m := &Map{
		info:   &scriptbridge.TypeInfo{Name: typeName},
		values: make(map[string]variant.Variant, len(props)),
	}
	for _, k := range keys {
		m.Put(k, props[k])
	}
	m.info.Properties = slices.Clone(m.keys)
	return m
}

// NewTypedMap creates an empty property bag sharing ti with other maps.
func NewTypedMap(ti *scriptbridge.TypeInfo) *Map {
	return &Map{
		info:   ti,
		values: make(map[string]variant.Variant),
	}
}

func (m *Map) Type() *scriptbridge.TypeInfo {
	return m.info
}

// Put sets a property from native code, ignoring read-only marks.
func (m *Map) Put(name string, v variant.Variant) {
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = v
}

// Delete removes a property from native code.
func (m *Map) Delete(name string) {
	if _, ok := m.values[name]; !ok {
		return
	}
	delete(m.values, name)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == name })
}

// SetReadOnly rejects script writes to the named properties.
func (m *Map) SetReadOnly(names ...string) {
	if m.readOnly == nil {
		m.readOnly = make(map[string]bool, len(names))
	}
	for _, n := range names {
		m.readOnly[n] = true
	}
}

// Freeze rejects script writes that would add new properties.
func (m *Map) Freeze() {
	m.frozen = true
}

func (m *Map) GetProperty(name string) (variant.Variant, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m *Map) SetProperty(name string, v variant.Variant) bool {
	if m.readOnly[name] {
		return false
	}
	if _, ok := m.values[name]; !ok && m.frozen {
		return false
	}
	m.Put(name, v)
	return true
}

func (m *Map) EnumerateProperties(yield func(string) bool) {
	for _, k := range m.keys {
		if !yield(k) {
			return
		}
	}
}

// Len returns the number of properties.
func (m *Map) Len() int {
	return len(m.keys)
}
