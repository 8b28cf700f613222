package bridge

import (
	"slices"
	"sync/atomic"
	"testing"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

var hostType = &scriptbridge.TypeInfo{
	Name:       "Host",
	Methods:    []string{"add", "greet"},
	Properties: []string{"name", "value"},
}

// host is a native object with properties and methods that counts its
// reference traffic.
type host struct {
	info     *scriptbridge.TypeInfo
	props    map[string]variant.Variant
	refs     atomic.Int64
	releases atomic.Int64
	calls    []int // argument counts seen by Invoke
}

func newHost(props map[string]variant.Variant) *host {
	return newHostOf(hostType, props)
}

func newHostOf(ti *scriptbridge.TypeInfo, props map[string]variant.Variant) *host {
	if props == nil {
		props = map[string]variant.Variant{}
	}
	return &host{info: ti, props: props}
}

func (h *host) Type() *scriptbridge.TypeInfo { return h.info }
func (h *host) AddRef()                      { h.refs.Add(1) }

func (h *host) Release() {
	h.refs.Add(-1)
	h.releases.Add(1)
}

func (h *host) GetProperty(name string) (variant.Variant, bool) {
	v, ok := h.props[name]
	return v, ok
}

func (h *host) SetProperty(name string, v variant.Variant) bool {
	h.props[name] = v
	return true
}

func (h *host) EnumerateProperties(yield func(string) bool) {
	keys := make([]string, 0, len(h.props))
	for k := range h.props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !yield(k) {
			return
		}
	}
}

func (h *host) Invoke(name string, args []variant.Variant) (variant.Variant, error) {
	h.calls = append(h.calls, len(args))
	switch name {
	case "add":
		var sum int64
		for _, a := range args {
			n, ok := a.Int()
			if !ok {
				return variant.Null(), errors.TypeMismatch(errors.PhaseNative, []string{name}, a.Kind().String(), "int")
			}
			sum += n
		}
		return variant.Int(sum), nil
	case "greet":
		s, _ := args[0].Str()
		return variant.Str("hello, " + s.Text()), nil
	}
	return variant.Null(), errors.NotFound(errors.PhaseNative, "method", name)
}

func newTestContext(t *testing.T, opts Options) *Context {
	t.Helper()
	c, err := NewContext(opts)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return c
}

func run(t *testing.T, c *Context, src string) variant.Variant {
	t.Helper()
	v, err := c.ExecuteScript(scriptbridge.Source{Name: "test.js", Text: src})
	if err != nil {
		t.Fatalf("ExecuteScript(%q): %v", src, err)
	}
	return v
}

func wantInt(t *testing.T, v variant.Variant, want int64) {
	t.Helper()
	if !variant.Equal(v, variant.Int(want)) {
		t.Fatalf("got %v (%s), want %d", v, v.Kind(), want)
	}
}

func wantBool(t *testing.T, v variant.Variant, want bool) {
	t.Helper()
	if v.Kind() != variant.KindBool || v.Bool() != want {
		t.Fatalf("got %v (%s), want %v", v, v.Kind(), want)
	}
}
