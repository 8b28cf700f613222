package native

import (
	stderrors "errors"
	"testing"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

var (
	_ scriptbridge.Object     = (*Map)(nil)
	_ scriptbridge.Gettable   = (*Map)(nil)
	_ scriptbridge.Settable   = (*Map)(nil)
	_ scriptbridge.Enumerable = (*Map)(nil)
	_ scriptbridge.Invokable  = (*Func)(nil)
	_ scriptbridge.Invokable  = (*Methods)(nil)
	_ scriptbridge.Object     = (*Reflected)(nil)
)

func TestRefCount(t *testing.T) {
	var r RefCount
	r.AddRef()
	r.AddRef()
	r.Release()
	if r.Refs() != 1 {
		t.Fatalf("Refs() = %d, want 1", r.Refs())
	}
	r.Release()
	r.Release()
	if r.Refs() != 0 {
		t.Fatalf("Refs() = %d, want clamp at 0", r.Refs())
	}
}

func TestMap(t *testing.T) {
	m := NewMap("Host", map[string]variant.Variant{
		"value": variant.Int(42),
		"name":  variant.Str("h"),
	})

	if m.Type().Name != "Host" {
		t.Errorf("Type().Name = %q", m.Type().Name)
	}
	if v, ok := m.GetProperty("value"); !ok || !variant.Equal(v, variant.Int(42)) {
		t.Fatalf("GetProperty(value) = %v, %v", v, ok)
	}
	if !m.SetProperty("value", variant.Int(7)) {
		t.Fatal("SetProperty failed")
	}
	if v, _ := m.GetProperty("value"); !variant.Equal(v, variant.Int(7)) {
		t.Fatalf("value after set = %v", v)
	}

	var keys []string
	m.EnumerateProperties(func(k string) bool {
		keys = append(keys, k)
		return true
	})
	if len(keys) != 2 || keys[0] != "name" || keys[1] != "value" {
		t.Errorf("keys = %v", keys)
	}

	m.SetReadOnly("name")
	if m.SetProperty("name", variant.Str("x")) {
		t.Error("read-only property accepted write")
	}
	m.Freeze()
	if m.SetProperty("extra", variant.Int(1)) {
		t.Error("frozen map accepted new property")
	}
	m.Put("extra", variant.Int(1))
	m.Delete("name")
	if m.Len() != 2 {
		t.Errorf("Len() = %d", m.Len())
	}
	if _, ok := m.GetProperty("name"); ok {
		t.Error("deleted property still present")
	}
}

func TestFunc(t *testing.T) {
	var got []variant.Variant
	f := NewFunc("add", func(args []variant.Variant) (variant.Variant, error) {
		got = args
		a, _ := args[0].Int()
		b, _ := args[1].Int()
		return variant.Int(a + b), nil
	})

	v, err := f.Invoke("add", []variant.Variant{variant.Int(2), variant.Int(3)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !variant.Equal(v, variant.Int(5)) {
		t.Fatalf("Invoke = %v with %d args", v, len(got))
	}
	if !f.Type().HasMethod("add") {
		t.Error("type should declare add")
	}
}

func TestMethods(t *testing.T) {
	m := NewMethods(nil, map[string]Handler{
		"b": func([]variant.Variant) (variant.Variant, error) { return variant.Int(2), nil },
		"a": func([]variant.Variant) (variant.Variant, error) { return variant.Int(1), nil },
	})
	if ms := m.Type().Methods; len(ms) != 2 || ms[0] != "a" || ms[1] != "b" {
		t.Errorf("Methods = %v", ms)
	}
	if _, err := m.Invoke("c", nil); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

type Widget struct {
	RefCount
	ID    int
	Label string
}

func (w *Widget) Show() string { return "show " + w.Label }

type Button struct {
	Widget
	URLPath string
	Pressed bool
	Scale   float64
	hidden  int
}

func (b *Button) Click(times int) (int, error) {
	if times < 0 {
		return 0, stderrors.New("negative")
	}
	return times * 2, nil
}

func (b *Button) Sum(base int, rest ...variant.Variant) int {
	for _, v := range rest {
		i, _ := v.Int()
		base += int(i)
	}
	return base
}

func (b *Button) Reset() {
	b.Pressed = false
}

func TestReflect(t *testing.T) {
	mod := &scriptbridge.Module{Name: "ui"}
	b := &Button{Widget: Widget{ID: 1, Label: "ok"}, URLPath: "/x"}

	r, err := Reflect(b, mod)
	if err != nil {
		t.Fatal(err)
	}

	ti := r.Type()
	if ti.Name != "Button" || ti.Module != mod {
		t.Fatalf("TypeInfo = %+v", ti)
	}
	if ti.Parent == nil || ti.Parent.Name != "Widget" {
		t.Fatal("embedded Widget should be the parent type")
	}
	if !ti.HasMethod("show") || !ti.HasMethod("click") {
		t.Error("expected show (inherited) and click")
	}
	for _, m := range ti.Methods {
		if m == "show" {
			t.Error("inherited method listed on child")
		}
	}

	var keys []string
	r.EnumerateProperties(func(k string) bool {
		keys = append(keys, k)
		return true
	})
	want := []string{"id", "label", "urlPath", "pressed", "scale"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	if v, ok := r.GetProperty("label"); !ok || v.String() != "ok" {
		t.Errorf("label = %v, %v", v, ok)
	}
	if _, ok := r.GetProperty("hidden"); ok {
		t.Error("unexported field exposed")
	}
	if !r.SetProperty("pressed", variant.Bool(true)) || !b.Pressed {
		t.Error("SetProperty(pressed) failed")
	}
	if r.SetProperty("scale", variant.Str("big")) {
		t.Error("type mismatch accepted")
	}
	if !r.SetProperty("scale", variant.Float(1.5)) || b.Scale != 1.5 {
		t.Error("SetProperty(scale) failed")
	}

	v, err := r.Invoke("click", []variant.Variant{variant.Int(4)})
	if err != nil || !variant.Equal(v, variant.Int(8)) {
		t.Errorf("click = %v, %v", v, err)
	}
	if _, err := r.Invoke("click", []variant.Variant{variant.Int(-1)}); err == nil {
		t.Error("expected method error")
	}
	if _, err := r.Invoke("click", nil); !errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Errorf("expected arity error, got %v", err)
	}
	if v, _ := r.Invoke("show", nil); v.String() != "show ok" {
		t.Errorf("show = %v", v)
	}
	v, err = r.Invoke("sum", []variant.Variant{variant.Int(1), variant.Int(2), variant.Int(3)})
	if err != nil || !variant.Equal(v, variant.Int(6)) {
		t.Errorf("sum = %v, %v", v, err)
	}
	if v, err := r.Invoke("reset", nil); err != nil || !v.IsNull() || b.Pressed {
		t.Errorf("reset = %v, %v", v, err)
	}
	if _, err := r.Invoke("addRef", nil); !errors.Is(err, errors.ErrNotFound) {
		t.Error("reserved method exposed")
	}

	r2, _ := Reflect(&Button{}, mod)
	if r2.Type() != ti {
		t.Error("TypeInfo should be shared per type and module")
	}
	if r2.Target() == r.Target() {
		t.Error("targets must differ")
	}

	if _, err := Reflect(Button{}, nil); err == nil {
		t.Error("non-pointer accepted")
	}
}

func TestScriptName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Value", "value"},
		{"ID", "id"},
		{"URLPath", "urlPath"},
		{"GetHTTPURL", "getHTTPURL"},
		{"X", "x"},
		{"already", "already"},
	}
	for _, tt := range tests {
		if got := scriptName(tt.in); got != tt.want {
			t.Errorf("scriptName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type Packet struct {
	RefCount
	Data []byte
}

func (p *Packet) Write(b []byte) int {
	p.Data = append(p.Data, b...)
	return len(b)
}

func TestReflectBytes(t *testing.T) {
	p := &Packet{}
	r, err := Reflect(p, nil)
	if err != nil {
		t.Fatal(err)
	}

	// latin-1 source text is re-encoded as UTF-8
	if !r.SetProperty("data", variant.FromString(variant.Encoded([]byte{'h', 0xe9}, variant.Latin1))) {
		t.Fatal("SetProperty(data) failed")
	}
	if string(p.Data) != "hé" {
		t.Errorf("Data = %x", p.Data)
	}
	if v, ok := r.GetProperty("data"); !ok || v.String() != "hé" {
		t.Errorf("data = %v, %v", v, ok)
	}
	if r.SetProperty("data", variant.Int(1)) {
		t.Error("int accepted for a byte slice")
	}

	v, err := r.Invoke("write", []variant.Variant{variant.Str("!")})
	if err != nil || !variant.Equal(v, variant.Int(1)) {
		t.Errorf("write = %v, %v", v, err)
	}
	if string(p.Data) != "hé!" {
		t.Errorf("Data after write = %q", p.Data)
	}
}
