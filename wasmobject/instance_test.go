package wasmobject

import (
	"context"
	"testing"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// addModule exports add(i32, i32) -> i32 and a mutable i32 global
// "counter".
var addModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: (i32, i32) -> i32
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	// function
	0x03, 0x02, 0x01, 0x00,
	// global: mut i32 = 0
	0x06, 0x06, 0x01, 0x7f, 0x01, 0x41, 0x00, 0x0b,
	// export: "add" func 0, "counter" global 0
	0x07, 0x11, 0x02,
	0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x07, 0x63, 0x6f, 0x75, 0x6e, 0x74, 0x65, 0x72, 0x03, 0x00,
	// code: local.get 0 local.get 1 i32.add
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func newInstance(t *testing.T, globals ...string) *Instance {
	t.Helper()
	inst, err := Instantiate(context.Background(), addModule, Config{Name: "Adder", Globals: globals})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = inst.Close() })
	return inst
}

func TestInstantiate(t *testing.T) {
	inst := newInstance(t, "counter")
	ti := inst.Type()
	if ti.Name != "Adder" || !ti.HasMethod("add") || !ti.HasProperty("counter") {
		t.Fatalf("type = %+v", ti)
	}

	if _, err := Instantiate(context.Background(), addModule, Config{Globals: []string{"nope"}}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing global: err = %v", err)
	}
	if _, err := Instantiate(context.Background(), []byte("not wasm"), Config{}); !errors.Is(err, &errors.Error{Kind: errors.KindCompilation}) {
		t.Errorf("bad binary: err = %v", err)
	}
}

func TestInvoke(t *testing.T) {
	inst := newInstance(t)
	tests := []struct {
		name    string
		method  string
		args    []variant.Variant
		want    int64
		wantErr error
	}{
		{name: "add", method: "add", args: []variant.Variant{variant.Int(2), variant.Int(40)}, want: 42},
		{name: "negative", method: "add", args: []variant.Variant{variant.Int(-5), variant.Int(2)}, want: -3},
		{name: "wraps", method: "add", args: []variant.Variant{variant.Int(2147483647), variant.Int(1)}, want: -2147483648},
		{name: "arity", method: "add", args: []variant.Variant{variant.Int(1)}, wantErr: &errors.Error{Kind: errors.KindInvalidInput}},
		{name: "type", method: "add", args: []variant.Variant{variant.Bool(true), variant.Int(1)}, wantErr: &errors.Error{Kind: errors.KindTypeMismatch}},
		{name: "overflow", method: "add", args: []variant.Variant{variant.Int(1 << 40), variant.Int(1)}, wantErr: &errors.Error{Kind: errors.KindOverflow}},
		{name: "missing", method: "sub", wantErr: errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := inst.Invoke(tt.method, tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if n, ok := v.Int(); !ok || n != tt.want {
				t.Errorf("got %v, want %d", v, tt.want)
			}
		})
	}
}

func TestGlobals(t *testing.T) {
	inst := newInstance(t, "counter")
	v, ok := inst.GetProperty("counter")
	if n, _ := v.Int(); !ok || n != 0 {
		t.Fatalf("counter = %v, %v", v, ok)
	}
	if !inst.SetProperty("counter", variant.Int(7)) {
		t.Fatal("SetProperty failed")
	}
	if v, _ := inst.GetProperty("counter"); v.String() != variant.Int(7).String() {
		t.Errorf("counter = %v, want 7", v)
	}
	if inst.SetProperty("counter", variant.Str("x")) {
		t.Error("string accepted for i32 global")
	}
	if inst.SetProperty("other", variant.Int(1)) {
		t.Error("unknown global accepted")
	}
	if _, ok := inst.GetProperty("other"); ok {
		t.Error("unknown global readable")
	}
}

func TestFromScript(t *testing.T) {
	inst := newInstance(t, "counter")
	c, err := bridge.NewContext(bridge.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.RegisterObject("adder", inst); err != nil {
		t.Fatal(err)
	}

	v, err := c.ExecuteScript(scriptbridge.Source{Name: "wasm.js", Text: `
		adder.counter = adder.add(adder.counter, 5);
		adder.counter = adder.add(adder.counter, 5);
		adder.counter
	`})
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := v.Int(); !ok || n != 10 {
		t.Fatalf("counter = %v, want 10", v)
	}
	if _, err := c.ExecuteScript(scriptbridge.Source{Name: "bad.js", Text: "adder.add('a', 1)"}); !errors.Is(err, errors.ErrExecution) {
		t.Errorf("bad argument: err = %v", err)
	}
}
