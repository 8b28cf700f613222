// Package wasmobject exposes WebAssembly modules to scripts as native
// objects.
//
// Exported functions become methods and the named exported globals become
// properties. Mutable globals are writable from script:
//
//	inst, err := wasmobject.Instantiate(ctx, wasm, wasmobject.Config{
//		Name:    "Math",
//		Globals: []string{"counter"},
//	})
//	defer inst.Close()
//	err = bctx.RegisterObject("math", inst)
//	// script: math.add(1, 2); math.counter = 5
//
// Only i32, i64, f32 and f64 values cross the boundary. Modules with
// function imports are rejected.
package wasmobject
