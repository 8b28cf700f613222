// Package scriptbridge exposes a reference-counted native object model to
// JavaScript running in goja, and script values back to native code.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	scriptbridge/        Root package with the native object and script contracts
//	├── engine/          Context factory, tuning, error interception, workers
//	├── bridge/          Context, realms, proxies, marshaling, debug context
//	├── binding/         Generation-checked binding table
//	├── variant/         Native dynamic value, encoded strings, identifiers
//	├── native/          Ready-made native objects (maps, funcs, reflection)
//	├── wasmobject/      Native objects backed by WebAssembly exports
//	├── transport/       WebSocket transport for the debug protocol
//	└── errors/          Structured error types
//
// # Quick Start
//
// Expose a native object and run a script against it:
//
//	eng, _ := engine.New(nil)
//	defer eng.Close()
//
//	ctx, _ := eng.CreateContext()
//	defer ctx.Close()
//
//	host := native.NewMap("Host", map[string]variant.Variant{
//	    "value": variant.Int(42),
//	})
//	ctx.RegisterObject("host", host)
//
//	v, err := ctx.ExecuteScript(scriptbridge.Source{Name: "main.js", Text: "host.value"})
//
// # Native Objects
//
// A native object implements Object and any of the capability interfaces
// Gettable, Settable, Invokable and Enumerable. The bridge forwards script
// property reads, writes, calls and key enumeration to whichever
// capabilities are present.
//
// Native objects are reference counted. The bridge calls AddRef when a
// proxy is bound and Release when the binding is dropped, either through
// Context.RemoveReference or after the script side collects the proxy.
//
// # Threading
//
// A Context belongs to the goroutine that created it. Calls from any other
// goroutine fail with errors.ErrWrongThread and change nothing. Use
// Context.Post, or an engine.Worker, to reach a Context from elsewhere.
package scriptbridge
