// Package bridge connects native objects to goja realms.
//
// A Context is created on, and owned by, one goroutine. It holds a main
// Realm (a goja runtime with its class registry and binding table) and
// exposes registered native objects to script through proxies:
//
//	ctx, err := bridge.NewContext(bridge.Options{Logger: log})
//	if err != nil {
//		return err
//	}
//	defer ctx.Close()
//
//	ctx.RegisterObject("host", obj)
//	v, err := ctx.ExecuteScript(scriptbridge.Source{Name: "main.js", Text: "host.value"})
//
// # Proxies and classes
//
// Each native type gets one ScriptClass per realm: a prototype carrying the
// type's methods and a trap table shared by every proxy of that type.
// Properties go through PropertyAccessor pairs cached per name, so all
// proxies exposing "value" share one getter and one setter.
//
// A native object has at most one live proxy per realm. Script objects
// handed to native code are wrapped in a ScriptObject, again at most once.
//
// # Collection
//
// Proxies are held weakly. When Go collects one, a cleanup queues its
// binding and the next collection pass (GarbageCollect, or automatically
// after Options.GCThreshold new bindings) unregisters it and drops the
// native reference. Native releases and RemoveReference calls made during
// a pass are applied once, after it finishes.
//
// # Goroutines
//
// Every Context method except Post and Interrupt checks that it runs on
// the owning goroutine and fails with a wrong_thread error otherwise,
// changing nothing. Work from other goroutines is posted and run by Pump,
// Serve or a debug pause loop. Build with -tags bridgedebug to panic on
// calls that have no valid Context at all.
package bridge
