// Package engine is the process-wide entry point of the bridge.
//
// An Engine turns a Config into contexts:
//
//	cfg, err := engine.LoadConfig("bridge.toml")
//	eng, err := engine.New(cfg, engine.WithLogger(log))
//	ctx, err := eng.CreateContext()
//	defer ctx.Close()
//	v, err := ctx.ExecuteScript(scriptbridge.Source{Name: "main.js", Text: src})
//
// A Context belongs to the goroutine that created it. To share one across
// goroutines, host it in a Worker:
//
//	w, err := eng.Spawn(setup)
//	v, err := w.Execute(script)
//	err = w.Stop()
//
// Run executes independent scripts in parallel, one Context each.
//
// # Error interception
//
// Every Context created by an Engine reports uncaught script errors
// through the engine interceptor before they reach the Context's
// Reporter. SetErrorInterceptor swaps it at any time; the default
// forwards reports unchanged.
//
// # Debugging
//
// RegisterDebugHandler binds a protocol name to a handler script.
// CreateDebugContext and SpawnDebug load the handler named by
// Config.DebugProtocol into a second realm of the new Context.
package engine
