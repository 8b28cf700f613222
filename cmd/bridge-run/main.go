package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/transport"
	"github.com/wippyai/script-bridge/variant"
	"github.com/wippyai/script-bridge/wasmobject"
)

// wasmFlag collects repeated -wasm flags.
type wasmFlag []string

func (f *wasmFlag) String() string     { return strings.Join(*f, ",") }
func (f *wasmFlag) Set(v string) error { *f = append(*f, v); return nil }

type options struct {
	config      string
	debugAddr   string
	handler     string
	wasm        wasmFlag
	interactive bool
	verbose     bool
	scripts     []string
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "", "Path to TOML engine config")
	flag.StringVar(&opts.debugAddr, "debug", "", "Serve the debug protocol over websocket on this address")
	flag.StringVar(&opts.handler, "handler", "", "Debug protocol handler script (with -debug)")
	flag.Var(&opts.wasm, "wasm", "Expose a wasm module as a global, name=file.wasm (repeatable)")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging to stderr")
	flag.Parse()
	opts.scripts = flag.Args()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg := engine.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = engine.LoadConfig(opts.config); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	log := zap.NewNop()
	if opts.verbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = log.Sync() }()
	}
	bridge.SetLogger(log)
	engine.SetLogger(log)
	transport.SetLogger(log)
	wasmobject.SetLogger(log)

	if opts.debugAddr != "" && cfg.DebugProtocol == "" {
		cfg.DebugProtocol = "default"
	}

	mods, err := parseWasmFlags(opts.wasm)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, engine.WithLogger(log), engine.WithReporter(stderrReporter{}))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()
	env := newSetup(os.Stdout, mods)

	tty := term.IsTerminal(int(os.Stdin.Fd()))
	if opts.interactive && !tty {
		return errors.New("interactive mode needs a terminal")
	}
	interactive := opts.interactive || (len(opts.scripts) == 0 && tty)
	if interactive {
		// the REPL shows errors inline
		eng.SetErrorInterceptor(func(bridge.Report, bridge.Reporter) {})
	}

	if opts.debugAddr != "" {
		return runDebug(eng, cfg, opts, env, interactive)
	}
	if interactive {
		w, err := eng.Spawn(env.install)
		if err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer w.Stop()
		return runInteractive(w, env)
	}

	scripts, err := loadScripts(opts.scripts, os.Stdin)
	if err != nil {
		return err
	}
	results, err := eng.Run(context.Background(), scripts, env.install)
	if err != nil {
		return err
	}
	printResults(os.Stdout, scripts, results)
	return nil
}

// loadScripts reads the named files, or stdin when there are none.
func loadScripts(names []string, stdin io.Reader) ([]scriptbridge.Script, error) {
	if len(names) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []scriptbridge.Script{scriptbridge.Source{Name: "<stdin>", Text: string(data)}}, nil
	}
	scripts := make([]scriptbridge.Script, 0, len(names))
	for _, name := range names {
		src, err := scriptbridge.LoadFile(name)
		if err != nil {
			return nil, fmt.Errorf("load script: %w", err)
		}
		scripts = append(scripts, src)
	}
	return scripts, nil
}

func printResults(w io.Writer, scripts []scriptbridge.Script, results []variant.Variant) {
	for i, v := range results {
		if v.IsNull() {
			continue
		}
		if len(results) > 1 {
			fmt.Fprintf(w, "%s: ", scripts[i].Path())
		}
		fmt.Fprintln(w, v.String())
	}
}

// runDebug hosts one debug context on a worker and serves its protocol
// over websocket while the scripts (or the REPL) run on it.
func runDebug(eng *engine.Engine, cfg *engine.Config, opts options, env *setup, interactive bool) error {
	if opts.handler == "" {
		return errors.New("-debug needs -handler")
	}
	handler, err := scriptbridge.LoadFile(opts.handler)
	if err != nil {
		return fmt.Errorf("load debug handler: %w", err)
	}
	if err := eng.RegisterDebugHandler(cfg.DebugProtocol, handler); err != nil {
		return err
	}

	session := transport.NewSession(nil)
	w, err := eng.SpawnDebug(session, env.install)
	if err != nil {
		return fmt.Errorf("start debug worker: %w", err)
	}
	defer w.Stop()
	session.Attach(w.Debug())

	srv := &http.Server{Addr: opts.debugAddr, Handler: session}
	fmt.Fprintf(os.Stderr, "debugger listening on ws://%s\n", opts.debugAddr)

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("debug server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer srv.Shutdown(context.Background())
		if interactive {
			return runInteractive(w, env)
		}
		scripts, err := loadScripts(opts.scripts, os.Stdin)
		if err != nil {
			return err
		}
		results := make([]variant.Variant, len(scripts))
		for i, s := range scripts {
			if results[i], err = w.Execute(s); err != nil {
				return err
			}
		}
		printResults(os.Stdout, scripts, results)
		return nil
	})
	return g.Wait()
}

// stderrReporter prints uncaught script errors.
type stderrReporter struct{}

func (stderrReporter) Report(r bridge.Report) {
	loc := r.FileName
	if r.Line > 0 {
		loc = fmt.Sprintf("%s:%d", r.FileName, r.Line)
	}
	fmt.Fprintf(os.Stderr, "%s: %s: %s\n", r.Severity, loc, r.Message)
}
