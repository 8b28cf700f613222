package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/petermattis/goid"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/native"
	"github.com/wippyai/script-bridge/variant"
)

func newEngine(t *testing.T, cfg *Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

type reportLog []bridge.Report

func (l *reportLog) Report(r bridge.Report) { *l = append(*l, r) }

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.Precedence = "random"
	if _, err := New(cfg); !errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateContextAppliesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompileWarmup = 0
	cfg.Policy.Precedence = "properties"
	e := newEngine(t, cfg)

	c, err := e.CreateContext(ContextID("tuned"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.ID() != "tuned" {
		t.Errorf("ID = %q", c.ID())
	}

	// warmup 0 caches on first compile
	if _, err := c.ExecuteScript(scriptbridge.Source{Name: "a.js", Text: "1"}); err != nil {
		t.Fatal(err)
	}
	snap, _ := c.Snapshot()
	if snap.CachedPrograms != 1 {
		t.Errorf("CachedPrograms = %d, want 1", snap.CachedPrograms)
	}

	m := native.NewMap("Host", map[string]variant.Variant{"toString": variant.Int(7)})
	if err := c.RegisterObject("host", m); err != nil {
		t.Fatal(err)
	}
	v, err := c.ExecuteScript(scriptbridge.Source{Name: "b.js", Text: "host.toString"})
	if err != nil {
		t.Fatal(err)
	}
	if i, ok := v.Int(); !ok || i != 7 {
		t.Errorf("property precedence not applied: %v", v)
	}
}

func TestMaxContexts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContexts = 1
	e := newEngine(t, cfg)

	first, err := e.CreateContext()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateContext(); !errors.Is(err, errors.ErrInitialization) {
		t.Fatalf("second context: err = %v", err)
	}
	if e.Live() != 1 {
		t.Errorf("Live = %d, want 1", e.Live())
	}
	_ = first.Close()
	_ = first.Close()
	if e.Live() != 0 {
		t.Fatalf("Live after close = %d, want 0", e.Live())
	}
	again, err := e.CreateContext()
	if err != nil {
		t.Fatal(err)
	}
	_ = again.Close()
}

func TestClosedEngine(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateContext(); !errors.Is(err, errors.ErrInitialization) {
		t.Fatalf("CreateContext after Close: err = %v", err)
	}
	if _, err := e.Spawn(nil); !errors.Is(err, errors.ErrInitialization) {
		t.Fatalf("Spawn after Close: err = %v", err)
	}
}

func TestErrorInterceptor(t *testing.T) {
	var log reportLog
	e := newEngine(t, nil, WithReporter(&log))
	c, err := e.CreateContext()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fail := func() {
		t.Helper()
		if _, err := c.ExecuteScript(scriptbridge.Source{Name: "x.js", Text: "throw new Error('x')"}); err == nil {
			t.Fatal("script did not fail")
		}
	}

	fail()
	if len(log) != 1 || log[0].Message != "Error: x" {
		t.Fatalf("default interceptor: %+v", log)
	}

	// installed after the context exists
	e.SetErrorInterceptor(func(r bridge.Report, next bridge.Reporter) {
		r.Message = "[" + r.FileName + "] " + r.Message
		next.Report(r)
	})
	fail()
	if len(log) != 2 || log[1].Message != "[x.js] Error: x" {
		t.Fatalf("rewriting interceptor: %+v", log)
	}

	e.SetErrorInterceptor(func(bridge.Report, bridge.Reporter) {})
	fail()
	if len(log) != 2 {
		t.Fatalf("swallowing interceptor forwarded: %+v", log)
	}

	e.SetErrorInterceptor(nil)
	fail()
	if len(log) != 3 {
		t.Fatalf("reset interceptor: %+v", log)
	}
}

func TestContextReporterOverride(t *testing.T) {
	var engineLog, ctxLog reportLog
	e := newEngine(t, nil, WithReporter(&engineLog))
	c, err := e.CreateContext(ContextReporter(&ctxLog))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_, _ = c.ExecuteScript(scriptbridge.Source{Name: "x.js", Text: "throw 1"})
	if len(engineLog) != 0 || len(ctxLog) != 1 {
		t.Fatalf("engine = %d, context = %d", len(engineLog), len(ctxLog))
	}
}

func TestScriptRootIncludes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptRoot = t.TempDir()
	if err := writeScript(cfg.ScriptRoot, "lib.js", "globalThis.lib = 'ok'"); err != nil {
		t.Fatal(err)
	}
	e := newEngine(t, cfg)
	c, err := e.CreateContext()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	v, err := c.ExecuteScript(scriptbridge.Source{Name: "main.js", Text: "include('lib.js'); lib"})
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := v.Str(); !ok || s.Text() != "ok" {
		t.Errorf("lib = %v", v)
	}
}

const echoHandler = `
function receiveMessage(payload, threadId) {
	sendDebugMessage("ack:" + payload);
}
`

type chanSender chan string

func (s chanSender) SendMessage(msg scriptbridge.DebugMessage) bool {
	s <- string(msg.Payload)
	return true
}

func (s chanSender) CreateMessage(raw []byte) scriptbridge.DebugMessage {
	return scriptbridge.DebugMessage{Payload: raw, ThreadID: goid.Get()}
}

func expect(t *testing.T, out <-chan string, want string) {
	t.Helper()
	select {
	case got := <-out:
		if got != want {
			t.Fatalf("message = %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestCreateDebugContext(t *testing.T) {
	sender := make(chanSender, 4)

	e := newEngine(t, nil)
	if _, err := e.CreateDebugContext(sender); !errors.Is(err, errors.ErrInitialization) {
		t.Fatalf("no protocol: err = %v", err)
	}

	cfg := DefaultConfig()
	cfg.DebugProtocol = "echo"
	e = newEngine(t, cfg)
	if _, err := e.CreateDebugContext(sender); !errors.Is(err, errors.ErrInitialization) {
		t.Fatalf("no handler: err = %v", err)
	}
	if err := e.RegisterDebugHandler("echo", nil); err == nil {
		t.Fatal("nil handler accepted")
	}

	if err := e.RegisterDebugHandler("echo", scriptbridge.Source{Name: "bad.js", Text: "function ("}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateDebugContext(sender); !errors.Is(err, errors.ErrInitialization) {
		t.Fatalf("bad handler: err = %v", err)
	}
	if e.Live() != 0 {
		t.Fatalf("failed debug context kept a slot: Live = %d", e.Live())
	}

	if err := e.RegisterDebugHandler("echo", scriptbridge.Source{Name: "echo.js", Text: echoHandler}); err != nil {
		t.Fatal(err)
	}
	d, err := e.CreateDebugContext(sender)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	d.ReceiveMessage(scriptbridge.DebugMessage{Payload: []byte("ping")})
	expect(t, sender, "ack:ping")
}

func TestRun(t *testing.T) {
	e := newEngine(t, nil)

	scripts := []scriptbridge.Script{
		scriptbridge.Source{Name: "a.js", Text: "base + 1"},
		scriptbridge.Source{Name: "b.js", Text: "base + 2"},
		scriptbridge.Source{Name: "c.js", Text: "base * 2"},
	}
	setup := func(c *bridge.Context) error {
		_, err := c.ExecuteScript(scriptbridge.Source{Name: "setup.js", Text: "globalThis.base = 10"})
		return err
	}
	results, err := e.Run(context.Background(), scripts, setup)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int64{11, 12, 20} {
		if got, ok := results[i].Int(); !ok || got != want {
			t.Errorf("results[%d] = %v, want %d", i, results[i], want)
		}
	}
	if e.Live() != 0 {
		t.Errorf("Live after Run = %d", e.Live())
	}
}

func TestRunFailureInterruptsOthers(t *testing.T) {
	e := newEngine(t, nil)
	e.SetErrorInterceptor(func(bridge.Report, bridge.Reporter) {})

	scripts := []scriptbridge.Script{
		scriptbridge.Source{Name: "loop.js", Text: "for (;;) {}"},
		scriptbridge.Source{Name: "fail.js", Text: "throw new Error('fail')"},
	}
	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), scripts, nil)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, errors.ErrExecution) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("looping script was not interrupted")
	}
}

func writeScript(root, name, text string) error {
	return os.WriteFile(filepath.Join(root, name), []byte(text), 0o644)
}
