package bridge

import (
	"strings"

	"github.com/dop251/goja"
	"github.com/petermattis/goid"
	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
)

// DebugContext is a Context with a second realm running a debug protocol
// handler script. The handler talks to the client through the sender and
// may pause the main realm.
//
// Handler globals: sendDebugMessage(raw), pause(state), println(...).
// Handler hooks: receiveMessage(payload, threadId), onDisconnected(),
// onBreak(reason). Main realm global: debugBreak(reason).
type DebugContext struct {
	*Context
	debug   *Realm
	sender  scriptbridge.DebugMessageSender
	handler scriptbridge.Script
	paused  bool
	pauses  int
}

var _ scriptbridge.DebugMessageReceiver = (*DebugContext)(nil)

// NewDebugContext creates a debug-enabled Context owned by the calling
// goroutine and loads handler into its debug realm.
func NewDebugContext(opts Options, handler scriptbridge.Script, sender scriptbridge.DebugMessageSender) (*DebugContext, error) {
	if handler == nil || sender == nil {
		return nil, errors.Initialization("debug context needs a handler script and a sender", nil)
	}
	c, err := NewContext(opts)
	if err != nil {
		return nil, err
	}

	d := &DebugContext{Context: c, sender: sender, handler: handler}
	if err := d.init(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return d, nil
}

func (d *DebugContext) init() error {
	c := d.Context
	dr, err := newRealm(c, "debug")
	if err != nil {
		return err
	}
	d.debug = dr
	c.realms = append(c.realms, dr)

	globals := map[string]any{
		"sendDebugMessage": d.sendDebugMessage,
		"pause":            d.pauseFromScript,
		"println":          d.println,
	}
	for name, fn := range globals {
		if err := dr.rt.Set(name, fn); err != nil {
			return errors.Initialization("install debug global "+name, err)
		}
	}
	if err := c.main.rt.Set("debugBreak", d.debugBreak); err != nil {
		return errors.Initialization("install debugBreak", err)
	}

	code, err := d.handler.Code()
	if err != nil {
		return errors.Initialization("load debug handler", err)
	}
	scope := enterRealm(c, dr, "NewDebugContext")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	prog, err := goja.Compile(d.handler.Path(), code.Text, false)
	if err != nil {
		return errors.Initialization("compile debug handler", err)
	}
	if _, err := dr.rt.RunProgram(prog); err != nil {
		return errors.Initialization("run debug handler", err)
	}
	c.log.Debug("debug handler loaded", zap.String("handler", d.handler.Path()))
	return nil
}

// DebugRealm returns the realm running the handler.
func (d *DebugContext) DebugRealm() *Realm {
	return d.debug
}

// Paused reports whether the main realm is parked in the pause loop.
func (d *DebugContext) Paused() bool {
	return d.paused
}

// Pauses returns how many times the pause loop was entered.
func (d *DebugContext) Pauses() int {
	return d.pauses
}

// ReceiveMessage hands a client message to the handler's receiveMessage.
// Called off the owning goroutine it is posted to the task queue.
func (d *DebugContext) ReceiveMessage(msg scriptbridge.DebugMessage) {
	if goid.Get() != d.owner {
		if err := d.Post(func() { d.receive(msg) }); err != nil {
			d.log.Debug("debug message dropped", zap.Error(err))
		}
		return
	}
	d.receive(msg)
}

func (d *DebugContext) receive(msg scriptbridge.DebugMessage) {
	d.callHook("receiveMessage",
		d.debug.rt.ToValue(string(msg.Payload)),
		d.debug.rt.ToValue(msg.ThreadID))
}

// OnDisconnected clears the pause state and runs the handler's
// onDisconnected if it defines one. Called off the owning goroutine it is
// posted to the task queue.
func (d *DebugContext) OnDisconnected() {
	if goid.Get() != d.owner {
		if err := d.Post(d.disconnected); err != nil {
			d.log.Debug("disconnect dropped", zap.Error(err))
		}
		return
	}
	d.disconnected()
}

func (d *DebugContext) disconnected() {
	d.paused = false
	d.callHook("onDisconnected")
}

// Break notifies the handler's onBreak hook, which may pause.
func (d *DebugContext) Break(reason string) error {
	scope := enterRealm(d.Context, d.debug, "Break")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	return d.hook("onBreak", d.debug.rt.ToValue(reason))
}

func (d *DebugContext) callHook(name string, args ...goja.Value) {
	scope := enterRealm(d.Context, d.debug, name)
	defer scope.Exit()
	if !scope.IsValid() {
		d.log.Debug("debug hook skipped", zap.String("hook", name), zap.Error(scope.Err()))
		return
	}
	_ = d.hook(name, args...)
}

func (d *DebugContext) hook(name string, args ...goja.Value) error {
	fn, ok := goja.AssertFunction(d.debug.rt.Get(name))
	if !ok {
		return nil
	}
	if _, err := fn(goja.Undefined(), args...); err != nil {
		return d.scriptError(err, d.handler.Path())
	}
	return nil
}

func (d *DebugContext) sendDebugMessage(call goja.FunctionCall) goja.Value {
	if !onOwner(d.Context, "sendDebugMessage") {
		return d.debug.rt.ToValue(false)
	}
	raw := call.Argument(0).String()
	ok := d.sender.SendMessage(d.sender.CreateMessage([]byte(raw)))
	return d.debug.rt.ToValue(ok)
}

func (d *DebugContext) pauseFromScript(call goja.FunctionCall) goja.Value {
	if !onOwner(d.Context, "pause") {
		return goja.Undefined()
	}
	if call.Argument(0).ToBoolean() {
		d.pause()
	} else {
		d.paused = false
	}
	return goja.Undefined()
}

// pause parks the goroutine until the handler resumes, the client
// disconnects or the Context closes. Queued tasks keep running so
// messages still reach the handler. A nested pause joins the running loop.
func (d *DebugContext) pause() {
	if d.paused {
		return
	}
	d.paused = true
	d.pauses++
	d.log.Debug("paused")

	for d.paused {
		select {
		case fn := <-d.tasks:
			fn()
		case <-d.done:
			d.paused = false
		}
	}
	d.log.Debug("resumed")
}

func (d *DebugContext) println(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	d.log.Info("debug handler", zap.String("text", strings.Join(parts, " ")))
	return goja.Undefined()
}

func (d *DebugContext) debugBreak(call goja.FunctionCall) goja.Value {
	if !onOwner(d.Context, "debugBreak") {
		return goja.Undefined()
	}
	if err := d.Break(call.Argument(0).String()); err != nil {
		panic(d.main.rt.NewGoError(err))
	}
	return goja.Undefined()
}
