package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// workResult holds the return value of a Do call.
type workResult struct {
	value variant.Variant
	err   error
}

// Worker owns a Context on a dedicated goroutine and serializes all access
// to it. Do may be called from any goroutine.
type Worker struct {
	engine *Engine
	ctx    *bridge.Context
	debug  *bridge.DebugContext
	cancel context.CancelFunc
	exited chan struct{}
	err    error
}

// Spawn starts a Worker. setup, when set, runs on the new Context before
// Spawn returns; its error aborts the worker.
func (e *Engine) Spawn(setup func(*bridge.Context) error) (*Worker, error) {
	return e.spawn(func() (*bridge.Context, *bridge.DebugContext, error) {
		c, err := e.CreateContext()
		return c, nil, err
	}, setup)
}

// SpawnDebug starts a Worker around a DebugContext. Debug messages may be
// delivered to DebugContext from any goroutine while the worker runs.
func (e *Engine) SpawnDebug(sender scriptbridge.DebugMessageSender, setup func(*bridge.Context) error) (*Worker, error) {
	return e.spawn(func() (*bridge.Context, *bridge.DebugContext, error) {
		d, err := e.CreateDebugContext(sender)
		if err != nil {
			return nil, nil, err
		}
		return d.Context, d, nil
	}, setup)
}

func (e *Engine) spawn(create func() (*bridge.Context, *bridge.DebugContext, error), setup func(*bridge.Context) error) (*Worker, error) {
	sctx, cancel := context.WithCancel(context.Background())
	w := &Worker{engine: e, cancel: cancel, exited: make(chan struct{})}
	ready := make(chan error, 1)

	go w.loop(sctx, create, setup, ready)

	if err := <-ready; err != nil {
		cancel()
		<-w.exited
		return nil, err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = w.Stop()
		return nil, errors.Initialization("engine closed", nil)
	}
	e.workers[w] = struct{}{}
	e.mu.Unlock()
	return w, nil
}

// loop creates the Context and serves its task queue until stopped.
func (w *Worker) loop(ctx context.Context, create func() (*bridge.Context, *bridge.DebugContext, error), setup func(*bridge.Context) error, ready chan<- error) {
	defer close(w.exited)

	c, d, err := create()
	if err != nil {
		ready <- err
		return
	}
	w.ctx, w.debug = c, d
	if setup != nil {
		if err := w.execute(func(c *bridge.Context) (variant.Variant, error) {
			return variant.Null(), setup(c)
		}).err; err != nil {
			_ = c.Close()
			ready <- err
			return
		}
	}
	ready <- nil

	if err := c.Serve(ctx); err != nil && ctx.Err() == nil {
		w.engine.log.Warn("worker serve failed", zap.String("context_id", c.ID()), zap.Error(err))
	}
	w.err = c.Close()
}

// execute runs fn on the Context, recovering from panics.
func (w *Worker) execute(fn func(*bridge.Context) (variant.Variant, error)) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = errors.Wrap(errors.PhaseExecute, errors.KindExecution, fmt.Errorf("%v", r), "worker task panicked")
		}
	}()
	result.value, result.err = fn(w.ctx)
	return result
}

// Do runs fn on the worker goroutine and blocks until it completes. It
// must not be called from inside another Do.
func (w *Worker) Do(fn func(*bridge.Context) (variant.Variant, error)) (variant.Variant, error) {
	done := make(chan workResult, 1)
	if err := w.ctx.Post(func() { done <- w.execute(fn) }); err != nil {
		return variant.Null(), err
	}
	select {
	case r := <-done:
		return r.value, r.err
	case <-w.exited:
		return variant.Null(), errors.Closed(errors.PhaseExecute, "worker")
	}
}

// Execute runs a script on the worker.
func (w *Worker) Execute(s scriptbridge.Script) (variant.Variant, error) {
	return w.Do(func(c *bridge.Context) (variant.Variant, error) {
		return c.ExecuteScript(s)
	})
}

// Interrupt aborts the script the worker is running, if any.
func (w *Worker) Interrupt(reason any) {
	w.ctx.Interrupt(reason)
}

// Context returns the worker's Context. Only Post, Interrupt and Done may
// be used on it from other goroutines.
func (w *Worker) Context() *bridge.Context {
	return w.ctx
}

// Debug returns the DebugContext of a worker started with SpawnDebug.
func (w *Worker) Debug() *bridge.DebugContext {
	return w.debug
}

// Stop closes the Context and waits for the worker goroutine to exit.
// A running task is allowed to finish; a paused debug worker is
// disconnected first. It returns the Context's close error.
func (w *Worker) Stop() error {
	if w.debug != nil {
		w.debug.OnDisconnected()
	}
	w.cancel()
	<-w.exited
	w.engine.mu.Lock()
	delete(w.engine.workers, w)
	w.engine.mu.Unlock()
	return w.err
}
