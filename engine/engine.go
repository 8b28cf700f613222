package engine

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every Context.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithInterceptor sets the initial error interceptor.
func WithInterceptor(fn bridge.Interceptor) Option {
	return func(e *Engine) { e.interceptor = fn }
}

// WithReporter sets the default Reporter for contexts created without one.
func WithReporter(r bridge.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithIncludes sets the include resolver. It overrides Config.ScriptRoot.
func WithIncludes(r scriptbridge.IncludeResolver) Option {
	return func(e *Engine) { e.includes = r }
}

// WithStub sets the stand-in used for script objects when the policy
// hides them.
func WithStub(s bridge.Stub) Option {
	return func(e *Engine) { e.stub = s }
}

// ContextOption adjusts the options of a single Context.
type ContextOption func(*bridge.Options)

// ContextID names the Context in logs.
func ContextID(id string) ContextOption {
	return func(o *bridge.Options) { o.ID = id }
}

// ContextReporter overrides the engine Reporter for one Context.
func ContextReporter(r bridge.Reporter) ContextOption {
	return func(o *bridge.Options) { o.Reporter = r }
}

// Engine is the process-wide factory for contexts. It applies the tuning
// in Config to each Context and routes uncaught script errors through the
// installed interceptor. Engine methods are safe for concurrent use; the
// contexts it creates are not.
type Engine struct {
	cfg      *Config
	log      *zap.Logger
	reporter bridge.Reporter
	includes scriptbridge.IncludeResolver
	stub     bridge.Stub
	policy   bridge.Policy

	mu          sync.Mutex
	interceptor bridge.Interceptor
	handlers    map[string]scriptbridge.Script
	workers     map[*Worker]struct{}
	live        int
	created     int
	closed      bool
}

// New creates an Engine. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	precedence, _ := cfg.Policy.precedence()

	e := &Engine{
		cfg:      cfg,
		handlers: make(map[string]scriptbridge.Script),
		workers:  make(map[*Worker]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = Logger()
	}
	if e.includes == nil && cfg.ScriptRoot != "" {
		e.includes = scriptbridge.DirResolver{Root: cfg.ScriptRoot}
	}
	e.policy = bridge.Policy{
		Stub:              e.stub,
		HideScriptObjects: cfg.Policy.HideScriptObjects,
		Precedence:        precedence,
	}
	e.log.Debug("engine created",
		zap.Int("max_contexts", cfg.MaxContexts),
		zap.Int("gc_threshold", cfg.GCThreshold),
		zap.Int("compile_warmup", cfg.CompileWarmup))
	return e, nil
}

// Config returns the engine configuration. It must not be modified.
func (e *Engine) Config() *Config {
	return e.cfg
}

// MaxContexts returns the live context cap, 0 for unlimited.
func (e *Engine) MaxContexts() int {
	return e.cfg.MaxContexts
}

// Live returns the number of contexts created and not yet closed.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// SetErrorInterceptor replaces the interceptor consulted by every Context,
// including ones already created. nil restores plain forwarding.
func (e *Engine) SetErrorInterceptor(fn bridge.Interceptor) {
	e.mu.Lock()
	e.interceptor = fn
	e.mu.Unlock()
}

func (e *Engine) intercept(r bridge.Report, next bridge.Reporter) {
	e.mu.Lock()
	fn := e.interceptor
	e.mu.Unlock()
	if fn == nil {
		next.Report(r)
		return
	}
	fn(r, next)
}

// RegisterDebugHandler registers the handler script for a debug protocol.
func (e *Engine) RegisterDebugHandler(protocol string, handler scriptbridge.Script) error {
	if protocol == "" || handler == nil {
		return errors.InvalidInput(errors.PhaseDebug, "debug handler needs a protocol and a script")
	}
	e.mu.Lock()
	e.handlers[protocol] = handler
	e.mu.Unlock()
	return nil
}

// reserve claims a live context slot.
func (e *Engine) reserve() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", errors.Initialization("engine closed", nil)
	}
	if limit := e.cfg.MaxContexts; limit > 0 && e.live >= limit {
		return "", errors.Initialization("context limit of "+strconv.Itoa(limit)+" reached", nil)
	}
	e.live++
	e.created++
	return "engine-ctx-" + strconv.Itoa(e.created), nil
}

// slot returns a release func for one reserved slot. It is safe to call
// more than once.
func (e *Engine) slot() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.live--
			e.mu.Unlock()
		})
	}
}

func (e *Engine) contextOptions(id string, release func(), opts []ContextOption) bridge.Options {
	o := bridge.Options{
		Logger:        e.log,
		Reporter:      e.reporter,
		Interceptor:   e.intercept,
		Includes:      e.includes,
		Policy:        e.policy,
		ID:            id,
		GCThreshold:   e.cfg.GCThreshold,
		CompileWarmup: e.cfg.CompileWarmup,
		TaskQueueSize: e.cfg.TaskQueueSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.OnClose = func(*bridge.Context) { release() }
	return o
}

// CreateContext creates a Context owned by the calling goroutine.
func (e *Engine) CreateContext(opts ...ContextOption) (*bridge.Context, error) {
	id, err := e.reserve()
	if err != nil {
		return nil, err
	}
	release := e.slot()
	c, err := e.newContext(e.contextOptions(id, release, opts))
	if err != nil {
		release()
		return nil, err
	}
	return c, nil
}

// newContext converts a panic while installing intrinsics into an error.
func (e *Engine) newContext(o bridge.Options) (c *bridge.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, errors.Initialization("create context", errors.New(errors.PhaseInit, errors.KindInitialization).Value(r).Build())
		}
	}()
	return bridge.NewContext(o)
}

// CreateDebugContext creates a DebugContext owned by the calling goroutine,
// loading the handler registered for Config.DebugProtocol.
func (e *Engine) CreateDebugContext(sender scriptbridge.DebugMessageSender, opts ...ContextOption) (*bridge.DebugContext, error) {
	protocol := e.cfg.DebugProtocol
	if protocol == "" {
		return nil, errors.Initialization("no debug protocol configured", nil)
	}
	e.mu.Lock()
	handler, ok := e.handlers[protocol]
	e.mu.Unlock()
	if !ok {
		return nil, errors.Initialization("no debug handler for protocol "+protocol, nil)
	}

	id, err := e.reserve()
	if err != nil {
		return nil, err
	}
	release := e.slot()
	d, err := bridge.NewDebugContext(e.contextOptions(id, release, opts), handler, sender)
	if err != nil {
		release()
		return nil, err
	}
	return d, nil
}

// Run executes each script in its own Context, in parallel. setup, when
// set, runs on the Context first. Results are in script order. The first
// failure interrupts the remaining scripts.
func (e *Engine) Run(ctx context.Context, scripts []scriptbridge.Script, setup func(*bridge.Context) error) ([]variant.Variant, error) {
	results := make([]variant.Variant, len(scripts))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scripts {
		g.Go(func() error {
			c, err := e.CreateContext()
			if err != nil {
				return err
			}
			defer c.Close()
			stop := context.AfterFunc(gctx, func() { c.Interrupt(context.Cause(gctx)) })
			defer stop()

			if setup != nil {
				if err := setup(c); err != nil {
					return err
				}
			}
			v, err := c.ExecuteScript(s)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close stops every worker and refuses new contexts. Contexts created
// with CreateContext must be closed by their owners.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	workers := make([]*Worker, 0, len(e.workers))
	for w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	var err error
	for _, w := range workers {
		err = multierr.Append(err, w.Stop())
	}
	e.log.Debug("engine closed", zap.Int("workers", len(workers)))
	return err
}
