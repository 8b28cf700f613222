package bridge

import (
	"context"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/petermattis/goid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/binding"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// State is the lifecycle stage of a Context.
type State uint8

const (
	StateCreated State = iota
	StateInitialized
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// ObjectKind selects what CreateObject builds.
type ObjectKind uint8

const (
	ObjectPlain ObjectKind = iota
	ObjectArray
	ObjectTypedArray
)

const defaultTaskQueueSize = 64

var nextContextID atomic.Int64

// Options configures a Context.
type Options struct {
	Logger      *zap.Logger
	Reporter    Reporter
	Interceptor Interceptor
	Includes    scriptbridge.IncludeResolver
	OnClose     func(*Context)
	Policy      Policy
	ID          string

	// GCThreshold is the number of new bindings after which a non-forced
	// collection pass runs. Zero disables automatic passes.
	GCThreshold int
	// CompileWarmup is how many times a source is compiled before its
	// program is cached. Negative disables the cache.
	CompileWarmup int
	TaskQueueSize int
}

// Context is the per-goroutine execution unit: one main realm and the
// native objects registered into it. Every method except Post and
// Interrupt must be called on the goroutine that created the Context.
type Context struct {
	opts    Options
	log     *zap.Logger
	main    *Realm
	current *Realm
	realms  []*Realm

	globals   map[string]scriptbridge.Object
	functions map[string]scriptbridge.Invokable
	programs  map[string]*compileEntry
	frames    []scriptbridge.Script

	tasks chan func()
	done  chan struct{}

	pendingUnbinds  []binding.Handle
	pendingReleases []scriptbridge.Object

	owner        int64
	sinceCollect int
	collections  int
	state        State
	collecting   bool
}

var _ binding.Observer = (*Context)(nil)

// NewContext creates a Context owned by the calling goroutine.
func NewContext(opts Options) (*Context, error) {
	if opts.ID == "" {
		opts.ID = "ctx-" + strconv.FormatInt(nextContextID.Add(1), 10)
	}
	if opts.TaskQueueSize <= 0 {
		opts.TaskQueueSize = defaultTaskQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	c := &Context{
		opts:      opts,
		log:       log.Named("context").With(zap.String("context_id", opts.ID)),
		globals:   make(map[string]scriptbridge.Object),
		functions: make(map[string]scriptbridge.Invokable),
		programs:  make(map[string]*compileEntry),
		tasks:     make(chan func(), opts.TaskQueueSize),
		done:      make(chan struct{}),
		owner:     goid.Get(),
		state:     StateCreated,
	}

	main, err := newRealm(c, "main")
	if err != nil {
		return nil, err
	}
	c.main = main
	c.realms = append(c.realms, main)

	if err := main.rt.Set("include", c.include); err != nil {
		return nil, errors.Initialization("install include", err)
	}

	c.state = StateInitialized
	c.log.Debug("context created", zap.Int64("goroutine", c.owner))
	return c, nil
}

func (c *Context) enter(op string) *RealmScope {
	return enterRealm(c, c.main, op)
}

// activate marks the first script execution.
func (c *Context) activate() {
	if c.state == StateInitialized {
		c.state = StateActive
	}
}

// ID returns the context identifier used in logs.
func (c *Context) ID() string {
	return c.opts.ID
}

// State returns the lifecycle stage.
func (c *Context) State() State {
	return c.state
}

// Realm returns the main realm.
func (c *Context) Realm() *Realm {
	return c.main
}

// CurrentRealm returns the realm entered by the innermost RealmScope, or
// nil outside any bridge operation.
func (c *Context) CurrentRealm() *Realm {
	return c.current
}

// Logger returns the context's logger.
func (c *Context) Logger() *zap.Logger {
	return c.log
}

// OnBindingEvent implements binding.Observer.
func (c *Context) OnBindingEvent(e binding.Event) {
	if ce := c.log.Check(zap.DebugLevel, "binding event"); ce != nil {
		ce.Write(
			zap.String("type", e.Type.String()),
			zap.String("kind", e.Kind.String()),
			zap.Uint64("handle", uint64(e.Handle)))
	}
}

// SubscribeBindings registers an observer for binding events of the main
// realm.
func (c *Context) SubscribeBindings(o binding.Observer) error {
	scope := c.enter("SubscribeBindings")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	c.main.table.Subscribe(o)
	return nil
}

// RegisterObject exposes obj as the global name. Registering the same
// object under the same name again is a no-op.
func (c *Context) RegisterObject(name string, obj scriptbridge.Object) error {
	scope := c.enter("RegisterObject")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	if name == "" || obj == nil {
		return errors.InvalidInput(errors.PhaseRegister, "global object needs a name and a value")
	}
	if prev, ok := c.globals[name]; ok && prev == obj {
		return nil
	}

	proxy, err := c.main.resolveObject(obj)
	if err != nil {
		return err
	}
	if err := c.main.rt.Set(name, proxy); err != nil {
		return errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "set global "+name)
	}

	obj.AddRef()
	if prev, ok := c.globals[name]; ok {
		c.releaseNative(prev)
	}
	c.globals[name] = obj
	return nil
}

// RegisterGlobalFunction installs a global function name that forwards to
// obj.Invoke(name, args).
func (c *Context) RegisterGlobalFunction(name string, obj scriptbridge.Invokable) error {
	scope := c.enter("RegisterGlobalFunction")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	if name == "" || obj == nil {
		return errors.InvalidInput(errors.PhaseRegister, "global function needs a name and a target")
	}
	if prev, ok := c.functions[name]; ok && prev == obj {
		return nil
	}

	r := c.main
	fn := func(call goja.FunctionCall) goja.Value {
		if !onOwner(c, "global function "+name) {
			return goja.Undefined()
		}
		args, err := r.unmarshalArgs(call.Arguments)
		if err != nil {
			panic(r.rt.NewGoError(err))
		}
		res, err := obj.Invoke(name, args)
		if err != nil {
			panic(r.rt.NewGoError(err))
		}
		v, err := r.marshal(res)
		if err != nil {
			panic(r.rt.NewGoError(err))
		}
		return v
	}
	if err := r.rt.Set(name, fn); err != nil {
		return errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "set global "+name)
	}

	if o, ok := obj.(scriptbridge.Object); ok {
		o.AddRef()
	}
	if prev, ok := c.functions[name].(scriptbridge.Object); ok {
		c.releaseNative(prev)
	}
	c.functions[name] = obj
	return nil
}

// ResolveClass returns the class for ti in the main realm.
func (c *Context) ResolveClass(ti *scriptbridge.TypeInfo) (*ScriptClass, error) {
	scope := c.enter("ResolveClass")
	defer scope.Exit()
	if !scope.IsValid() {
		return nil, scope.Err()
	}
	return c.main.resolveClass(ti)
}

// ResolveObject returns the canonical proxy of obj in the main realm.
func (c *Context) ResolveObject(obj scriptbridge.Object) (*goja.Object, error) {
	scope := c.enter("ResolveObject")
	defer scope.Exit()
	if !scope.IsValid() {
		return nil, scope.Err()
	}
	return c.main.resolveObject(obj)
}

// CreateObject builds a fresh script object. Plain objects take
// alternating key/value arguments, arrays their elements, and typed arrays
// a single length or a single string whose bytes are copied in.
func (c *Context) CreateObject(kind ObjectKind, args ...variant.Variant) (*goja.Object, error) {
	scope := c.enter("CreateObject")
	defer scope.Exit()
	if !scope.IsValid() {
		return nil, scope.Err()
	}

	r := c.main
	switch kind {
	case ObjectPlain:
		if len(args)%2 != 0 {
			return nil, errors.InvalidInput(errors.PhaseMarshal, "plain object needs key/value pairs")
		}
		obj := r.rt.NewObject()
		for i := 0; i < len(args); i += 2 {
			key, ok := args[i].Str()
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseMarshal, []string{"arg" + strconv.Itoa(i)}, args[i].Kind().String(), "string")
			}
			// record keys repeat across objects; share one copy
			name, err := variant.InternString(key)
			if err != nil {
				return nil, err
			}
			val, err := r.marshal(args[i+1])
			if err != nil {
				return nil, err
			}
			if err := obj.Set(name.String(), val); err != nil {
				return nil, errors.Wrap(errors.PhaseMarshal, errors.KindMarshal, err, "set "+name.String())
			}
		}
		return obj, nil

	case ObjectArray:
		items := make([]any, len(args))
		for i, a := range args {
			v, err := r.marshal(a)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return r.rt.NewArray(items...), nil

	case ObjectTypedArray:
		if len(args) != 1 {
			return nil, errors.InvalidInput(errors.PhaseMarshal, "typed array needs one length or string argument")
		}
		ctor := r.rt.Get("Uint8Array")
		var init goja.Value
		switch args[0].Kind() {
		case variant.KindInt, variant.KindFloat:
			n, ok := args[0].Int()
			if !ok || n < 0 {
				return nil, errors.InvalidInput(errors.PhaseMarshal, "typed array length must be a non-negative integer")
			}
			init = r.rt.ToValue(n)
		case variant.KindString:
			s, _ := args[0].Str()
			data, err := s.Bytes(variant.UTF8)
			if err != nil {
				return nil, err
			}
			init = r.rt.ToValue(r.rt.NewArrayBuffer(slices.Clone(data)))
		default:
			return nil, errors.TypeMismatch(errors.PhaseMarshal, []string{"arg0"}, args[0].Kind().String(), "number or string")
		}
		obj, err := r.rt.New(ctor, init)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseMarshal, errors.KindMarshal, err, "construct Uint8Array")
		}
		return obj, nil
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "object kind "+strconv.Itoa(int(kind)))
}

// RemoveReference unbinds obj from the main realm before the script side
// is collected. During a collection pass the unbind is queued and applied
// once when the pass finishes; it reports false when obj has no binding or
// is already queued.
func (c *Context) RemoveReference(obj scriptbridge.Object) bool {
	scope := c.enter("RemoveReference")
	defer scope.Exit()
	if !scope.IsValid() || obj == nil {
		return false
	}

	h, ok := c.handleOf(obj)
	if !ok {
		return false
	}
	if c.collecting {
		if slices.Contains(c.pendingUnbinds, h) {
			return false
		}
		c.pendingUnbinds = append(c.pendingUnbinds, h)
		return true
	}
	return c.main.unbind(h)
}

func (c *Context) handleOf(obj scriptbridge.Object) (binding.Handle, bool) {
	if so, ok := obj.(*ScriptObject); ok {
		if so.realm != c.main || !c.main.table.Valid(so.handle) {
			return 0, false
		}
		return so.handle, true
	}
	h, ok := c.main.byNative[obj]
	return h, ok
}

// AttachModule makes a module's types resolvable.
func (c *Context) AttachModule(m *scriptbridge.Module) error {
	scope := c.enter("AttachModule")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	return c.main.registry.RegisterModule(m)
}

// DetachModule removes a module and its classes. Live proxies keep working
// through their class; new objects of the module's types fail to resolve.
func (c *Context) DetachModule(m *scriptbridge.Module) error {
	scope := c.enter("DetachModule")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	removed, err := c.main.registry.UnregisterModule(m)
	if err != nil {
		return err
	}
	c.log.Debug("module detached", zap.String("module", m.Name), zap.Int("classes", len(removed)))
	return nil
}

// Snapshot is a point-in-time view of a Context's internal state.
type Snapshot struct {
	State             State
	Globals           []string
	Bindings          int
	Proxies           int
	ScriptObjects     int
	Classes           int
	PrototypeMethods  int
	Modules           int
	Accessors         int
	CachedPrograms    int
	Frames            int
	Collections       int
	PendingReleases   int
	PendingFinalizers int
}

// Snapshot reports the context's counters.
func (c *Context) Snapshot() (Snapshot, error) {
	scope := c.enter("Snapshot")
	defer scope.Exit()
	if !scope.IsValid() {
		return Snapshot{}, scope.Err()
	}

	r := c.main
	s := Snapshot{
		State:             c.state,
		Bindings:          r.table.Len(),
		Proxies:           r.table.Count(binding.KindProxy),
		ScriptObjects:     r.table.Count(binding.KindScriptObject),
		Classes:           r.registry.Len(),
		Modules:           r.registry.Modules(),
		Accessors:         len(r.accessors),
		Frames:            len(c.frames),
		Collections:       c.collections,
		PendingReleases:   len(c.pendingReleases),
		PendingFinalizers: r.queue.pending(),
	}
	r.registry.each(func(sc *ScriptClass) {
		s.PrototypeMethods += sc.MethodCount()
	})
	for _, e := range c.programs {
		if e.prog != nil {
			s.CachedPrograms++
		}
	}
	for name := range c.globals {
		s.Globals = append(s.Globals, name)
	}
	for name := range c.functions {
		s.Globals = append(s.Globals, name)
	}
	slices.Sort(s.Globals)
	return s, nil
}

// Post queues fn to run on the owning goroutine. It is safe to call from
// any goroutine and blocks while the queue is full.
func (c *Context) Post(fn func()) error {
	if fn == nil {
		return errors.InvalidInput(errors.PhaseExecute, "nil task")
	}
	select {
	case <-c.done:
		return errors.Closed(errors.PhaseExecute, "context")
	default:
	}
	select {
	case c.tasks <- fn:
		return nil
	case <-c.done:
		return errors.Closed(errors.PhaseExecute, "context")
	}
}

// Pump runs queued tasks without blocking and returns how many ran.
func (c *Context) Pump() (int, error) {
	scope := c.enter("Pump")
	defer scope.Exit()
	if !scope.IsValid() {
		return 0, scope.Err()
	}
	n := 0
	for {
		select {
		case fn := <-c.tasks:
			fn()
			n++
		default:
			return n, nil
		}
	}
}

// Serve runs queued tasks until ctx is done or the Context is closed.
func (c *Context) Serve(ctx context.Context) error {
	scope := c.enter("Serve")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case fn := <-c.tasks:
			fn()
			if c.state == StateDestroyed {
				return nil
			}
		}
	}
}

// Interrupt aborts the running script with reason. Safe from any
// goroutine.
func (c *Context) Interrupt(reason any) {
	c.main.rt.Interrupt(reason)
}

// Done is closed when the Context is destroyed.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// Close destroys the Context and its realms, releasing every native
// reference the bridge holds. Closing twice is a no-op.
func (c *Context) Close() error {
	if c.state == StateDestroyed {
		return nil
	}
	if caller := goid.Get(); caller != c.owner {
		return errors.WrongThread("Close", c.owner, caller)
	}

	var err error
	for name, obj := range c.globals {
		obj.Release()
		delete(c.globals, name)
	}
	for name, fn := range c.functions {
		if o, ok := fn.(scriptbridge.Object); ok {
			o.Release()
		}
		delete(c.functions, name)
	}
	for _, r := range c.realms {
		err = multierr.Append(err, r.close())
	}
	for _, obj := range c.pendingReleases {
		obj.Release()
	}
	c.pendingReleases = nil
	c.pendingUnbinds = nil
	clear(c.programs)

	c.state = StateDestroyed
	close(c.done)
	c.log.Debug("context closed", zap.Int("collections", c.collections))

	if c.opts.OnClose != nil {
		c.opts.OnClose(c)
	}
	return err
}
