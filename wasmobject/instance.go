package wasmobject

import (
	"context"
	"math"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/native"
	"github.com/wippyai/script-bridge/variant"
)

// Instance is a native object backed by an instantiated WebAssembly
// module. Exported functions are its methods; the globals named at
// instantiation are its properties.
type Instance struct {
	native.RefCount
	ctx     context.Context
	rt      wazero.Runtime
	mod     api.Module
	info    *scriptbridge.TypeInfo
	globals map[string]api.Global
}

var (
	_ scriptbridge.Object     = (*Instance)(nil)
	_ scriptbridge.Invokable  = (*Instance)(nil)
	_ scriptbridge.Gettable   = (*Instance)(nil)
	_ scriptbridge.Settable   = (*Instance)(nil)
	_ scriptbridge.Enumerable = (*Instance)(nil)
)

// Config controls instantiation.
type Config struct {
	// Name is both the wazero module name and the script type name.
	Name string
	// Globals lists exported globals to expose as properties.
	Globals []string
	// Module is the owning bridge module, if any.
	Module *scriptbridge.Module
}

// Instantiate compiles and instantiates wasm in a fresh wazero runtime.
// ctx is kept for later calls into the module.
func Instantiate(ctx context.Context, wasm []byte, cfg Config) (*Instance, error) {
	if cfg.Name == "" {
		cfg.Name = "wasm"
	}
	rt := wazero.NewRuntime(ctx)
	inst, err := instantiate(ctx, rt, wasm, cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	Logger().Debug("wasm module instantiated",
		zap.String("module", cfg.Name),
		zap.Strings("methods", inst.info.Methods),
		zap.Strings("globals", inst.info.Properties))
	return inst, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, wasm []byte, cfg Config) (*Instance, error) {
	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindCompilation, err, "compile wasm module")
	}
	if imports := compiled.ImportedFunctions(); len(imports) > 0 {
		mod, name, _ := imports[0].Import()
		return nil, errors.Unsupported(errors.PhaseInit, "wasm import "+mod+"."+name)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(cfg.Name))
	if err != nil {
		return nil, errors.Initialization("instantiate wasm module", err)
	}

	info := &scriptbridge.TypeInfo{Name: cfg.Name, Module: cfg.Module}
	for name := range compiled.ExportedFunctions() {
		info.Methods = append(info.Methods, name)
	}
	slices.Sort(info.Methods)

	globals := make(map[string]api.Global, len(cfg.Globals))
	for _, name := range cfg.Globals {
		g := mod.ExportedGlobal(name)
		if g == nil {
			return nil, errors.NotFound(errors.PhaseInit, "exported global", name)
		}
		globals[name] = g
		info.Properties = append(info.Properties, name)
	}

	return &Instance{ctx: ctx, rt: rt, mod: mod, info: info, globals: globals}, nil
}

func (i *Instance) Type() *scriptbridge.TypeInfo {
	return i.info
}

// Invoke calls the exported function name. Functions with more than one
// result are not supported.
func (i *Instance) Invoke(name string, args []variant.Variant) (variant.Variant, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return variant.Null(), errors.NotFound(errors.PhaseExecute, "wasm export", name)
	}
	def := fn.Definition()
	params := def.ParamTypes()
	if len(args) != len(params) {
		return variant.Null(), errors.New(errors.PhaseExecute, errors.KindInvalidInput).
			Path(name).
			Detail("want %d arguments, got %d", len(params), len(args)).
			Build()
	}
	stack := make([]uint64, len(params))
	for n, t := range params {
		v, err := encode(args[n], t, name)
		if err != nil {
			return variant.Null(), err
		}
		stack[n] = v
	}

	results, err := fn.Call(i.ctx, stack...)
	if err != nil {
		return variant.Null(), errors.Wrap(errors.PhaseExecute, errors.KindExecution, err, "call "+name)
	}
	types := def.ResultTypes()
	switch len(types) {
	case 0:
		return variant.Null(), nil
	case 1:
		return decode(results[0], types[0]), nil
	}
	return variant.Null(), errors.Unsupported(errors.PhaseExecute, "multiple results from "+name)
}

func (i *Instance) GetProperty(name string) (variant.Variant, bool) {
	g, ok := i.globals[name]
	if !ok {
		return variant.Null(), false
	}
	return decode(g.Get(), g.Type()), true
}

// SetProperty writes a mutable global.
func (i *Instance) SetProperty(name string, value variant.Variant) bool {
	g, ok := i.globals[name].(api.MutableGlobal)
	if !ok {
		return false
	}
	v, err := encode(value, g.Type(), name)
	if err != nil {
		return false
	}
	g.Set(v)
	return true
}

func (i *Instance) EnumerateProperties(yield func(string) bool) {
	for _, name := range i.info.Properties {
		if !yield(name) {
			return
		}
	}
}

// Memory returns the module's exported memory, or nil.
func (i *Instance) Memory() api.Memory {
	return i.mod.Memory()
}

// Close closes the module and its runtime.
func (i *Instance) Close() error {
	return i.rt.Close(i.ctx)
}

// encode converts a Variant to a wasm stack value of type t.
func encode(v variant.Variant, t api.ValueType, name string) (uint64, error) {
	mismatch := func() error {
		return errors.TypeMismatch(errors.PhaseMarshal, []string{name}, api.ValueTypeName(t), v.Kind().String())
	}
	switch t {
	case api.ValueTypeI32:
		n, ok := v.Int()
		if !ok {
			return 0, mismatch()
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return 0, errors.Overflow(errors.PhaseMarshal, []string{name}, n, "i32")
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		n, ok := v.Int()
		if !ok {
			return 0, mismatch()
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32, api.ValueTypeF64:
		f, ok := v.Float()
		if !ok {
			n, isInt := v.Int()
			if !isInt {
				return 0, mismatch()
			}
			f = float64(n)
		}
		if t == api.ValueTypeF32 {
			return api.EncodeF32(float32(f)), nil
		}
		return api.EncodeF64(f), nil
	}
	return 0, errors.Unsupported(errors.PhaseMarshal, "wasm value type "+api.ValueTypeName(t))
}

func decode(v uint64, t api.ValueType) variant.Variant {
	switch t {
	case api.ValueTypeI32:
		return variant.Int(int64(api.DecodeI32(v)))
	case api.ValueTypeI64:
		return variant.Int(int64(v))
	case api.ValueTypeF32:
		return variant.Float(float64(api.DecodeF32(v)))
	case api.ValueTypeF64:
		return variant.Float(api.DecodeF64(v))
	}
	return variant.Null()
}
