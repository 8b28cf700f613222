package bridge

import (
	"math"
	"math/big"
	"strconv"

	"github.com/dop251/goja"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// Stub stands in for a script object when the policy hides script objects
// from native code.
type Stub func(obj *goja.Object) scriptbridge.Object

// Policy controls how values cross the boundary.
type Policy struct {
	// Stub replaces script objects when HideScriptObjects is set. Without
	// a stub hidden objects fail to marshal.
	Stub Stub
	// HideScriptObjects stops script objects from reaching native code
	// directly.
	HideScriptObjects bool
	Precedence        Precedence
}

// marshal converts a Variant to a script value.
//
// Integers in int32 range become numbers, wider ones BigInt. Strings that
// came from the script side are passed back without transcoding.
func (r *Realm) marshal(v variant.Variant) (goja.Value, error) {
	switch v.Kind() {
	case variant.KindNull:
		return goja.Null(), nil
	case variant.KindBool:
		return r.rt.ToValue(v.Bool()), nil
	case variant.KindInt:
		i, _ := v.Int()
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return r.rt.ToValue(i), nil
		}
		return r.rt.ToValue(new(big.Int).SetInt64(i)), nil
	case variant.KindFloat:
		f, _ := v.Float()
		return r.rt.ToValue(f), nil
	case variant.KindString:
		s, _ := v.Str()
		if src, ok := s.Source().(goja.Value); ok {
			return src, nil
		}
		return r.rt.ToValue(s.Text()), nil
	case variant.KindObject:
		o, _ := v.Object()
		switch x := o.(type) {
		case *ScriptObject:
			if x.realm != r {
				return nil, errors.MarshalFailure(errors.PhaseMarshal, nil, x.kind.String(), "foreign script object")
			}
			return x.obj, nil
		case scriptbridge.Object:
			return r.resolveObject(x)
		}
		return nil, errors.MarshalFailure(errors.PhaseMarshal, nil, o, "object")
	}
	return nil, errors.MarshalFailure(errors.PhaseMarshal, nil, v.Kind().String(), "")
}

// unmarshal converts a script value to a Variant. Integral numbers come back
// as Int, so Float(2) does not survive a round trip by kind.
//
// Objects resolve in order: a bridge proxy unwraps to its native object,
// an already wrapped script object reuses its wrapper, anything else gets
// a new wrapper (or the policy stub).
func (r *Realm) unmarshal(v goja.Value) (variant.Variant, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return variant.Null(), nil
	}

	switch x := v.(type) {
	case *goja.Symbol:
		return variant.Null(), errors.MarshalFailure(errors.PhaseUnmarshal, nil, x.String(), "symbol")
	case *goja.Object:
		return r.unmarshalObject(x)
	}

	switch e := v.Export().(type) {
	case bool:
		return variant.Bool(e), nil
	case int64:
		return variant.Int(e), nil
	case float64:
		return variant.Float(e), nil
	case string:
		return variant.FromString(variant.Lazy(v, variant.UTF16LE)), nil
	case *big.Int:
		if !e.IsInt64() {
			return variant.Null(), errors.Overflow(errors.PhaseUnmarshal, nil, e.String(), "int64")
		}
		return variant.Int(e.Int64()), nil
	}
	return variant.Null(), errors.MarshalFailure(errors.PhaseUnmarshal, nil, v.String(), v.ExportType().String())
}

func (r *Realm) unmarshalObject(obj *goja.Object) (variant.Variant, error) {
	if b := r.bindingForProxy(obj); b != nil {
		return variant.Ref(b.native), nil
	}

	policy := r.ctx.opts.Policy
	if policy.HideScriptObjects {
		if policy.Stub == nil {
			return variant.Null(), errors.MarshalFailure(errors.PhaseUnmarshal, nil, obj.ClassName(), "object")
		}
		return variant.Ref(policy.Stub(obj)), nil
	}
	return variant.Ref(r.wrapScriptObject(obj)), nil
}

func (r *Realm) unmarshalArgs(args []goja.Value) ([]variant.Variant, error) {
	out := make([]variant.Variant, len(args))
	for i, a := range args {
		v, err := r.unmarshal(a)
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Path = append([]string{"arg" + strconv.Itoa(i)}, e.Path...)
			}
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Marshal converts a Variant to a value of the context's main realm.
func (c *Context) Marshal(v variant.Variant) (goja.Value, error) {
	scope := c.enter("Marshal")
	defer scope.Exit()
	if !scope.IsValid() {
		return nil, scope.Err()
	}
	return c.main.marshal(v)
}

// Unmarshal converts a value of the context's main realm to a Variant.
func (c *Context) Unmarshal(v goja.Value) (variant.Variant, error) {
	scope := c.enter("Unmarshal")
	defer scope.Exit()
	if !scope.IsValid() {
		return variant.Null(), scope.Err()
	}
	return c.main.unmarshal(v)
}
