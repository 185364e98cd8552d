package runtime

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/errors"
	"github.com/wippyai/wasm-jsapi/wasm"
)

// Func is a host function over raw core values. Arguments and results use
// the wazero encoding: i32 in the low 32 bits, floats as IEEE bits.
// A returned error traps the calling instance.
type Func func(ctx context.Context, args []uint64) ([]uint64, error)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// adaptFunc converts an import value to a Func of type ft. callable is
// false when v is not a function at all.
//
// Besides Func, typed Go functions are accepted: an optional leading
// context.Context, parameters and results of int32/uint32 (i32),
// int64/uint64 (i64), float32 (f32) or float64 (f64), and an optional
// trailing error.
func adaptFunc(v any, ft wasm.FuncType) (fn Func, callable bool, err error) {
	switch f := v.(type) {
	case nil:
		return nil, false, nil
	case Func:
		return f, f != nil, nil
	case func(context.Context, []uint64) ([]uint64, error):
		return Func(f), f != nil, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, false, nil
	}
	fn, err = reflectFunc(rv, ft)
	return fn, true, err
}

func reflectFunc(rv reflect.Value, ft wasm.FuncType) (Func, error) {
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
			Detail("variadic host functions are not supported").
			Build()
	}

	off := 0
	if rt.NumIn() > 0 && rt.In(0) == contextType {
		off = 1
	}
	if rt.NumIn()-off != len(ft.Params) {
		return nil, signatureMismatch(rt, ft)
	}
	for i, p := range ft.Params {
		if !kindMatches(rt.In(off+i).Kind(), p) {
			return nil, signatureMismatch(rt, ft)
		}
	}

	nout := rt.NumOut()
	withErr := nout > 0 && rt.Out(nout-1) == errorType
	if withErr {
		nout--
	}
	if nout != len(ft.Results) {
		return nil, signatureMismatch(rt, ft)
	}
	for i, r := range ft.Results {
		if !kindMatches(rt.Out(i).Kind(), r) {
			return nil, signatureMismatch(rt, ft)
		}
	}

	return func(ctx context.Context, args []uint64) ([]uint64, error) {
		in := make([]reflect.Value, 0, rt.NumIn())
		if off == 1 {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for i := range ft.Params {
			in = append(in, decodeValue(args[i], rt.In(off+i)))
		}

		out := rv.Call(in)
		if withErr {
			if e := out[len(out)-1]; !e.IsNil() {
				return nil, e.Interface().(error)
			}
			out = out[:len(out)-1]
		}

		results := make([]uint64, len(out))
		for i, o := range out {
			results[i] = encodeValue(o)
		}
		return results, nil
	}, nil
}

func signatureMismatch(rt reflect.Type, ft wasm.FuncType) error {
	return errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
		Value(rt.String()).
		Detail("%s does not match %s", rt, ft).
		Build()
}

func kindMatches(k reflect.Kind, t wasm.ValType) bool {
	switch t {
	case wasm.ValI32:
		return k == reflect.Int32 || k == reflect.Uint32
	case wasm.ValI64:
		return k == reflect.Int64 || k == reflect.Uint64
	case wasm.ValF32:
		return k == reflect.Float32
	case wasm.ValF64:
		return k == reflect.Float64
	}
	return false
}

func decodeValue(raw uint64, t reflect.Type) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(api.DecodeI32(raw)))
	case reflect.Uint32:
		v.SetUint(uint64(api.DecodeU32(raw)))
	case reflect.Int64:
		v.SetInt(int64(raw))
	case reflect.Uint64:
		v.SetUint(raw)
	case reflect.Float32:
		v.SetFloat(float64(api.DecodeF32(raw)))
	case reflect.Float64:
		v.SetFloat(api.DecodeF64(raw))
	}
	return v
}

func encodeValue(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return api.EncodeI32(int32(v.Int()))
	case reflect.Uint32:
		return api.EncodeU32(uint32(v.Uint()))
	case reflect.Int64:
		return api.EncodeI64(v.Int())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return uint64(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		return math.Float64bits(v.Float())
	}
	return 0
}

// hostFunc wraps fn as a wazero host function for the import module.name.
// Errors and wrong result counts panic, which wazero reports as a trap of
// the calling export.
func hostFunc(fn Func, module, name string, ft wasm.FuncType) engine.HostFunc {
	nparams, nresults := len(ft.Params), len(ft.Results)
	return engine.HostFunc{
		Module:  module,
		Name:    name,
		Params:  engine.ValueTypes(ft.Params),
		Results: engine.ValueTypes(ft.Results),
		Fn: api.GoFunc(func(ctx context.Context, stack []uint64) {
			args := make([]uint64, nparams)
			copy(args, stack)
			results, err := fn(ctx, args)
			if err != nil {
				panic(err)
			}
			if len(results) != nresults {
				panic(fmt.Errorf("host function %s.%s returned %d values, want %d", module, name, len(results), nresults))
			}
			copy(stack, results)
		}),
	}
}
