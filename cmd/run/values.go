package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/runtime"
	"github.com/wippyai/wasm-jsapi/wasm"
)

type funcInfo struct {
	name string
	typ  wasm.FuncType
}

// exportedFuncs lists the function exports of mod with their types.
func exportedFuncs(mod *runtime.Module) []funcInfo {
	var funcs []funcInfo
	for _, exp := range mod.Exports() {
		if exp.Kind != "function" {
			continue
		}
		ft, _ := mod.FunctionType(exp.Name)
		funcs = append(funcs, funcInfo{name: exp.Name, typ: ft})
	}
	return funcs
}

// parseArg encodes s as a core value of type t.
func parseArg(s string, t wasm.ValType) (uint64, error) {
	s = strings.TrimSpace(s)
	switch t {
	case wasm.ValI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			// Allow unsigned spellings above MaxInt32.
			u, uerr := strconv.ParseUint(s, 0, 32)
			if uerr != nil {
				return 0, err
			}
			return api.EncodeU32(uint32(u)), nil
		}
		return api.EncodeI32(int32(v)), nil
	case wasm.ValI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeI64(v), nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(v)), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("unsupported argument type %s", t)
	}
}

// parseArgs encodes raw against the parameter list of ft.
func parseArgs(raw []string, ft wasm.FuncType) ([]uint64, error) {
	if len(raw) != len(ft.Params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(ft.Params), len(raw))
	}
	args := make([]uint64, len(raw))
	for i, s := range raw {
		v, err := parseArg(s, ft.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func formatValue(v uint64, t wasm.ValType) string {
	switch t {
	case wasm.ValI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case wasm.ValI64:
		return strconv.FormatInt(int64(v), 10)
	case wasm.ValF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case wasm.ValF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	default:
		return fmt.Sprintf("%#x", v)
	}
}

func formatResults(vals []uint64, types []wasm.ValType) string {
	if len(vals) == 0 {
		return "(no results)"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		t := wasm.ValI64
		if i < len(types) {
			t = types[i]
		}
		parts[i] = formatValue(v, t)
	}
	return strings.Join(parts, ", ")
}

// stubImports satisfies every function import of mod with a host function
// that logs the call and returns zero values.
func stubImports(mod *runtime.Module) runtime.Imports {
	m := mod.Decoded()
	imports := runtime.Imports{}
	for _, imp := range m.Imports {
		if imports[imp.Module] == nil {
			imports[imp.Module] = map[string]any{}
		}
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		module, name := imp.Module, imp.Name
		nresults := len(m.Types[imp.Desc.TypeIdx].Results)
		imports[module][name] = runtime.Func(func(_ context.Context, args []uint64) ([]uint64, error) {
			engine.Logger().Info("stub import called",
				zap.String("module", module),
				zap.String("name", name),
				zap.Uint64s("args", args))
			return make([]uint64, nresults), nil
		})
	}
	return imports
}
