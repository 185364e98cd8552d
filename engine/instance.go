package engine

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-jsapi/errors"
	"github.com/wippyai/wasm-jsapi/wasm"
)

// HostFunc is a resolved function import, defined in a host module named
// Module before the guest is instantiated.
type HostFunc struct {
	Fn      api.GoFunction
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// ValueTypes converts core value types to their wazero equivalents. Both
// use the binary encoding, so the conversion is a cast.
func ValueTypes(types []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		out[i] = api.ValueType(t)
	}
	return out
}

// Instance is a running module with its own wazero runtime.
type Instance struct {
	runtime wazero.Runtime
	module  api.Module
}

// Instantiate links hosts and instantiates c in a fresh runtime. Host module
// failures are returned as linking errors, guest failures (start function
// traps, out of bounds segments) as instantiation errors.
func (e *Engine) Instantiate(ctx context.Context, c *Compiled, hosts []HostFunc) (inst *Instance, err error) {
	if e.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseInstantiate, "engine")
	}
	defer func() { e.metrics.instantiateDone(err) }()

	rt := e.NewRuntime(ctx)
	closeRuntime := func() {
		if cerr := rt.Close(ctx); cerr != nil {
			e.log.Warn("close instance runtime failed", zap.Error(cerr))
		}
	}

	if err := defineHostModules(ctx, rt, hosts); err != nil {
		closeRuntime()
		return nil, err
	}

	compiled, err := rt.CompileModule(ctx, c.backend)
	if err != nil {
		closeRuntime()
		return nil, &BackendError{Err: err}
	}

	// Anonymous so one runtime could hold several instances; WithStartFunctions
	// with no names keeps wazero from calling a WASI _start export.
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		closeRuntime()
		return nil, errors.Instantiation(err)
	}

	e.log.Debug("module instantiated",
		zap.Int("imports", len(hosts)),
		zap.Int("exports", len(mod.ExportedFunctionDefinitions())))

	return &Instance{runtime: rt, module: mod}, nil
}

func defineHostModules(ctx context.Context, rt wazero.Runtime, hosts []HostFunc) error {
	var order []string
	byModule := make(map[string][]HostFunc)
	for _, h := range hosts {
		if _, ok := byModule[h.Module]; !ok {
			order = append(order, h.Module)
		}
		byModule[h.Module] = append(byModule[h.Module], h)
	}

	for _, name := range order {
		b := rt.NewHostModuleBuilder(name)
		for _, h := range byModule[name] {
			b.NewFunctionBuilder().
				WithGoFunction(h.Fn, h.Params, h.Results).
				WithName(h.Name).
				Export(h.Name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return errors.New(errors.PhaseLinking, errors.KindInstantiation).
				Path(name).
				Cause(err).
				Detail("define host module").
				Build()
		}
	}
	return nil
}

// Call invokes an exported function with raw core values.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if i.module == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "instance")
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	if want := len(fn.Definition().ParamTypes()); want != len(args) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(name).
			Detail("expected %d arguments, got %d", want, len(args)).
			Build()
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindTrap, err, "call "+name)
	}
	return results, nil
}

// ExportNames returns the names of all exported functions, sorted.
func (i *Instance) ExportNames() []string {
	if i.module == nil {
		return nil
	}
	defs := i.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Memory returns the exported memory with the given name, or nil. An
// empty name selects the instance's memory regardless of export name.
func (i *Instance) Memory(name string) *Memory {
	if i.module == nil {
		return nil
	}
	var mem api.Memory
	if name == "" {
		mem = i.module.Memory()
	} else {
		mem = i.module.ExportedMemory(name)
	}
	if mem == nil {
		return nil
	}
	return &Memory{mem: mem}
}

// Close closes the module and its runtime.
func (i *Instance) Close(ctx context.Context) error {
	if i.runtime == nil {
		return nil
	}
	err := i.runtime.Close(ctx)
	i.runtime = nil
	i.module = nil
	return err
}
