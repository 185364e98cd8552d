package runtime

import (
	"context"
	stderrors "errors"

	wasmjsapi "github.com/wippyai/wasm-jsapi"
	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/errors"
)

// Instance is an instantiated module, like WebAssembly.Instance.
type Instance struct {
	module *Module
	inst   *engine.Instance
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module {
	return i.module
}

// Call invokes the exported function name with raw core values. Traps,
// including errors returned by host functions, are RuntimeErrors.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	results, err := i.inst.Call(ctx, name, args...)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Kind == errors.KindTrap {
			return nil, errors.Runtime("", e.Cause)
		}
		return nil, err
	}
	return results, nil
}

// ExportNames returns the names of all exported functions, sorted.
func (i *Instance) ExportNames() []string {
	return i.inst.ExportNames()
}

// Memory returns the exported memory called name, or nil.
func (i *Instance) Memory(name string) wasmjsapi.Memory {
	if mem := i.inst.Memory(name); mem != nil {
		return mem
	}
	return nil
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.inst.Close(ctx)
}
