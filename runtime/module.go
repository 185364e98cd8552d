package runtime

import (
	"bytes"
	"context"

	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/wasm"
)

// Module is a compiled module, like WebAssembly.Module. It is immutable
// and may be instantiated any number of times.
type Module struct {
	compiled *engine.Compiled
}

// ImportDescriptor describes one import, as WebAssembly.Module.imports().
type ImportDescriptor struct {
	Module string
	Name   string
	Kind   string
}

// ExportDescriptor describes one export, as WebAssembly.Module.exports().
type ExportDescriptor struct {
	Name string
	Kind string
}

// Imports lists the module's imports in declaration order.
func (m *Module) Imports() []ImportDescriptor {
	imports := m.compiled.Module.Imports
	out := make([]ImportDescriptor, len(imports))
	for i, imp := range imports {
		out[i] = ImportDescriptor{Module: imp.Module, Name: imp.Name, Kind: wasm.KindName(imp.Desc.Kind)}
	}
	return out
}

// Exports lists the module's exports in declaration order.
func (m *Module) Exports() []ExportDescriptor {
	exports := m.compiled.Module.Exports
	out := make([]ExportDescriptor, len(exports))
	for i, exp := range exports {
		out[i] = ExportDescriptor{Name: exp.Name, Kind: wasm.KindName(exp.Kind)}
	}
	return out
}

// CustomSections returns copies of the payloads of every custom section
// called name, in module order.
func (m *Module) CustomSections(name string) [][]byte {
	sections := m.compiled.Module.CustomSectionsNamed(name)
	out := make([][]byte, len(sections))
	for i, s := range sections {
		out[i] = bytes.Clone(s)
	}
	return out
}

// FunctionType returns the signature of the exported function name.
func (m *Module) FunctionType(name string) (wasm.FuncType, bool) {
	mod := m.compiled.Module
	for _, exp := range mod.Exports {
		if exp.Kind != wasm.KindFunc || exp.Name != name {
			continue
		}
		if ft := mod.GetFuncType(exp.Idx); ft != nil {
			return *ft, true
		}
	}
	return wasm.FuncType{}, false
}

// Decoded returns the decoded module. Callers must not modify it.
func (m *Module) Decoded() *wasm.Module {
	return m.compiled.Module
}

// Close releases the module's compiled code. Instances already created
// stay usable.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
