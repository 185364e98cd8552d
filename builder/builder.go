// Package builder assembles WebAssembly modules programmatically.
//
// Functions are added with a name and a type index; bodies are raw
// instruction bytes and the closing end opcode is appended automatically:
//
//	b := builder.New()
//	sig := b.AddType(builder.SigIV)
//	b.AddFunction("f", sig).AddBody(builder.I32Const(42)...).ExportFunc()
//	data := b.ToBuffer()
//
// Imports must be added before functions so function indices stay stable.
// Named functions are recorded in the name custom section, written after
// the code section.
package builder

import (
	"github.com/wippyai/wasm-jsapi/wasm"
)

// Common signatures.
var (
	SigVV  = wasm.FuncType{}
	SigIV  = wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	SigII  = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	SigIII = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
)

// Builder accumulates module contents. It is not safe for concurrent use.
type Builder struct {
	types     []wasm.FuncType
	imports   []wasm.Import
	funcs     []*Function
	memories  []wasm.MemoryType
	globals   []wasm.Global
	exports   []wasm.Export
	data      []wasm.DataSegment
	start     *uint32
	name      string
	numImport uint32
}

// Function is a function under construction.
type Function struct {
	b       *Builder
	name    string
	locals  []wasm.LocalEntry
	body    []byte
	Index   uint32
	TypeIdx uint32
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// SetName sets the module name recorded in the name section.
func (b *Builder) SetName(name string) *Builder {
	b.name = name
	return b
}

// AddType adds a function type and returns its index. Identical types
// share one index.
func (b *Builder) AddType(ft wasm.FuncType) uint32 {
	for i, t := range b.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// AddImport adds a function import and returns its function index. It
// panics if local functions were already added.
func (b *Builder) AddImport(module, name string, typeIdx uint32) uint32 {
	if len(b.funcs) > 0 {
		panic("builder: imports must be added before functions")
	}
	b.imports = append(b.imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx},
	})
	b.numImport++
	return b.numImport - 1
}

// AddImportedMemory adds a memory import.
func (b *Builder) AddImportedMemory(module, name string, min uint32) {
	b.imports = append(b.imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc: wasm.ImportDesc{
			Kind:   wasm.KindMemory,
			Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: uint64(min)}},
		},
	})
}

// AddImportedGlobal adds an immutable global import.
func (b *Builder) AddImportedGlobal(module, name string, t wasm.ValType) {
	b.imports = append(b.imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: t}},
	})
}

// AddFunction adds a function with an empty body. An empty name leaves the
// function out of the name section.
func (b *Builder) AddFunction(name string, typeIdx uint32) *Function {
	f := &Function{
		b:       b,
		name:    name,
		Index:   b.numImport + uint32(len(b.funcs)),
		TypeIdx: typeIdx,
	}
	b.funcs = append(b.funcs, f)
	return f
}

// AddBody sets the function's instructions, without the final end.
func (f *Function) AddBody(code ...byte) *Function {
	f.body = append([]byte(nil), code...)
	return f
}

// AddLocals declares count locals of type t.
func (f *Function) AddLocals(t wasm.ValType, count uint32) *Function {
	f.locals = append(f.locals, wasm.LocalEntry{Count: count, ValType: t})
	return f
}

// ExportAs exports the function under name.
func (f *Function) ExportAs(name string) *Function {
	f.b.AddExport(name, wasm.KindFunc, f.Index)
	return f
}

// ExportFunc exports the function under its own name.
func (f *Function) ExportFunc() *Function {
	return f.ExportAs(f.name)
}

// AddMemory adds a memory of min pages. A max of 0 leaves the memory
// unbounded. An exported memory is exported as "memory".
func (b *Builder) AddMemory(min, max uint32, exported bool) uint32 {
	mt := wasm.MemoryType{Limits: wasm.Limits{Min: uint64(min)}}
	if max > 0 {
		m := uint64(max)
		mt.Limits.Max = &m
	}
	b.memories = append(b.memories, mt)
	idx := uint32(len(b.memories) - 1)
	if exported {
		b.AddExport("memory", wasm.KindMemory, idx)
	}
	return idx
}

// AddGlobal adds a global initialised by the constant expression init,
// without the final end, and returns its index.
func (b *Builder) AddGlobal(t wasm.ValType, mutable bool, init ...byte) uint32 {
	b.globals = append(b.globals, wasm.Global{
		Type: wasm.GlobalType{ValType: t, Mutable: mutable},
		Init: withEnd(init),
	})
	return uint32(len(b.globals) - 1)
}

// AddExport exports the item of the given kind and index.
func (b *Builder) AddExport(name string, kind byte, idx uint32) {
	b.exports = append(b.exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
}

// AddDataSegment adds an active segment writing data at offset in memory 0.
func (b *Builder) AddDataSegment(offset int32, data []byte) {
	b.data = append(b.data, wasm.DataSegment{
		Offset: withEnd(I32Const(offset)),
		Init:   append([]byte(nil), data...),
	})
}

// AddStart sets the start function.
func (b *Builder) AddStart(funcIdx uint32) {
	b.start = &funcIdx
}

// ToModule returns the module structure. Each call returns a fresh value.
func (b *Builder) ToModule() *wasm.Module {
	m := &wasm.Module{
		Types:    append([]wasm.FuncType(nil), b.types...),
		Imports:  append([]wasm.Import(nil), b.imports...),
		Memories: append([]wasm.MemoryType(nil), b.memories...),
		Globals:  append([]wasm.Global(nil), b.globals...),
		Exports:  append([]wasm.Export(nil), b.exports...),
		Data:     append([]wasm.DataSegment(nil), b.data...),
	}
	if b.start != nil {
		s := *b.start
		m.Start = &s
	}

	names := &wasm.Names{Module: b.name, Functions: map[uint32]string{}}
	for _, f := range b.funcs {
		m.Funcs = append(m.Funcs, f.TypeIdx)
		m.Code = append(m.Code, wasm.FuncBody{
			Locals: append([]wasm.LocalEntry(nil), f.locals...),
			Code:   withEnd(f.body),
		})
		if f.name != "" {
			names.Functions[f.Index] = f.name
		}
	}
	if names.Module != "" || len(names.Functions) > 0 {
		m.Names = names
	}
	return m
}

// ToBuffer encodes the module.
func (b *Builder) ToBuffer() []byte {
	return b.ToModule().Encode()
}

func withEnd(code []byte) []byte {
	out := make([]byte, len(code), len(code)+1)
	copy(out, code)
	return append(out, wasm.OpEnd)
}
