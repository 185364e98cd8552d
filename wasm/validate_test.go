package wasm_test

import (
	"testing"

	"github.com/wippyai/wasm-jsapi/wasm"
)

func TestValidateModule(t *testing.T) {
	voidSig := []wasm.FuncType{{}}
	endBody := []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}}

	tests := []struct {
		name    string
		module  *wasm.Module
		wantErr string
	}{
		{
			name:   "empty module",
			module: &wasm.Module{},
		},
		{
			name: "type index out of bounds",
			module: &wasm.Module{
				Types: voidSig,
				Funcs: []uint32{3},
				Code:  endBody,
			},
			wantErr: "signature index 3 out of bounds (1 signatures) for function 0",
		},
		{
			name: "duplicate export",
			module: &wasm.Module{
				Types:   voidSig,
				Funcs:   []uint32{0},
				Code:    endBody,
				Exports: []wasm.Export{{Name: "f", Kind: wasm.KindFunc}, {Name: "f", Kind: wasm.KindFunc}},
			},
			wantErr: "Duplicate export name 'f' for function 0 and function 0",
		},
		{
			name: "export index",
			module: &wasm.Module{
				Exports: []wasm.Export{{Name: "f", Kind: wasm.KindFunc, Idx: 2}},
			},
			wantErr: `export "f": function index 2 out of bounds (0 entries)`,
		},
		{
			name: "start signature",
			module: &wasm.Module{
				Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
				Funcs: []uint32{0},
				Code:  []wasm.FuncBody{{Code: []byte{wasm.OpI32Const, 0, wasm.OpEnd}}},
				Start: ptrTo(uint32(0)),
			},
			wantErr: "invalid start function: non-zero parameter or return count",
		},
		{
			name: "memory too large",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 70000}}},
			},
			wantErr: "memory 0: initial memory size (70000 pages) is larger than implementation limit (65536 pages)",
		},
		{
			name: "memory max below min",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 4, Max: ptrTo(uint64(2))}}},
			},
			wantErr: "memory 0: maximum memory size (2 pages) is smaller than initial (4 pages)",
		},
		{
			name: "two memories",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{{}, {}},
			},
			wantErr: "At most one memory is supported (declared 2)",
		},
		{
			name: "global initializer type",
			module: &wasm.Module{
				Globals: []wasm.Global{{
					Type: wasm.GlobalType{ValType: wasm.ValI64},
					Init: []byte{wasm.OpI32Const, 0, wasm.OpEnd},
				}},
			},
			wantErr: "global 0 initializer: type error in constant expression[0] (expected i64, got i32)",
		},
		{
			name: "data without memory",
			module: &wasm.Module{
				Data: []wasm.DataSegment{{Offset: []byte{wasm.OpI32Const, 0, wasm.OpEnd}}},
			},
			wantErr: "data segment 0: memory index 0 out of bounds (0 entries)",
		},
		{
			name: "data count mismatch",
			module: &wasm.Module{
				DataCount: ptrTo(uint32(1)),
			},
			wantErr: "data segments count 0 mismatch (1 expected)",
		},
		{
			name: "code count mismatch",
			module: &wasm.Module{
				Types: voidSig,
				Funcs: []uint32{0, 0},
				Code:  endBody,
			},
			wantErr: "function body count 1 mismatch (2 expected)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.module.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("got  %q\nwant %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseModuleValidate(t *testing.T) {
	if _, err := wasm.ParseModuleValidate(middleModule().Encode()); err == nil {
		t.Fatal("expected function validation error")
	}

	m := middleModule()
	m.Code[10].Code = []byte{wasm.OpI32Const, 1, wasm.OpEnd}
	if _, err := wasm.ParseModuleValidate(m.Encode()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &wasm.Module{}
	a := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	b := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}})
	c := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	if a != 0 || b != 1 || c != 0 {
		t.Errorf("indices: got %d %d %d, want 0 1 0", a, b, c)
	}
	if len(m.Types) != 2 {
		t.Errorf("expected 2 types, got %d", len(m.Types))
	}
}
