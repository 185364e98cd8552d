package wasm_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/wippyai/wasm-jsapi/wasm"
)

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
	f32 = wasm.ValF32
)

type testFunc struct {
	params  []wasm.ValType
	results []wasm.ValType
	locals  []wasm.LocalEntry
	code    []byte
}

type moduleOpts struct {
	memory  bool
	globals []wasm.Global
	exports []wasm.Export
}

// compileFuncs encodes and re-parses a module so bodies carry real offsets.
func compileFuncs(t *testing.T, opts moduleOpts, funcs ...testFunc) *wasm.Module {
	t.Helper()
	src := &wasm.Module{Globals: opts.globals, Exports: opts.exports}
	for _, f := range funcs {
		idx := src.AddType(wasm.FuncType{Params: f.params, Results: f.results})
		src.Funcs = append(src.Funcs, idx)
		src.Code = append(src.Code, wasm.FuncBody{Locals: f.locals, Code: f.code})
	}
	if opts.memory {
		src.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	}
	m, err := wasm.ParseModule(src.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return m
}

func TestValidateFunctionBadFunctionInTheMiddle(t *testing.T) {
	m, err := wasm.ParseModule(middleModule().Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	for i := uint32(0); i < 21; i++ {
		err := m.ValidateFunction(i)
		if i != 10 {
			if err != nil {
				t.Errorf("function %d: unexpected error: %v", i, err)
			}
			continue
		}
		want := `Compiling wasm function "bad" failed: expected 1 elements on the stack for fallthru to @1, found 0 @+94`
		if err == nil || err.Error() != want {
			t.Fatalf("function 10:\n got  %v\n want %s", err, want)
		}
		var fe *wasm.FunctionError
		if !errors.As(err, &fe) {
			t.Fatalf("expected *wasm.FunctionError, got %T", err)
		}
		if fe.FuncIndex != 10 || fe.Offset != 94 || fe.Name != "bad" {
			t.Errorf("unexpected fields: %+v", fe)
		}
	}
	if err := m.ValidateFunctions(); err == nil || err.(*wasm.FunctionError).FuncIndex != 10 {
		t.Errorf("ValidateFunctions: got %v", err)
	}
}

func TestValidateFunctionUnnamed(t *testing.T) {
	m := compileFuncs(t, moduleOpts{}, testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpEnd}})
	err := m.ValidateFunction(0)
	want := `Compiling wasm function "wasm-function[0]" failed: expected 1 elements on the stack for fallthru to @1, found 0 @+`
	if err == nil || len(err.Error()) < len(want) || err.Error()[:len(want)] != want {
		t.Errorf("got %v", err)
	}
}

func TestValidateFunctionErrors(t *testing.T) {
	tests := []struct {
		name string
		opts moduleOpts
		fn   testFunc
		msg  string
		pos  int // offset of the failing byte within the code
	}{
		{
			name: "extra value at end",
			fn:   testFunc{code: []byte{wasm.OpI32Const, 1, wasm.OpEnd}},
			msg:  "expected 0 elements on the stack for fallthru to @1, found 1",
			pos:  2,
		},
		{
			name: "fallthru type",
			fn:   testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpI64Const, 0, wasm.OpEnd}},
			msg:  "type error in fallthru[0] (expected i32, got i64)",
			pos:  2,
		},
		{
			name: "operand type",
			fn: testFunc{results: []wasm.ValType{i32}, code: []byte{
				wasm.OpI32Const, 1, wasm.OpI64Const, 1, wasm.OpI32Add, wasm.OpEnd,
			}},
			msg: "i32.add[1] expected type i32, found i64.const of type i64",
			pos: 4,
		},
		{
			name: "not enough arguments",
			fn:   testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpI32Const, 1, wasm.OpI32Add, wasm.OpEnd}},
			msg:  "not enough arguments on the stack for i32.add (need 2, got 1)",
			pos:  2,
		},
		{
			name: "too many values after unreachable",
			fn:   testFunc{code: []byte{wasm.OpUnreachable, wasm.OpI32Const, 1, wasm.OpEnd}},
			msg:  "expected 0 elements on the stack for fallthru to @1, found 1",
			pos:  3,
		},
		{
			name: "block label is relative to body",
			fn: testFunc{code: []byte{
				wasm.OpNop, wasm.OpBlock, 0x7f, wasm.OpEnd, wasm.OpDrop, wasm.OpEnd,
			}},
			msg: "expected 1 elements on the stack for fallthru to @2, found 0",
			pos: 3,
		},
		{
			name: "label counts locals declaration",
			fn: testFunc{
				locals: []wasm.LocalEntry{{Count: 1, ValType: i64}},
				code:   []byte{wasm.OpLocalGet, 0, wasm.OpEnd},
			},
			msg: "expected 0 elements on the stack for fallthru to @3, found 1",
			pos: 2,
		},
		{
			name: "branch depth",
			fn:   testFunc{code: []byte{wasm.OpBr, 1, wasm.OpEnd}},
			msg:  "invalid branch depth: 1",
			pos:  0,
		},
		{
			name: "branch arity",
			fn:   testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpBr, 0, wasm.OpEnd}},
			msg:  "expected 1 elements on the stack for br to @1, found 0",
			pos:  0,
		},
		{
			name: "local index",
			fn:   testFunc{code: []byte{wasm.OpLocalGet, 0, wasm.OpDrop, wasm.OpEnd}},
			msg:  "invalid local index: 0",
			pos:  0,
		},
		{
			name: "global index",
			fn:   testFunc{code: []byte{wasm.OpGlobalGet, 3, wasm.OpDrop, wasm.OpEnd}},
			msg:  "invalid global index: 3",
			pos:  0,
		},
		{
			name: "immutable global",
			opts: moduleOpts{globals: []wasm.Global{{
				Type: wasm.GlobalType{ValType: i32},
				Init: []byte{wasm.OpI32Const, 0, wasm.OpEnd},
			}}},
			fn:  testFunc{code: []byte{wasm.OpI32Const, 1, wasm.OpGlobalSet, 0, wasm.OpEnd}},
			msg: "immutable global #0 cannot be assigned",
			pos: 2,
		},
		{
			name: "memory access without memory",
			fn:   testFunc{code: []byte{wasm.OpI32Const, 0, wasm.OpI32Load, 2, 0, wasm.OpDrop, wasm.OpEnd}},
			msg:  "memory instruction with no memory",
			pos:  2,
		},
		{
			name: "alignment",
			opts: moduleOpts{memory: true},
			fn:   testFunc{code: []byte{wasm.OpI32Const, 0, wasm.OpI32Load, 3, 0, wasm.OpDrop, wasm.OpEnd}},
			msg:  "invalid alignment; expected maximum alignment is 2, actual alignment is 3",
			pos:  2,
		},
		{
			name: "missing end",
			fn:   testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpI32Const, 1}},
			msg:  `function body must end with "end" opcode`,
			pos:  2,
		},
		{
			name: "trailing code",
			fn:   testFunc{code: []byte{wasm.OpEnd, wasm.OpNop}},
			msg:  "trailing code after function end",
			pos:  1,
		},
		{
			name: "invalid opcode",
			fn:   testFunc{code: []byte{0xff, wasm.OpEnd}},
			msg:  "invalid opcode 0xff",
			pos:  0,
		},
		{
			name: "else without if",
			fn:   testFunc{code: []byte{wasm.OpElse, wasm.OpEnd}},
			msg:  "else does not match an if",
			pos:  0,
		},
		{
			name: "one-armed if with result",
			fn: testFunc{results: []wasm.ValType{i32}, code: []byte{
				wasm.OpI32Const, 1, wasm.OpIf, 0x7f, wasm.OpI32Const, 2, wasm.OpEnd, wasm.OpEnd,
			}},
			msg: "start-arity and end-arity of one-armed if must match",
			pos: 6,
		},
		{
			name: "select operand mismatch",
			fn: testFunc{results: []wasm.ValType{i32}, code: []byte{
				wasm.OpI32Const, 1, wasm.OpI64Const, 2, wasm.OpI32Const, 0, wasm.OpSelect, wasm.OpEnd,
			}},
			msg: "select[1] expected type i32, found i64.const of type i64",
			pos: 6,
		},
		{
			name: "call index",
			fn:   testFunc{code: []byte{wasm.OpCall, 5, wasm.OpEnd}},
			msg:  "invalid function index: 5",
			pos:  0,
		},
		{
			name: "undeclared ref.func",
			fn:   testFunc{code: []byte{wasm.OpRefFunc, 0, wasm.OpDrop, wasm.OpEnd}},
			msg:  "undeclared reference to function #0",
			pos:  0,
		},
		{
			name: "unknown misc opcode",
			fn:   testFunc{code: []byte{wasm.OpPrefixMisc, 0x20, wasm.OpEnd}},
			msg:  "invalid numeric opcode: 0xfc20",
			pos:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := compileFuncs(t, tt.opts, tt.fn)
			err := m.ValidateFunction(0)
			var fe *wasm.FunctionError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *wasm.FunctionError, got %v", err)
			}
			if fe.Msg != tt.msg {
				t.Errorf("message:\n got  %q\n want %q", fe.Msg, tt.msg)
			}
			if want := m.Code[0].Offset + tt.pos; fe.Offset != want {
				t.Errorf("offset: got %d, want %d", fe.Offset, want)
			}
		})
	}
}

func TestValidateFunctionValid(t *testing.T) {
	tests := []struct {
		name string
		opts moduleOpts
		fn   testFunc
	}{
		{
			name: "constant",
			fn:   testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpI32Const, 42, wasm.OpEnd}},
		},
		{
			name: "identity",
			fn: testFunc{
				params:  []wasm.ValType{i32},
				results: []wasm.ValType{i32},
				code:    []byte{wasm.OpLocalGet, 0, wasm.OpEnd},
			},
		},
		{
			name: "unreachable is polymorphic",
			fn:   testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpUnreachable, wasm.OpI32Add, wasm.OpEnd}},
		},
		{
			name: "return then end",
			fn: testFunc{results: []wasm.ValType{i32}, code: []byte{
				wasm.OpI32Const, 7, wasm.OpReturn, wasm.OpEnd,
			}},
		},
		{
			name: "if else",
			fn: testFunc{results: []wasm.ValType{i32}, code: []byte{
				wasm.OpI32Const, 1, wasm.OpIf, 0x7f, wasm.OpI32Const, 2, wasm.OpElse, wasm.OpI32Const, 3, wasm.OpEnd, wasm.OpEnd,
			}},
		},
		{
			name: "loop with br_if",
			fn: testFunc{code: []byte{
				wasm.OpLoop, 0x40, wasm.OpI32Const, 0, wasm.OpBrIf, 0, wasm.OpEnd, wasm.OpEnd,
			}},
		},
		{
			name: "br_table",
			fn: testFunc{code: []byte{
				wasm.OpBlock, 0x40, wasm.OpI32Const, 0, wasm.OpBrTable, 1, 0, 0, wasm.OpEnd, wasm.OpEnd,
			}},
		},
		{
			name: "locals and arithmetic",
			fn: testFunc{
				results: []wasm.ValType{i64},
				locals:  []wasm.LocalEntry{{Count: 2, ValType: i64}},
				code: []byte{
					wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI64Mul,
					wasm.OpLocalTee, 0, wasm.OpI64Extend32S, wasm.OpEnd,
				},
			},
		},
		{
			name: "memory load store grow",
			opts: moduleOpts{memory: true},
			fn: testFunc{results: []wasm.ValType{i32}, code: []byte{
				wasm.OpI32Const, 0, wasm.OpI32Const, 5, wasm.OpI32Store, 2, 0,
				wasm.OpI32Const, 0, wasm.OpI32Load8U, 0, 0,
				wasm.OpMemoryGrow, 0, wasm.OpEnd,
			}},
		},
		{
			name: "saturating truncation",
			fn: testFunc{
				params:  []wasm.ValType{f32},
				results: []wasm.ValType{i32},
				code:    []byte{wasm.OpLocalGet, 0, wasm.OpPrefixMisc, 0x00, wasm.OpEnd},
			},
		},
		{
			name: "memory fill",
			opts: moduleOpts{memory: true},
			fn: testFunc{code: []byte{
				wasm.OpI32Const, 0, wasm.OpI32Const, 0, wasm.OpI32Const, 4,
				wasm.OpPrefixMisc, 0x0b, 0x00, wasm.OpEnd,
			}},
		},
		{
			name: "ref null is_null",
			fn: testFunc{results: []wasm.ValType{i32}, code: []byte{
				wasm.OpRefNull, byte(wasm.ValExtern), wasm.OpRefIsNull, wasm.OpEnd,
			}},
		},
		{
			name: "ref.func of exported function",
			opts: moduleOpts{exports: []wasm.Export{{Name: "f", Kind: wasm.KindFunc, Idx: 0}}},
			fn:   testFunc{code: []byte{wasm.OpRefFunc, 0, wasm.OpDrop, wasm.OpEnd}},
		},
		{
			name: "ref.func declared by global initializer",
			opts: moduleOpts{globals: []wasm.Global{{
				Type: wasm.GlobalType{ValType: wasm.ValFuncRef},
				Init: []byte{wasm.OpRefFunc, 0, wasm.OpEnd},
			}}},
			fn: testFunc{code: []byte{wasm.OpRefFunc, 0, wasm.OpDrop, wasm.OpEnd}},
		},
		{
			name: "mutable global",
			opts: moduleOpts{globals: []wasm.Global{{
				Type: wasm.GlobalType{ValType: i32, Mutable: true},
				Init: []byte{wasm.OpI32Const, 0, wasm.OpEnd},
			}}},
			fn: testFunc{code: []byte{
				wasm.OpGlobalGet, 0, wasm.OpI32Const, 1, wasm.OpI32Add, wasm.OpGlobalSet, 0, wasm.OpEnd,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := compileFuncs(t, tt.opts, tt.fn)
			if err := m.ValidateFunction(0); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateFunctionCall(t *testing.T) {
	m := compileFuncs(t, moduleOpts{},
		testFunc{params: []wasm.ValType{i32}, results: []wasm.ValType{i32}, code: []byte{wasm.OpLocalGet, 0, wasm.OpEnd}},
		testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpI32Const, 3, wasm.OpCall, 0, wasm.OpEnd}},
		testFunc{results: []wasm.ValType{i32}, code: []byte{wasm.OpI64Const, 3, wasm.OpCall, 0, wasm.OpEnd}},
	)
	if err := m.ValidateFunction(1); err != nil {
		t.Errorf("function 1: %v", err)
	}
	err := m.ValidateFunction(2)
	var fe *wasm.FunctionError
	if !errors.As(err, &fe) || fe.Msg != "call[0] expected type i32, found i64.const of type i64" {
		t.Errorf("function 2: got %v", err)
	}
}

func TestValidateFunctionImported(t *testing.T) {
	m := &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Imports: []wasm.Import{{Module: "m", Name: "f", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}},
	}
	if err := m.ValidateFunction(0); err == nil {
		t.Error("expected error for imported function")
	}
	if err := m.ValidateFunction(1); err == nil {
		t.Error("expected error for missing function")
	}
}

func TestValidateFunctionConcurrent(t *testing.T) {
	m, err := wasm.ParseModule(middleModule().Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	var wg sync.WaitGroup
	errs := make([]error, len(m.Code))
	for i := range m.Code {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.ValidateFunction(uint32(i))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if (err != nil) != (i == 10) {
			t.Errorf("function %d: unexpected result %v", i, err)
		}
	}
}

func TestDeclaredFuncRefs(t *testing.T) {
	m := &wasm.Module{
		Exports: []wasm.Export{{Name: "f", Kind: wasm.KindFunc, Idx: 1}, {Name: "mem", Kind: wasm.KindMemory, Idx: 4}},
		Elements: []wasm.Element{
			{Flags: 3, FuncIdxs: []uint32{2}},
			{Flags: 7, Type: wasm.ValFuncRef, Exprs: [][]byte{{wasm.OpRefFunc, 3, wasm.OpEnd}, {wasm.OpRefNull, byte(wasm.ValFuncRef), wasm.OpEnd}}},
		},
		Globals: []wasm.Global{{Type: wasm.GlobalType{ValType: wasm.ValFuncRef}, Init: []byte{wasm.OpRefFunc, 5, wasm.OpEnd}}},
	}
	got := m.DeclaredFuncRefs()
	for _, idx := range []uint32{1, 2, 3, 5} {
		if !got[idx] {
			t.Errorf("function %d should be declared", idx)
		}
	}
	if got[0] || got[4] {
		t.Errorf("unexpected declarations: %v", got)
	}
}
