package main

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-jsapi/builder"
	"github.com/wippyai/wasm-jsapi/runtime"
	"github.com/wippyai/wasm-jsapi/wasm"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		in      string
		typ     wasm.ValType
		want    uint64
		wantErr bool
	}{
		{"42", wasm.ValI32, 42, false},
		{"-1", wasm.ValI32, 0xffffffff, false},
		{"4294967295", wasm.ValI32, 0xffffffff, false},
		{"0x10", wasm.ValI32, 16, false},
		{"-2", wasm.ValI64, api.EncodeI64(-2), false},
		{"1.5", wasm.ValF32, api.EncodeF32(1.5), false},
		{"-0.25", wasm.ValF64, api.EncodeF64(-0.25), false},
		{"x", wasm.ValI32, 0, true},
		{"1", wasm.ValFuncRef, 0, true},
	}
	for _, tt := range tests {
		got, err := parseArg(tt.in, tt.typ)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseArg(%q, %s): err %v", tt.in, tt.typ, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseArg(%q, %s) = %#x, want %#x", tt.in, tt.typ, got, tt.want)
		}
	}
}

func TestFormatResults(t *testing.T) {
	types := []wasm.ValType{wasm.ValI32, wasm.ValF64}
	got := formatResults([]uint64{api.EncodeI32(-7), api.EncodeF64(2.5)}, types)
	if got != "-7, 2.5" {
		t.Errorf("got %q", got)
	}
	if got := formatResults(nil, nil); got != "(no results)" {
		t.Errorf("got %q", got)
	}
}

func TestStubImports(t *testing.T) {
	b := builder.New()
	sig := b.AddType(builder.SigII)
	q := b.AddImport("m", "q", sig)
	b.AddFunction("call_q", sig).
		AddBody(builder.Concat(builder.LocalGet(0), builder.Call(q))...).
		ExportFunc()

	ctx := context.Background()
	rt, err := runtime.New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	mod, err := rt.NewModule(b.ToBuffer())
	if err != nil {
		t.Fatal(err)
	}
	funcs := exportedFuncs(mod)
	if len(funcs) != 1 || funcs[0].name != "call_q" {
		t.Fatalf("exported funcs: %+v", funcs)
	}

	inst, err := rt.NewInstance(ctx, mod, stubImports(mod))
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, "call_q", 5)
	if err != nil {
		t.Fatal(err)
	}
	if res[0] != 0 {
		t.Errorf("stub should return zero, got %d", res[0])
	}
}
