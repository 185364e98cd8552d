package wasm_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wippyai/wasm-jsapi/wasm"
)

func ptrTo[T any](v T) *T { return &v }

var roundTripOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.IgnoreFields(wasm.FuncBody{}, "BodyOffset", "LocalsSize", "Offset"),
	cmpopts.IgnoreFields(wasm.Module{}, "CustomSections"),
}

func TestEncodeRoundTrip(t *testing.T) {
	src := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Results: []wasm.ValType{wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "m", Name: "q", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "mem", Desc: wasm.ImportDesc{
				Kind:   wasm.KindMemory,
				Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1, Max: ptrTo(uint64(2))}},
			}},
		},
		Funcs:  []uint32{1, 0},
		Tables: []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 2}}},
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: wasm.ValI64, Mutable: true},
			Init: []byte{wasm.OpI64Const, 0x7f, wasm.OpEnd},
		}},
		Exports: []wasm.Export{
			{Name: "f", Kind: wasm.KindFunc, Idx: 1},
			{Name: "g", Kind: wasm.KindGlobal, Idx: 0},
		},
		Start: ptrTo(uint32(0)),
		Elements: []wasm.Element{{
			Offset:   []byte{wasm.OpI32Const, 0, wasm.OpEnd},
			FuncIdxs: []uint32{1, 2},
			Type:     wasm.ValFuncRef,
		}},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpI32Const, 42, wasm.OpEnd}},
			{
				Locals: []wasm.LocalEntry{{Count: 1, ValType: wasm.ValF64}},
				Code:   []byte{wasm.OpLocalGet, 0, wasm.OpEnd},
			},
		},
		Data: []wasm.DataSegment{
			{Offset: []byte{wasm.OpI32Const, 8, wasm.OpEnd}, Init: []byte("hi")},
			{Flags: 1, Init: []byte{1, 2, 3}},
		},
		Names: &wasm.Names{
			Module:    "rt",
			Functions: map[uint32]string{1: "f", 2: "id"},
			Locals:    map[uint32]map[uint32]string{2: {0: "x"}},
		},
	}

	got, err := wasm.ParseModule(src.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if diff := cmp.Diff(src, got, roundTripOpts); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeIsStable(t *testing.T) {
	data := middleModule().Encode()
	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if again := m.Encode(); !bytes.Equal(data, again) {
		t.Errorf("re-encoding changed the binary:\n% x\n% x", data, again)
	}
}

func TestEncodeKeepsCustomSections(t *testing.T) {
	src := &wasm.Module{CustomSections: []wasm.CustomSection{
		{Name: "producers", Data: []byte{0x00}},
		{Name: "producers", Data: []byte{0x01}},
	}}
	m, err := wasm.ParseModule(src.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	want := [][]byte{{0x00}, {0x01}}
	if diff := cmp.Diff(want, m.CustomSectionsNamed("producers")); diff != "" {
		t.Errorf("custom sections (-want +got):\n%s", diff)
	}
}

func TestEncodeBody(t *testing.T) {
	got := wasm.EncodeBody(nil, []byte{wasm.OpEnd})
	if !bytes.Equal(got, []byte{0x00, wasm.OpEnd}) {
		t.Errorf("empty body: got % x", got)
	}
	got = wasm.EncodeBody([]wasm.LocalEntry{{Count: 3, ValType: wasm.ValI32}}, []byte{wasm.OpEnd})
	if !bytes.Equal(got, []byte{0x01, 0x03, 0x7f, wasm.OpEnd}) {
		t.Errorf("body with locals: got % x", got)
	}
}
