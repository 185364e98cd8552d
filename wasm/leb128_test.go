package wasm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wippyai/wasm-jsapi/wasm"
)

func TestLEB128Unsigned(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0x80, 0x80, 0x01}, 16384},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		if got := wasm.EncodeLEB128u(tt.value); !bytes.Equal(got, tt.encoded) {
			t.Errorf("encode %d: got %v, want %v", tt.value, got, tt.encoded)
		}
		got, err := wasm.ReadLEB128u(bytes.NewReader(tt.encoded))
		if err != nil {
			t.Fatalf("decode %v: %v", tt.encoded, err)
		}
		if got != tt.value {
			t.Errorf("decode %v: got %d, want %d", tt.encoded, got, tt.value)
		}
	}
}

func TestLEB128Signed(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x2a}, 42},
		{[]byte{0x7f}, -1},
		{[]byte{0xc0, 0x00}, 64},
		{[]byte{0x40}, -64},
		{[]byte{0xbf, 0x7f}, -65},
		{[]byte{0x80, 0x7f}, -128},
	}

	for _, tt := range tests {
		if got := wasm.EncodeLEB128s(tt.value); !bytes.Equal(got, tt.encoded) {
			t.Errorf("encode %d: got %v, want %v", tt.value, got, tt.encoded)
		}
		got, err := wasm.ReadLEB128s(bytes.NewReader(tt.encoded))
		if err != nil {
			t.Fatalf("decode %v: %v", tt.encoded, err)
		}
		if got != tt.value {
			t.Errorf("decode %v: got %d, want %d", tt.encoded, got, tt.value)
		}
	}
}

func TestLEB128RoundTrip64(t *testing.T) {
	for _, v := range []uint64{0, 1, 128, 0xFFFFFFFF, 0xFFFFFFFFFFFFFFFF} {
		var buf bytes.Buffer
		wasm.WriteLEB128u64(&buf, v)
		got, err := wasm.ReadLEB128u64(&buf)
		if err != nil || got != v {
			t.Errorf("u64 %d: got %d, %v", v, got, err)
		}
	}
	for _, v := range []int64{0, -1, 63, -64, 0x7FFFFFFFFFFFFFFF, -0x8000000000000000} {
		got, err := wasm.ReadLEB128s64(bytes.NewReader(wasm.EncodeLEB128s64(v)))
		if err != nil || got != v {
			t.Errorf("s64 %d: got %d, %v", v, got, err)
		}
	}
}

func TestLEB128Overflow(t *testing.T) {
	long32 := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	long64 := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}

	if _, err := wasm.ReadLEB128u(bytes.NewReader(long32)); !errors.Is(err, wasm.ErrOverflow) {
		t.Errorf("u32: expected ErrOverflow, got %v", err)
	}
	if _, err := wasm.ReadLEB128u(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x1f})); !errors.Is(err, wasm.ErrOverflow) {
		t.Errorf("u32 high bits: expected ErrOverflow, got %v", err)
	}
	if _, err := wasm.ReadLEB128s(bytes.NewReader(long32)); !errors.Is(err, wasm.ErrOverflow) {
		t.Errorf("s32: expected ErrOverflow, got %v", err)
	}
	if _, err := wasm.ReadLEB128u64(bytes.NewReader(long64)); !errors.Is(err, wasm.ErrOverflow) {
		t.Errorf("u64: expected ErrOverflow, got %v", err)
	}
	if _, err := wasm.ReadLEB128s64(bytes.NewReader(long64)); !errors.Is(err, wasm.ErrOverflow) {
		t.Errorf("s64: expected ErrOverflow, got %v", err)
	}
}
