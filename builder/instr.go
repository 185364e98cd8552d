package builder

import "github.com/wippyai/wasm-jsapi/wasm"

// Instruction encoders for composing bodies:
//
//	f.AddBody(builder.Concat(builder.LocalGet(0), builder.I32Const(1), []byte{wasm.OpI32Add})...)

func I32Const(v int32) []byte {
	return append([]byte{wasm.OpI32Const}, wasm.EncodeLEB128s(v)...)
}

func I64Const(v int64) []byte {
	return append([]byte{wasm.OpI64Const}, wasm.EncodeLEB128s64(v)...)
}

func LocalGet(idx uint32) []byte {
	return append([]byte{wasm.OpLocalGet}, wasm.EncodeLEB128u(idx)...)
}

func LocalSet(idx uint32) []byte {
	return append([]byte{wasm.OpLocalSet}, wasm.EncodeLEB128u(idx)...)
}

func GlobalGet(idx uint32) []byte {
	return append([]byte{wasm.OpGlobalGet}, wasm.EncodeLEB128u(idx)...)
}

func Call(funcIdx uint32) []byte {
	return append([]byte{wasm.OpCall}, wasm.EncodeLEB128u(funcIdx)...)
}

// Concat joins instruction sequences.
func Concat(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
