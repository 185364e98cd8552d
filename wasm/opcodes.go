package wasm

import "fmt"

// opSig is the fixed stack signature of a simple (immediate-free) operator.
type opSig struct {
	params  []ValType
	results []ValType
}

// memOp describes a load or store: the accessed value type and the natural
// alignment as a power of two.
type memOp struct {
	typ   ValType
	align uint32
	store bool
}

var (
	opNames   [256]string
	simpleOps [256]*opSig
	memOps    [256]*memOp
	miscOps   = map[uint32]struct {
		name string
		sig  opSig
	}{}
)

func init() {
	control := map[byte]string{
		OpUnreachable:  "unreachable",
		OpNop:          "nop",
		OpBlock:        "block",
		OpLoop:         "loop",
		OpIf:           "if",
		OpElse:         "else",
		OpEnd:          "end",
		OpBr:           "br",
		OpBrIf:         "br_if",
		OpBrTable:      "br_table",
		OpReturn:       "return",
		OpCall:         "call",
		OpCallIndirect: "call_indirect",
		OpDrop:         "drop",
		OpSelect:       "select",
		OpSelectType:   "select",
		OpLocalGet:     "local.get",
		OpLocalSet:     "local.set",
		OpLocalTee:     "local.tee",
		OpGlobalGet:    "global.get",
		OpGlobalSet:    "global.set",
		OpMemorySize:   "memory.size",
		OpMemoryGrow:   "memory.grow",
		OpI32Const:     "i32.const",
		OpI64Const:     "i64.const",
		OpF32Const:     "f32.const",
		OpF64Const:     "f64.const",
		OpRefNull:      "ref.null",
		OpRefIsNull:    "ref.is_null",
		OpRefFunc:      "ref.func",
	}
	for op, name := range control {
		opNames[op] = name
	}

	loads := []struct {
		name  string
		typ   ValType
		align uint32
	}{
		{"i32.load", ValI32, 2}, {"i64.load", ValI64, 3}, {"f32.load", ValF32, 2}, {"f64.load", ValF64, 3},
		{"i32.load8_s", ValI32, 0}, {"i32.load8_u", ValI32, 0}, {"i32.load16_s", ValI32, 1}, {"i32.load16_u", ValI32, 1},
		{"i64.load8_s", ValI64, 0}, {"i64.load8_u", ValI64, 0}, {"i64.load16_s", ValI64, 1}, {"i64.load16_u", ValI64, 1},
		{"i64.load32_s", ValI64, 2}, {"i64.load32_u", ValI64, 2},
	}
	for i, l := range loads {
		op := OpI32Load + byte(i)
		opNames[op] = l.name
		memOps[op] = &memOp{typ: l.typ, align: l.align}
	}

	stores := []struct {
		name  string
		typ   ValType
		align uint32
	}{
		{"i32.store", ValI32, 2}, {"i64.store", ValI64, 3}, {"f32.store", ValF32, 2}, {"f64.store", ValF64, 3},
		{"i32.store8", ValI32, 0}, {"i32.store16", ValI32, 1},
		{"i64.store8", ValI64, 0}, {"i64.store16", ValI64, 1}, {"i64.store32", ValI64, 2},
	}
	for i, s := range stores {
		op := OpI32Store + byte(i)
		opNames[op] = s.name
		memOps[op] = &memOp{typ: s.typ, align: s.align, store: true}
	}

	op := OpI32Eqz
	def := func(name string, params []ValType, result ValType) {
		opNames[op] = name
		simpleOps[op] = &opSig{params: params, results: []ValType{result}}
		op++
	}
	un := func(t ValType) []ValType { return []ValType{t} }
	bin := func(t ValType) []ValType { return []ValType{t, t} }

	def("i32.eqz", un(ValI32), ValI32)
	for _, n := range []string{"eq", "ne", "lt_s", "lt_u", "gt_s", "gt_u", "le_s", "le_u", "ge_s", "ge_u"} {
		def("i32."+n, bin(ValI32), ValI32)
	}
	def("i64.eqz", un(ValI64), ValI32)
	for _, n := range []string{"eq", "ne", "lt_s", "lt_u", "gt_s", "gt_u", "le_s", "le_u", "ge_s", "ge_u"} {
		def("i64."+n, bin(ValI64), ValI32)
	}
	for _, n := range []string{"eq", "ne", "lt", "gt", "le", "ge"} {
		def("f32."+n, bin(ValF32), ValI32)
	}
	for _, n := range []string{"eq", "ne", "lt", "gt", "le", "ge"} {
		def("f64."+n, bin(ValF64), ValI32)
	}

	intUnary := []string{"clz", "ctz", "popcnt"}
	intBinary := []string{"add", "sub", "mul", "div_s", "div_u", "rem_s", "rem_u", "and", "or", "xor", "shl", "shr_s", "shr_u", "rotl", "rotr"}
	floatUnary := []string{"abs", "neg", "ceil", "floor", "trunc", "nearest", "sqrt"}
	floatBinary := []string{"add", "sub", "mul", "div", "min", "max", "copysign"}

	for _, n := range intUnary {
		def("i32."+n, un(ValI32), ValI32)
	}
	for _, n := range intBinary {
		def("i32."+n, bin(ValI32), ValI32)
	}
	for _, n := range intUnary {
		def("i64."+n, un(ValI64), ValI64)
	}
	for _, n := range intBinary {
		def("i64."+n, bin(ValI64), ValI64)
	}
	for _, n := range floatUnary {
		def("f32."+n, un(ValF32), ValF32)
	}
	for _, n := range floatBinary {
		def("f32."+n, bin(ValF32), ValF32)
	}
	for _, n := range floatUnary {
		def("f64."+n, un(ValF64), ValF64)
	}
	for _, n := range floatBinary {
		def("f64."+n, bin(ValF64), ValF64)
	}

	conversions := []struct {
		name     string
		from, to ValType
	}{
		{"i32.wrap_i64", ValI64, ValI32},
		{"i32.trunc_f32_s", ValF32, ValI32}, {"i32.trunc_f32_u", ValF32, ValI32},
		{"i32.trunc_f64_s", ValF64, ValI32}, {"i32.trunc_f64_u", ValF64, ValI32},
		{"i64.extend_i32_s", ValI32, ValI64}, {"i64.extend_i32_u", ValI32, ValI64},
		{"i64.trunc_f32_s", ValF32, ValI64}, {"i64.trunc_f32_u", ValF32, ValI64},
		{"i64.trunc_f64_s", ValF64, ValI64}, {"i64.trunc_f64_u", ValF64, ValI64},
		{"f32.convert_i32_s", ValI32, ValF32}, {"f32.convert_i32_u", ValI32, ValF32},
		{"f32.convert_i64_s", ValI64, ValF32}, {"f32.convert_i64_u", ValI64, ValF32},
		{"f32.demote_f64", ValF64, ValF32},
		{"f64.convert_i32_s", ValI32, ValF64}, {"f64.convert_i32_u", ValI32, ValF64},
		{"f64.convert_i64_s", ValI64, ValF64}, {"f64.convert_i64_u", ValI64, ValF64},
		{"f64.promote_f32", ValF32, ValF64},
		{"i32.reinterpret_f32", ValF32, ValI32},
		{"i64.reinterpret_f64", ValF64, ValI64},
		{"f32.reinterpret_i32", ValI32, ValF32},
		{"f64.reinterpret_i64", ValI64, ValF64},
		{"i32.extend8_s", ValI32, ValI32}, {"i32.extend16_s", ValI32, ValI32},
		{"i64.extend8_s", ValI64, ValI64}, {"i64.extend16_s", ValI64, ValI64}, {"i64.extend32_s", ValI64, ValI64},
	}
	for _, c := range conversions {
		def(c.name, un(c.from), c.to)
	}

	sat := []struct {
		name     string
		from, to ValType
	}{
		{"i32.trunc_sat_f32_s", ValF32, ValI32}, {"i32.trunc_sat_f32_u", ValF32, ValI32},
		{"i32.trunc_sat_f64_s", ValF64, ValI32}, {"i32.trunc_sat_f64_u", ValF64, ValI32},
		{"i64.trunc_sat_f32_s", ValF32, ValI64}, {"i64.trunc_sat_f32_u", ValF32, ValI64},
		{"i64.trunc_sat_f64_s", ValF64, ValI64}, {"i64.trunc_sat_f64_u", ValF64, ValI64},
	}
	for i, s := range sat {
		miscOps[MiscI32TruncSatF32S+uint32(i)] = struct {
			name string
			sig  opSig
		}{s.name, opSig{params: un(s.from), results: un(s.to)}}
	}
	miscOps[MiscMemoryCopy] = struct {
		name string
		sig  opSig
	}{"memory.copy", opSig{params: []ValType{ValI32, ValI32, ValI32}}}
	miscOps[MiscMemoryFill] = struct {
		name string
		sig  opSig
	}{"memory.fill", opSig{params: []ValType{ValI32, ValI32, ValI32}}}
}

// OpcodeName returns the text-format mnemonic of a single-byte opcode.
func OpcodeName(op byte) string {
	if name := opNames[op]; name != "" {
		return name
	}
	return fmt.Sprintf("<unknown opcode 0x%02x>", op)
}

// MiscOpcodeName returns the mnemonic of a 0xFC-prefixed opcode.
func MiscOpcodeName(sub uint32) string {
	if op, ok := miscOps[sub]; ok {
		return op.name
	}
	return fmt.Sprintf("<unknown opcode 0xfc%02x>", sub)
}
