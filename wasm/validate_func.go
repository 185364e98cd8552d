package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-jsapi/wasm/internal/binary"
)

// FunctionError reports an invalid function body. Offset is the absolute
// module offset of the failing instruction.
type FunctionError struct {
	Name      string
	Msg       string
	FuncIndex uint32
	Offset    int
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("Compiling wasm function \"%s\" failed: %s @+%d", e.Name, e.Msg, e.Offset)
}

// valUnknown is the bottom type produced by pops from a polymorphic stack.
const valUnknown ValType = 0

type ctrlKind uint8

const (
	ctrlFunc ctrlKind = iota
	ctrlBlock
	ctrlLoop
	ctrlIf
	ctrlElse
)

type ctrlFrame struct {
	params      []ValType
	results     []ValType
	pc          int // start offset relative to the function body
	height      int
	kind        ctrlKind
	unreachable bool
}

// labelTypes returns the types a branch to this frame carries.
func (f *ctrlFrame) labelTypes() []ValType {
	if f.kind == ctrlLoop {
		return f.params
	}
	return f.results
}

type stackVal struct {
	producer string
	typ      ValType
}

type funcValidator struct {
	m      *Module
	body   *FuncBody
	r      *binary.Reader
	locals []ValType
	stack  []stackVal
	ctrl   []ctrlFrame
	opPos  int

	// declared is filled on the first ref.func.
	declared map[uint32]bool
}

// ValidateFunction type-checks the body of the function at funcIdx in the
// function index space. Imported functions have no body and are rejected.
func (m *Module) ValidateFunction(funcIdx uint32) error {
	imported := uint32(m.NumImportedFuncs())
	if funcIdx < imported {
		return fmt.Errorf("function %d is imported and has no body", funcIdx)
	}
	local := funcIdx - imported
	if int(local) >= len(m.Code) || int(local) >= len(m.Funcs) {
		return fmt.Errorf("function %d has no body", funcIdx)
	}
	body := &m.Code[local]

	err := m.validateBody(body, m.Funcs[local])
	if err == nil {
		return nil
	}
	fe := &FunctionError{FuncIndex: funcIdx, Name: m.FunctionName(funcIdx), Offset: body.Offset, Msg: err.Error()}
	var de *DecodeError
	if errors.As(err, &de) {
		fe.Msg, fe.Offset = de.Msg, de.Offset
	}
	return fe
}

func (m *Module) validateBody(body *FuncBody, typeIdx uint32) error {
	ft := m.typeAt(typeIdx)
	if ft == nil {
		return binary.Errorf(body.BodyOffset, "invalid signature index: %d", typeIdx)
	}
	v := &funcValidator{
		m:    m,
		body: body,
		r:    binary.NewReaderAt(body.Code, body.Offset),
	}
	v.locals = make([]ValType, 0, uint64(len(ft.Params))+body.NumLocals())
	v.locals = append(v.locals, ft.Params...)
	for _, l := range body.Locals {
		for i := uint32(0); i < l.Count; i++ {
			v.locals = append(v.locals, l.ValType)
		}
	}
	v.ctrl = append(v.ctrl, ctrlFrame{kind: ctrlFunc, pc: body.LocalsSize, results: ft.Results})
	return v.run()
}

func (v *funcValidator) run() error {
	for !v.r.EOF() {
		v.opPos = v.r.Position()
		op, err := v.r.ReadByte()
		if err != nil {
			return err
		}
		if err := v.step(op); err != nil {
			return err
		}
		if len(v.ctrl) == 0 {
			if !v.r.EOF() {
				return binary.Errorf(v.r.Position(), "trailing code after function end")
			}
			return nil
		}
	}
	return binary.Errorf(v.r.Position(), "function body must end with \"end\" opcode")
}

func (v *funcValidator) fail(format string, args ...any) error {
	return binary.Errorf(v.opPos, format, args...)
}

func (v *funcValidator) top() *ctrlFrame {
	return &v.ctrl[len(v.ctrl)-1]
}

func (v *funcValidator) push(t ValType, producer string) {
	v.stack = append(v.stack, stackVal{typ: t, producer: producer})
}

func (v *funcValidator) pushAll(types []ValType, producer string) {
	for _, t := range types {
		v.push(t, producer)
	}
}

// popAny removes the top value. On a polymorphic stack an empty frame
// yields the unknown type.
func (v *funcValidator) popAny(op string, need int) (stackVal, error) {
	f := v.top()
	if len(v.stack) == f.height {
		if f.unreachable {
			return stackVal{typ: valUnknown}, nil
		}
		return stackVal{}, v.fail("not enough arguments on the stack for %s (need %d, got %d)", op, need, 0)
	}
	val := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return val, nil
}

// popArgs pops operands for op in reverse order and checks their types.
func (v *funcValidator) popArgs(op string, want []ValType) error {
	f := v.top()
	avail := len(v.stack) - f.height
	if !f.unreachable && avail < len(want) {
		return v.fail("not enough arguments on the stack for %s (need %d, got %d)", op, len(want), avail)
	}
	for i := len(want) - 1; i >= 0; i-- {
		val, err := v.popAny(op, len(want))
		if err != nil {
			return err
		}
		if err := v.checkOperand(op, i, want[i], val); err != nil {
			return err
		}
	}
	return nil
}

func (v *funcValidator) checkOperand(op string, idx int, want ValType, got stackVal) error {
	if got.typ == valUnknown || want == valUnknown || got.typ == want {
		return nil
	}
	return v.fail("%s[%d] expected type %s, found %s of type %s", op, idx, want, got.producer, got.typ)
}

// checkFallthru verifies the values left for a frame that ends or switches
// to its else arm.
func (v *funcValidator) checkFallthru(f *ctrlFrame, types []ValType) error {
	actual := len(v.stack) - f.height
	arity := len(types)
	if (!f.unreachable && actual != arity) || actual > arity {
		return v.fail("expected %d elements on the stack for fallthru to @%d, found %d", arity, f.pc, actual)
	}
	return v.checkTopTypes("fallthru", types, actual)
}

func (v *funcValidator) checkTopTypes(kind string, types []ValType, present int) error {
	arity := len(types)
	for i := 0; i < min(arity, present); i++ {
		val := v.stack[len(v.stack)-1-i]
		want := types[arity-1-i]
		if val.typ != valUnknown && val.typ != want {
			return v.fail("type error in %s[%d] (expected %s, got %s)", kind, arity-1-i, want, val.typ)
		}
	}
	return nil
}

// checkBranch validates the operand stack against the label at depth
// without consuming it.
func (v *funcValidator) checkBranch(depth uint32, kind string) error {
	if int(depth) >= len(v.ctrl) {
		return v.fail("invalid branch depth: %d", depth)
	}
	target := &v.ctrl[len(v.ctrl)-1-int(depth)]
	types := target.labelTypes()
	f := v.top()
	actual := len(v.stack) - f.height
	if !f.unreachable && actual < len(types) {
		return v.fail("expected %d elements on the stack for %s to @%d, found %d", len(types), kind, target.pc, actual)
	}
	return v.checkTopTypes(kind, types, actual)
}

func (v *funcValidator) setUnreachable() {
	f := v.top()
	v.stack = v.stack[:f.height]
	f.unreachable = true
}

func (v *funcValidator) readBlockType() ([]ValType, []ValType, error) {
	pos := v.r.Position()
	bt, err := v.r.ReadS33()
	if err != nil {
		return nil, nil, err
	}
	if bt == BlockTypeVoid {
		return nil, nil, nil
	}
	if bt < 0 {
		t := byte(bt & 0x7f)
		if bt < -0x40 || !validValType(t) {
			return nil, nil, binary.Errorf(pos, "invalid block type %d", bt)
		}
		return nil, []ValType{ValType(t)}, nil
	}
	ft := v.m.typeAt(uint32(bt))
	if ft == nil {
		return nil, nil, binary.Errorf(pos, "block type index %d is not a signature definition", bt)
	}
	return ft.Params, ft.Results, nil
}

func (v *funcValidator) readIndex() (uint32, error) {
	return v.r.ReadU32()
}

func (v *funcValidator) requireMemory() error {
	if v.m.NumMemories() == 0 {
		return v.fail("memory instruction with no memory")
	}
	return nil
}

func (v *funcValidator) readMemArg(naturalAlign uint32) error {
	align, err := v.r.ReadU32()
	if err != nil {
		return err
	}
	if _, err := v.r.ReadU32(); err != nil {
		return err
	}
	if align > naturalAlign {
		return v.fail("invalid alignment; expected maximum alignment is %d, actual alignment is %d", naturalAlign, align)
	}
	return nil
}

func (v *funcValidator) readZeroByte(what string) error {
	pos := v.r.Position()
	b, err := v.r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 {
		return binary.Errorf(pos, "invalid %s index: %d", what, b)
	}
	return nil
}

func (v *funcValidator) step(op byte) error {
	name := OpcodeName(op)

	if sig := simpleOps[op]; sig != nil {
		if err := v.popArgs(name, sig.params); err != nil {
			return err
		}
		v.pushAll(sig.results, name)
		return nil
	}
	if mem := memOps[op]; mem != nil {
		if err := v.requireMemory(); err != nil {
			return err
		}
		if err := v.readMemArg(mem.align); err != nil {
			return err
		}
		if mem.store {
			return v.popArgs(name, []ValType{ValI32, mem.typ})
		}
		if err := v.popArgs(name, []ValType{ValI32}); err != nil {
			return err
		}
		v.push(mem.typ, name)
		return nil
	}

	switch op {
	case OpUnreachable:
		v.setUnreachable()
	case OpNop:

	case OpBlock, OpLoop, OpIf:
		params, results, err := v.readBlockType()
		if err != nil {
			return err
		}
		if op == OpIf {
			if err := v.popArgs(name, []ValType{ValI32}); err != nil {
				return err
			}
		}
		if err := v.popArgs(name, params); err != nil {
			return err
		}
		kind := ctrlBlock
		switch op {
		case OpLoop:
			kind = ctrlLoop
		case OpIf:
			kind = ctrlIf
		}
		v.ctrl = append(v.ctrl, ctrlFrame{
			kind:    kind,
			pc:      v.opPos - v.body.BodyOffset,
			params:  params,
			results: results,
			height:  len(v.stack),
		})
		v.pushAll(params, name)

	case OpElse:
		f := v.top()
		if f.kind != ctrlIf {
			return v.fail("else does not match an if")
		}
		if err := v.checkFallthru(f, f.results); err != nil {
			return err
		}
		v.stack = v.stack[:f.height]
		v.pushAll(f.params, name)
		f.kind = ctrlElse
		f.unreachable = false

	case OpEnd:
		f := v.top()
		if err := v.checkFallthru(f, f.results); err != nil {
			return err
		}
		if f.kind == ctrlIf && !(FuncType{Results: f.params}).Equal(FuncType{Results: f.results}) {
			return v.fail("start-arity and end-arity of one-armed if must match")
		}
		results := f.results
		v.stack = v.stack[:f.height]
		v.ctrl = v.ctrl[:len(v.ctrl)-1]
		if len(v.ctrl) > 0 {
			v.pushAll(results, name)
		}

	case OpBr:
		depth, err := v.readIndex()
		if err != nil {
			return err
		}
		if err := v.checkBranch(depth, "br"); err != nil {
			return err
		}
		v.setUnreachable()

	case OpBrIf:
		depth, err := v.readIndex()
		if err != nil {
			return err
		}
		if err := v.popArgs(name, []ValType{ValI32}); err != nil {
			return err
		}
		if err := v.checkBranch(depth, "br_if"); err != nil {
			return err
		}

	case OpBrTable:
		count, err := v.r.ReadU32()
		if err != nil {
			return err
		}
		if int(count) > v.r.Len() {
			return v.fail("invalid table count (> max br_table size): %d", count)
		}
		targets := make([]uint32, count+1)
		for i := range targets {
			if targets[i], err = v.readIndex(); err != nil {
				return err
			}
		}
		if err := v.popArgs(name, []ValType{ValI32}); err != nil {
			return err
		}
		arity := -1
		for i, depth := range targets {
			if int(depth) >= len(v.ctrl) {
				return v.fail("invalid branch depth: %d", depth)
			}
			n := len(v.ctrl[len(v.ctrl)-1-int(depth)].labelTypes())
			if arity >= 0 && n != arity {
				return v.fail("inconsistent arity in br_table target %d (previous was %d, this one is %d)", i, arity, n)
			}
			arity = n
			if err := v.checkBranch(depth, "br_table"); err != nil {
				return err
			}
		}
		v.setUnreachable()

	case OpReturn:
		if err := v.checkBranch(uint32(len(v.ctrl)-1), "return"); err != nil {
			return err
		}
		v.setUnreachable()

	case OpCall:
		idx, err := v.readIndex()
		if err != nil {
			return err
		}
		ft := v.m.GetFuncType(idx)
		if ft == nil {
			return v.fail("invalid function index: %d", idx)
		}
		if err := v.popArgs(name, ft.Params); err != nil {
			return err
		}
		v.pushAll(ft.Results, name)

	case OpCallIndirect:
		typeIdx, err := v.readIndex()
		if err != nil {
			return err
		}
		tableIdx, err := v.readIndex()
		if err != nil {
			return err
		}
		if int(tableIdx) >= v.m.NumTables() {
			return v.fail("invalid table index: %d", tableIdx)
		}
		ft := v.m.typeAt(typeIdx)
		if ft == nil {
			return v.fail("invalid signature index: %d", typeIdx)
		}
		if err := v.popArgs(name, []ValType{ValI32}); err != nil {
			return err
		}
		if err := v.popArgs(name, ft.Params); err != nil {
			return err
		}
		v.pushAll(ft.Results, name)

	case OpDrop:
		if _, err := v.popAny(name, 1); err != nil {
			return err
		}

	case OpSelect:
		return v.validateSelect(name, valUnknown)

	case OpSelectType:
		count, err := v.r.ReadU32()
		if err != nil {
			return err
		}
		if count != 1 {
			return v.fail("invalid number of types for select")
		}
		t, err := readValType(v.r)
		if err != nil {
			return err
		}
		return v.validateSelect(name, t)

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := v.readIndex()
		if err != nil {
			return err
		}
		if int(idx) >= len(v.locals) {
			return v.fail("invalid local index: %d", idx)
		}
		t := v.locals[idx]
		if op != OpLocalGet {
			if err := v.popArgs(name, []ValType{t}); err != nil {
				return err
			}
		}
		if op != OpLocalSet {
			v.push(t, name)
		}

	case OpGlobalGet, OpGlobalSet:
		idx, err := v.readIndex()
		if err != nil {
			return err
		}
		g := v.m.GetGlobalType(idx)
		if g == nil {
			return v.fail("invalid global index: %d", idx)
		}
		if op == OpGlobalGet {
			v.push(g.ValType, name)
			return nil
		}
		if !g.Mutable {
			return v.fail("immutable global #%d cannot be assigned", idx)
		}
		return v.popArgs(name, []ValType{g.ValType})

	case OpMemorySize, OpMemoryGrow:
		if err := v.readZeroByte("memory"); err != nil {
			return err
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
		if op == OpMemoryGrow {
			if err := v.popArgs(name, []ValType{ValI32}); err != nil {
				return err
			}
		}
		v.push(ValI32, name)

	case OpI32Const:
		if _, err := v.r.ReadS32(); err != nil {
			return err
		}
		v.push(ValI32, name)
	case OpI64Const:
		if _, err := v.r.ReadS64(); err != nil {
			return err
		}
		v.push(ValI64, name)
	case OpF32Const:
		if _, err := v.r.ReadBytes(4); err != nil {
			return err
		}
		v.push(ValF32, name)
	case OpF64Const:
		if _, err := v.r.ReadBytes(8); err != nil {
			return err
		}
		v.push(ValF64, name)

	case OpRefNull:
		t, err := readValType(v.r)
		if err != nil {
			return err
		}
		if !t.IsRef() {
			return v.fail("invalid reference type %s", t)
		}
		v.push(t, name)
	case OpRefIsNull:
		val, err := v.popAny(name, 1)
		if err != nil {
			return err
		}
		if val.typ != valUnknown && !val.typ.IsRef() {
			return v.fail("%s[0] expected reference type, found %s of type %s", name, val.producer, val.typ)
		}
		v.push(ValI32, name)
	case OpRefFunc:
		idx, err := v.readIndex()
		if err != nil {
			return err
		}
		if int(idx) >= v.m.NumFuncs() {
			return v.fail("invalid function index: %d", idx)
		}
		if v.declared == nil {
			v.declared = v.m.DeclaredFuncRefs()
		}
		if !v.declared[idx] {
			return v.fail("undeclared reference to function #%d", idx)
		}
		v.push(ValFuncRef, name)

	case OpPrefixMisc:
		return v.stepMisc()

	default:
		return v.fail("invalid opcode 0x%02x", op)
	}
	return nil
}

func (v *funcValidator) validateSelect(name string, typed ValType) error {
	if err := v.popArgs(name, []ValType{ValI32}); err != nil {
		return err
	}
	if typed != valUnknown {
		if err := v.popArgs(name, []ValType{typed, typed}); err != nil {
			return err
		}
		v.push(typed, name)
		return nil
	}
	second, err := v.popAny(name, 3)
	if err != nil {
		return err
	}
	first, err := v.popAny(name, 3)
	if err != nil {
		return err
	}
	for i, val := range []stackVal{first, second} {
		if val.typ.IsRef() {
			return v.fail("%s[%d] expected numeric type, found %s of type %s", name, i, val.producer, val.typ)
		}
	}
	if err := v.checkOperand(name, 1, first.typ, second); err != nil {
		return err
	}
	t := first.typ
	if t == valUnknown {
		t = second.typ
	}
	v.push(t, name)
	return nil
}

func (v *funcValidator) stepMisc() error {
	sub, err := v.r.ReadU32()
	if err != nil {
		return err
	}
	op, ok := miscOps[sub]
	if !ok {
		return v.fail("invalid numeric opcode: 0xfc%02x", sub)
	}
	switch sub {
	case MiscMemoryCopy:
		if err := v.readZeroByte("memory"); err != nil {
			return err
		}
		if err := v.readZeroByte("memory"); err != nil {
			return err
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
	case MiscMemoryFill:
		if err := v.readZeroByte("memory"); err != nil {
			return err
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
	}
	if err := v.popArgs(op.name, op.sig.params); err != nil {
		return err
	}
	v.pushAll(op.sig.results, op.name)
	return nil
}
