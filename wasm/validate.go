package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-jsapi/wasm/internal/binary"
)

// Validate checks the module-level structure: index spaces, exports, the
// start function, limits and constant expressions. Function bodies are
// checked separately by ValidateFunction.
func (m *Module) Validate() error {
	checks := []func() error{
		m.validateTypeIndices,
		m.validateFunctionIndices,
		m.validateTableIndices,
		m.validateMemories,
		m.validateGlobals,
		m.validateExports,
		m.validateStart,
		m.validateDataCount,
		m.validateCodeCount,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFunctions validates every function body in index order and
// returns the first failure.
func (m *Module) ValidateFunctions() error {
	imported := uint32(m.NumImportedFuncs())
	for i := range m.Code {
		if err := m.ValidateFunction(imported + uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

// ParseModuleValidate parses a WebAssembly binary and runs module and
// function validation on the caller's goroutine.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.ValidateFunctions(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("signature index %d out of bounds (%d signatures) for function %d",
				typeIdx, numTypes, m.NumImportedFuncs()+i)
		}
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("signature index %d out of bounds (%d signatures) for import #%d %q %q",
				imp.Desc.TypeIdx, numTypes, i, imp.Module, imp.Name)
		}
	}
	return nil
}

func (m *Module) validateFunctionIndices() error {
	numFuncs := uint32(m.NumFuncs())
	for i, elem := range m.Elements {
		for j, funcIdx := range elem.FuncIdxs {
			if funcIdx >= numFuncs {
				return fmt.Errorf("element segment %d entry %d: function index %d out of bounds (%d entries)",
					i, j, funcIdx, numFuncs)
			}
		}
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Idx >= numFuncs {
			return fmt.Errorf("export %q: function index %d out of bounds (%d entries)", exp.Name, exp.Idx, numFuncs)
		}
	}
	return nil
}

func (m *Module) validateTableIndices() error {
	numTables := uint32(m.NumTables())
	for i, elem := range m.Elements {
		if elem.Flags&0x01 == 0 && elem.TableIdx >= numTables {
			return fmt.Errorf("element segment %d: table index %d out of bounds (%d entries)", i, elem.TableIdx, numTables)
		}
		if elem.Offset != nil {
			if err := m.checkConstExpr(elem.Offset, ValI32); err != nil {
				return fmt.Errorf("element segment %d offset: %w", i, err)
			}
		}
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindTable && exp.Idx >= numTables {
			return fmt.Errorf("export %q: table index %d out of bounds (%d entries)", exp.Name, exp.Idx, numTables)
		}
	}
	return nil
}

func (m *Module) validateMemories() error {
	numMemories := m.NumMemories()
	if numMemories > 1 {
		return fmt.Errorf("At most one memory is supported (declared %d)", numMemories)
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory && imp.Desc.Memory != nil {
			if err := validateMemoryType(imp.Desc.Memory, i, true); err != nil {
				return err
			}
		}
	}
	for i := range m.Memories {
		if err := validateMemoryType(&m.Memories[i], i, false); err != nil {
			return err
		}
	}
	for i, data := range m.Data {
		if data.Flags == 1 {
			continue
		}
		if int(data.MemIdx) >= numMemories {
			return fmt.Errorf("data segment %d: memory index %d out of bounds (%d entries)", i, data.MemIdx, numMemories)
		}
		if err := m.checkConstExpr(data.Offset, ValI32); err != nil {
			return fmt.Errorf("data segment %d offset: %w", i, err)
		}
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindMemory && int(exp.Idx) >= numMemories {
			return fmt.Errorf("export %q: memory index %d out of bounds (%d entries)", exp.Name, exp.Idx, numMemories)
		}
	}
	return nil
}

func validateMemoryType(mem *MemoryType, idx int, isImport bool) error {
	prefix := "memory"
	if isImport {
		prefix = "imported memory"
	}
	if mem.Limits.Shared && mem.Limits.Max == nil {
		return fmt.Errorf("%s %d: shared memory must have a maximum defined", prefix, idx)
	}
	if mem.Limits.Min > MemoryMaxPages {
		return fmt.Errorf("%s %d: initial memory size (%d pages) is larger than implementation limit (%d pages)",
			prefix, idx, mem.Limits.Min, MemoryMaxPages)
	}
	if mem.Limits.Max != nil {
		if *mem.Limits.Max > MemoryMaxPages {
			return fmt.Errorf("%s %d: maximum memory size (%d pages) is larger than implementation limit (%d pages)",
				prefix, idx, *mem.Limits.Max, MemoryMaxPages)
		}
		if *mem.Limits.Max < mem.Limits.Min {
			return fmt.Errorf("%s %d: maximum memory size (%d pages) is smaller than initial (%d pages)",
				prefix, idx, *mem.Limits.Max, mem.Limits.Min)
		}
	}
	return nil
}

func (m *Module) validateGlobals() error {
	numGlobals := uint32(m.NumGlobals())
	for i, g := range m.Globals {
		if err := m.checkConstExpr(g.Init, g.Type.ValType); err != nil {
			return fmt.Errorf("global %d initializer: %w", m.NumImportedGlobals()+i, err)
		}
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindGlobal && exp.Idx >= numGlobals {
			return fmt.Errorf("export %q: global index %d out of bounds (%d entries)", exp.Name, exp.Idx, numGlobals)
		}
	}
	return nil
}

// checkConstExpr checks that a single-instruction constant expression
// produces want. global.get may only reference imported globals.
func (m *Module) checkConstExpr(expr []byte, want ValType) error {
	if len(expr) == 0 {
		return fmt.Errorf("empty constant expression")
	}
	r := binary.NewReader(expr)
	op, _ := r.ReadByte()
	var got ValType
	switch op {
	case OpI32Const:
		got = ValI32
	case OpI64Const:
		got = ValI64
	case OpF32Const:
		got = ValF32
	case OpF64Const:
		got = ValF64
	case OpRefFunc:
		got = ValFuncRef
	case OpRefNull:
		if len(expr) < 2 {
			return fmt.Errorf("truncated ref.null")
		}
		got = ValType(expr[1])
	case OpGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(idx) >= m.NumImportedGlobals() {
			return fmt.Errorf("non-imported globals cannot be used in constant expressions")
		}
		got = m.GetGlobalType(idx).ValType
	default:
		return fmt.Errorf("opcode %s is not allowed in constant expressions", OpcodeName(op))
	}
	if got != want {
		return fmt.Errorf("type error in constant expression[0] (expected %s, got %s)", want, got)
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]int, len(m.Exports))
	for i, exp := range m.Exports {
		if prev, ok := seen[exp.Name]; ok {
			p := m.Exports[prev]
			return fmt.Errorf("Duplicate export name '%s' for %s %d and %s %d",
				exp.Name, KindName(p.Kind), p.Idx, KindName(exp.Kind), exp.Idx)
		}
		seen[exp.Name] = i
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	funcType := m.GetFuncType(*m.Start)
	if funcType == nil {
		return fmt.Errorf("start function index %d out of bounds (%d entries)", *m.Start, m.NumFuncs())
	}
	if len(funcType.Params) != 0 || len(funcType.Results) != 0 {
		return fmt.Errorf("invalid start function: non-zero parameter or return count")
	}
	return nil
}

func (m *Module) validateDataCount() error {
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("data segments count %d mismatch (%d expected)", len(m.Data), *m.DataCount)
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("function body count %d mismatch (%d expected)", len(m.Code), len(m.Funcs))
	}
	return nil
}
