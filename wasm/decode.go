package wasm

import (
	"bytes"
	"errors"

	"github.com/wippyai/wasm-jsapi/wasm/internal/binary"
)

// ErrEmptyBuffer is returned by ParseModule for a zero-length input.
var ErrEmptyBuffer = errors.New("BufferSource argument is empty")

// DecodeError is a positioned decoding failure. Error() renders it as
// "<msg> @+<offset>" with the absolute offset into the module buffer.
type DecodeError = binary.DecodeError

// ParseModule parses a WebAssembly binary module. The returned module
// aliases data; callers must not mutate the buffer afterwards.
func ParseModule(data []byte) (*Module, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBuffer
	}
	r := binary.NewReader(data)

	header, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(header, []byte{0x00, 0x61, 0x73, 0x6d}) {
		return nil, binary.Errorf(0, "expected magic word 00 61 73 6d, found % x", header)
	}
	version, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(version, []byte{0x01, 0x00, 0x00, 0x00}) {
		return nil, binary.Errorf(4, "expected version 01 00 00 00, found % x", version)
	}

	m := &Module{}
	var lastOrder int
	seenCode := false

	for !r.EOF() {
		sectionStart := r.Position()
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if int(size) > r.Len() {
			return nil, binary.Errorf(sectionStart,
				"section (code %d, %q) extends past end of the module (length %d, remaining bytes %d)",
				id, SectionName(id), size, r.Len())
		}

		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, binary.Errorf(sectionStart, "unknown section code #0x%02x", id)
			}
			if order <= lastOrder {
				return nil, binary.Errorf(sectionStart, "unexpected section <%s>", SectionName(id))
			}
			lastOrder = order
		}

		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, err
		}

		switch id {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			err = parseElementSection(sr, m)
		case SectionCode:
			seenCode = true
			err = parseCodeSection(sr, m)
		case SectionData:
			err = parseDataSection(sr, m)
		case SectionDataCount:
			err = parseDataCountSection(sr, m)
		}
		if err != nil {
			return nil, err
		}
		if !sr.EOF() {
			return nil, binary.Errorf(sr.Position(),
				"section was shorter than expected size (%d bytes expected, %d decoded instead)",
				size, sr.Consumed())
		}
	}

	if !seenCode && len(m.Funcs) > 0 {
		return nil, binary.Errorf(r.Position(),
			"function count is %d, but code section is absent", len(m.Funcs))
	}

	for _, cs := range m.CustomSections {
		if cs.Name == "name" {
			if names, err := parseNames(cs.Data); err == nil {
				m.Names = names
			}
			break
		}
	}

	return m, nil
}

// StripCustomSections returns a copy of data without its custom sections.
// The known sections are copied byte for byte.
func StripCustomSections(data []byte) ([]byte, error) {
	r := binary.NewReader(data)
	if _, err := r.ReadBytes(8); err != nil {
		return nil, err
	}
	out := make([]byte, 8, len(data))
	copy(out, data[:8])

	for !r.EOF() {
		start := r.Position()
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if _, err := r.Sub(int(size)); err != nil {
			return nil, err
		}
		if id != SectionCustom {
			out = append(out, data[start:r.Position()]...)
		}
	}
	return out, nil
}

// sectionOrder returns the canonical position of a known section, or 0 for
// an unknown id. DataCount sits between Element and Code.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return 0
	}
}

func readCount(r *binary.Reader, what string, limit uint32) (uint32, error) {
	pos := r.Position()
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if n > limit {
		return 0, binary.Errorf(pos, "%s count of %d exceeds internal limit of %d", what, n, limit)
	}
	// Every entry takes at least one byte.
	if int(n) > r.Len() {
		return 0, binary.Errorf(r.Position(), "expected %d bytes, fell off end", n)
	}
	return n, nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: r.ReadRemaining(),
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "types", MaxTypes)
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, count)
	for i := uint32(0); i < count; i++ {
		pos := r.Position()
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return binary.Errorf(pos, "invalid function type form 0x%02x, expected 0x60", form)
		}
		if m.Types[i].Params, err = readValTypes(r); err != nil {
			return err
		}
		if m.Types[i].Results, err = readValTypes(r); err != nil {
			return err
		}
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := readCount(r, "value types", MaxLocals)
	if err != nil {
		return nil, err
	}
	types := make([]ValType, count)
	for i := range types {
		if types[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	pos := r.Position()
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if !validValType(b) {
		return 0, binary.Errorf(pos, "invalid value type 0x%02x", b)
	}
	return ValType(b), nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "imports", MaxImports)
	if err != nil {
		return err
	}
	m.Imports = make([]Import, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kindPos := r.Position()
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}

		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}

		switch kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			table, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &table
		case KindMemory:
			memory, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &memory
		case KindGlobal:
			global, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &global
		default:
			return binary.Errorf(kindPos, "unknown import kind 0x%02x", kind)
		}

		m.Imports[i] = imp
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "functions", MaxFunctions)
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "tables", MaxImports)
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, count)
	for i := uint32(0); i < count; i++ {
		if m.Tables[i], err = readTableType(r); err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "memories", MaxImports)
	if err != nil {
		return err
	}
	m.Memories = make([]MemoryType, count)
	for i := uint32(0); i < count; i++ {
		if m.Memories[i], err = readMemoryType(r); err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "globals", MaxImports)
	if err != nil {
		return err
	}
	m.Globals = make([]Global, count)
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: globalType, Init: init}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "exports", MaxExports)
	if err != nil {
		return err
	}
	m.Exports = make([]Export, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kindPos := r.Position()
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindGlobal {
			return binary.Errorf(kindPos, "invalid export kind 0x%02x", kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "element segments", MaxImports)
	if err != nil {
		return err
	}
	m.Elements = make([]Element, count)
	for i := uint32(0); i < count; i++ {
		flagsPos := r.Position()
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return binary.Errorf(flagsPos, "illegal flag value %d", flags)
		}

		elem := Element{Flags: flags, Type: ValFuncRef}

		// Bit 0: passive/declarative, bit 1: explicit table index or
		// declarative, bit 2: expressions instead of function indices.
		hasOffset := flags&0x01 == 0
		hasTableIdx := flags&0x02 != 0 && hasOffset
		usesExprs := flags&0x04 != 0

		if hasTableIdx {
			if elem.TableIdx, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if hasOffset {
			if elem.Offset, err = readInitExpr(r); err != nil {
				return err
			}
		}

		if flags&0x03 != 0 {
			pos := r.Position()
			if usesExprs {
				t, err := readValType(r)
				if err != nil {
					return err
				}
				if !t.IsRef() {
					return binary.Errorf(pos, "invalid element segment type %s", t)
				}
				elem.Type = t
			} else {
				kind, err := r.ReadByte()
				if err != nil {
					return err
				}
				if kind != 0x00 {
					return binary.Errorf(pos, "invalid element kind 0x%02x", kind)
				}
			}
		}

		vecCount, err := readCount(r, "elements", MaxFunctionSize)
		if err != nil {
			return err
		}
		if usesExprs {
			elem.Exprs = make([][]byte, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				if elem.Exprs[j], err = readInitExpr(r); err != nil {
					return err
				}
			}
		} else {
			elem.FuncIdxs = make([]uint32, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				if elem.FuncIdxs[j], err = r.ReadU32(); err != nil {
					return err
				}
			}
		}

		m.Elements[i] = elem
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	countPos := r.Position()
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if count != uint32(len(m.Funcs)) {
		return binary.Errorf(countPos, "function body count %d mismatch (%d expected)", count, len(m.Funcs))
	}
	m.Code = make([]FuncBody, count)
	for i := uint32(0); i < count; i++ {
		sizePos := r.Position()
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		if bodySize > MaxFunctionSize {
			return binary.Errorf(sizePos, "size %d > maximum function size (%d)", bodySize, MaxFunctionSize)
		}
		if bodySize == 0 {
			return binary.Errorf(sizePos, "size 0 < minimum function size")
		}
		br, err := r.Sub(int(bodySize))
		if err != nil {
			return err
		}
		body := FuncBody{BodyOffset: br.Position()}
		if body.Locals, err = readLocals(br); err != nil {
			return err
		}
		body.LocalsSize = br.Consumed()
		body.Offset = br.Position()
		body.Code = br.ReadRemaining()
		m.Code[i] = body
	}
	return nil
}

func readLocals(r *binary.Reader) ([]LocalEntry, error) {
	groups, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	var locals []LocalEntry
	var total uint64
	for j := uint32(0); j < groups; j++ {
		pos := r.Position()
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		total += uint64(n)
		if total > uint64(MaxLocals) {
			return nil, binary.Errorf(pos, "local count too large")
		}
		t, err := readValType(r)
		if err != nil {
			return nil, err
		}
		locals = append(locals, LocalEntry{Count: n, ValType: t})
	}
	return locals, nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r, "data segments", MaxImports)
	if err != nil {
		return err
	}
	m.Data = make([]DataSegment, count)
	for i := uint32(0); i < count; i++ {
		flagsPos := r.Position()
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 2 {
			return binary.Errorf(flagsPos, "illegal flag value %d", flags)
		}

		seg := DataSegment{Flags: flags}
		if flags == 2 {
			if seg.MemIdx, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if flags != 1 {
			if seg.Offset, err = readInitExpr(r); err != nil {
				return err
			}
		}
		initLen, err := r.ReadU32()
		if err != nil {
			return err
		}
		if seg.Init, err = r.ReadBytes(int(initLen)); err != nil {
			return err
		}
		m.Data[i] = seg
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	pos := r.Position()
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags > LimitsHasMax|LimitsShared {
		return Limits{}, binary.Errorf(pos, "invalid limits flags 0x%02x", flags)
	}
	l := Limits{Shared: flags&LimitsShared != 0}
	minVal, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	l.Min = uint64(minVal)
	if flags&LimitsHasMax != 0 {
		maxVal, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		m := uint64(maxVal)
		l.Max = &m
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	pos := r.Position()
	t, err := readValType(r)
	if err != nil {
		return TableType{}, err
	}
	if !t.IsRef() {
		return TableType{}, binary.Errorf(pos, "invalid table type %s", t)
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: t, Limits: limits}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	pos := r.Position()
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, binary.Errorf(pos, "invalid mutability")
	}
	return GlobalType{ValType: t, Mutable: mut == 1}, nil
}

// readInitExpr copies a constant expression up to and including its end
// opcode. Only constant instructions are accepted.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	for {
		pos := r.Position()
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEnd:
			raw, _ := rawSince(r, start)
			return raw, nil
		case OpI32Const:
			_, err = r.ReadS32()
		case OpI64Const:
			_, err = r.ReadS64()
		case OpF32Const:
			_, err = r.ReadBytes(4)
		case OpF64Const:
			_, err = r.ReadBytes(8)
		case OpGlobalGet, OpRefFunc:
			_, err = r.ReadU32()
		case OpRefNull:
			_, err = readValType(r)
		default:
			return nil, binary.Errorf(pos, "opcode %s is not allowed in constant expressions", OpcodeName(op))
		}
		if err != nil {
			return nil, err
		}
	}
}

func rawSince(r *binary.Reader, start int) ([]byte, error) {
	end := r.Position()
	if err := r.Reset(start); err != nil {
		return nil, err
	}
	return r.ReadBytes(end - start)
}

// parseNames decodes the name section subsections this package tracks.
func parseNames(data []byte) (*Names, error) {
	r := binary.NewReader(data)
	names := &Names{}
	for !r.EOF() {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		sub, err := r.Sub(int(size))
		if err != nil {
			return nil, err
		}
		switch id {
		case 0:
			if names.Module, err = sub.ReadName(); err != nil {
				return nil, err
			}
		case 1:
			if names.Functions, err = readNameMap(sub); err != nil {
				return nil, err
			}
		case 2:
			count, err := sub.ReadU32()
			if err != nil {
				return nil, err
			}
			names.Locals = make(map[uint32]map[uint32]string, min(count, uint32(sub.Len())))
			for i := uint32(0); i < count; i++ {
				idx, err := sub.ReadU32()
				if err != nil {
					return nil, err
				}
				if names.Locals[idx], err = readNameMap(sub); err != nil {
					return nil, err
				}
			}
		}
	}
	return names, nil
}

func readNameMap(r *binary.Reader) (map[uint32]string, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string, min(count, uint32(r.Len())))
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		out[idx] = name
	}
	return out, nil
}
