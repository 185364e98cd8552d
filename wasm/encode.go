package wasm

import (
	"maps"
	"slices"

	"github.com/wippyai/wasm-jsapi/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format. Sections are
// written in canonical order; when Names is set the name section is
// regenerated from it and placed after the data section.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	section := func(id byte, n int, entry func(sec *binary.Writer, i int)) {
		if n == 0 {
			return
		}
		sec := binary.NewWriter()
		sec.WriteU32(uint32(n))
		for i := 0; i < n; i++ {
			entry(sec, i)
		}
		w.WriteSection(id, sec.Bytes())
	}

	section(SectionType, len(m.Types), func(sec *binary.Writer, i int) {
		sec.Byte(FuncTypeByte)
		writeValTypes(sec, m.Types[i].Params)
		writeValTypes(sec, m.Types[i].Results)
	})

	section(SectionImport, len(m.Imports), func(sec *binary.Writer, i int) {
		imp := m.Imports[i]
		sec.WriteName(imp.Module)
		sec.WriteName(imp.Name)
		sec.Byte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case KindFunc:
			sec.WriteU32(imp.Desc.TypeIdx)
		case KindTable:
			writeTableType(sec, *imp.Desc.Table)
		case KindMemory:
			writeLimits(sec, imp.Desc.Memory.Limits)
		case KindGlobal:
			writeGlobalType(sec, *imp.Desc.Global)
		}
	})

	section(SectionFunction, len(m.Funcs), func(sec *binary.Writer, i int) {
		sec.WriteU32(m.Funcs[i])
	})

	section(SectionTable, len(m.Tables), func(sec *binary.Writer, i int) {
		writeTableType(sec, m.Tables[i])
	})

	section(SectionMemory, len(m.Memories), func(sec *binary.Writer, i int) {
		writeLimits(sec, m.Memories[i].Limits)
	})

	section(SectionGlobal, len(m.Globals), func(sec *binary.Writer, i int) {
		writeGlobalType(sec, m.Globals[i].Type)
		sec.WriteBytes(m.Globals[i].Init)
	})

	section(SectionExport, len(m.Exports), func(sec *binary.Writer, i int) {
		exp := m.Exports[i]
		sec.WriteName(exp.Name)
		sec.Byte(exp.Kind)
		sec.WriteU32(exp.Idx)
	})

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		w.WriteSection(SectionStart, sec.Bytes())
	}

	section(SectionElement, len(m.Elements), func(sec *binary.Writer, i int) {
		writeElement(sec, m.Elements[i])
	})

	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		w.WriteSection(SectionDataCount, sec.Bytes())
	}

	section(SectionCode, len(m.Code), func(sec *binary.Writer, i int) {
		body := EncodeBody(m.Code[i].Locals, m.Code[i].Code)
		sec.WriteU32(uint32(len(body)))
		sec.WriteBytes(body)
	})

	section(SectionData, len(m.Data), func(sec *binary.Writer, i int) {
		d := m.Data[i]
		sec.WriteU32(d.Flags)
		if d.Flags == 2 {
			sec.WriteU32(d.MemIdx)
		}
		if d.Flags != 1 {
			sec.WriteBytes(d.Offset)
		}
		sec.WriteU32(uint32(len(d.Init)))
		sec.WriteBytes(d.Init)
	})

	for _, cs := range m.CustomSections {
		if cs.Name == "name" && m.Names != nil {
			continue
		}
		w.WriteCustomSection(cs.Name, cs.Data)
	}
	if m.Names != nil {
		w.WriteCustomSection("name", EncodeNames(m.Names))
	}

	return w.Bytes()
}

// EncodeBody encodes a function body without its size prefix: the locals
// declaration followed by code. Code must already end with OpEnd.
func EncodeBody(locals []LocalEntry, code []byte) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(locals)))
	for _, l := range locals {
		w.WriteU32(l.Count)
		w.Byte(byte(l.ValType))
	}
	w.WriteBytes(code)
	return w.Bytes()
}

// EncodeNames encodes the payload of a name custom section.
func EncodeNames(n *Names) []byte {
	w := binary.NewWriter()
	if n.Module != "" {
		sub := binary.NewWriter()
		sub.WriteName(n.Module)
		w.WriteSection(0, sub.Bytes())
	}
	if len(n.Functions) > 0 {
		sub := binary.NewWriter()
		writeNameMap(sub, n.Functions)
		w.WriteSection(1, sub.Bytes())
	}
	if len(n.Locals) > 0 {
		sub := binary.NewWriter()
		sub.WriteU32(uint32(len(n.Locals)))
		for _, fn := range slices.Sorted(maps.Keys(n.Locals)) {
			sub.WriteU32(fn)
			writeNameMap(sub, n.Locals[fn])
		}
		w.WriteSection(2, sub.Bytes())
	}
	return w.Bytes()
}

func writeNameMap(w *binary.Writer, names map[uint32]string) {
	w.WriteU32(uint32(len(names)))
	for _, idx := range slices.Sorted(maps.Keys(names)) {
		w.WriteU32(idx)
		w.WriteName(names[idx])
	}
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	w.Byte(flags)
	w.WriteU32(uint32(l.Min))
	if l.Max != nil {
		w.WriteU32(uint32(*l.Max))
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func writeElement(w *binary.Writer, elem Element) {
	w.WriteU32(elem.Flags)
	hasOffset := elem.Flags&0x01 == 0
	usesExprs := elem.Flags&0x04 != 0
	if elem.Flags&0x02 != 0 && hasOffset {
		w.WriteU32(elem.TableIdx)
	}
	if hasOffset {
		w.WriteBytes(elem.Offset)
	}
	if elem.Flags&0x03 != 0 {
		if usesExprs {
			w.Byte(byte(elem.Type))
		} else {
			w.Byte(0x00)
		}
	}
	if usesExprs {
		w.WriteU32(uint32(len(elem.Exprs)))
		for _, expr := range elem.Exprs {
			w.WriteBytes(expr)
		}
		return
	}
	w.WriteU32(uint32(len(elem.FuncIdxs)))
	for _, idx := range elem.FuncIdxs {
		w.WriteU32(idx)
	}
}
