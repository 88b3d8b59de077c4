package fixture

import (
	"bytes"
	"encoding/binary"
)

// DebugUnit describes one DWARF 4 compile unit with 32-bit addresses.
// Files are relative to CompDir; DebugVar.File numbers them from 1.
type DebugUnit struct {
	Name    string
	CompDir string
	Files   []string
	Root    DebugScope
}

// DebugScope is the body of the unit (Namespace "") or of a namespace.
type DebugScope struct {
	Namespace string
	Vars      []DebugVar
	Scopes    []DebugScope
}

type DebugVar struct {
	Name string
	File uint8
	Line uint8
	Addr uint32
	// FrameRelative emits a DW_OP_fbreg location instead of DW_OP_addr.
	FrameRelative bool
}

const (
	abbrevUnit = 1 + iota
	abbrevNamespace
	abbrevVariable
)

// DWARF constants used by the encoder.
const (
	tagCompileUnit = 0x11
	tagNamespace   = 0x39
	tagVariable    = 0x34

	atLocation = 0x02
	atName     = 0x03
	atStmtList = 0x10
	atCompDir  = 0x1b
	atDeclFile = 0x3a
	atDeclLine = 0x3b

	formData1     = 0x0b
	formString    = 0x08
	formSecOffset = 0x17
	formExprloc   = 0x18

	opAddr  = 0x03
	opFbreg = 0x91
)

func (u DebugUnit) sections() []rawSection {
	return []rawSection{
		{name: ".debug_abbrev", data: debugAbbrev()},
		{name: ".debug_info", data: u.debugInfo()},
		{name: ".debug_line", data: u.debugLine()},
	}
}

func debugAbbrev() []byte {
	var b bytes.Buffer
	decl := func(code, tag byte, children bool, attrs ...byte) {
		b.WriteByte(code)
		b.WriteByte(tag)
		if children {
			b.WriteByte(1)
		} else {
			b.WriteByte(0)
		}
		b.Write(attrs)
		b.Write([]byte{0, 0})
	}
	decl(abbrevUnit, tagCompileUnit, true,
		atName, formString, atCompDir, formString, atStmtList, formSecOffset)
	decl(abbrevNamespace, tagNamespace, true, atName, formString)
	decl(abbrevVariable, tagVariable, false,
		atName, formString, atDeclFile, formData1, atDeclLine, formData1, atLocation, formExprloc)
	b.WriteByte(0)
	return b.Bytes()
}

func (u DebugUnit) debugInfo() []byte {
	var dies bytes.Buffer
	dies.WriteByte(abbrevUnit)
	writeString(&dies, u.Name)
	writeString(&dies, u.CompDir)
	dies.Write(binary.LittleEndian.AppendUint32(nil, 0))
	u.Root.write(&dies)

	var b bytes.Buffer
	b.Write(binary.LittleEndian.AppendUint32(nil, uint32(2+4+1+dies.Len())))
	b.Write(binary.LittleEndian.AppendUint16(nil, 4))
	b.Write(binary.LittleEndian.AppendUint32(nil, 0))
	b.WriteByte(4)
	b.Write(dies.Bytes())
	return b.Bytes()
}

// write emits the scope's children and the null entry closing its parent.
func (s DebugScope) write(b *bytes.Buffer) {
	for _, v := range s.Vars {
		b.WriteByte(abbrevVariable)
		writeString(b, v.Name)
		b.WriteByte(v.File)
		b.WriteByte(v.Line)
		if v.FrameRelative {
			b.Write([]byte{2, opFbreg, 0x08})
			continue
		}
		b.WriteByte(5)
		b.WriteByte(opAddr)
		b.Write(binary.LittleEndian.AppendUint32(nil, v.Addr))
	}
	for _, child := range s.Scopes {
		b.WriteByte(abbrevNamespace)
		writeString(b, child.Namespace)
		child.write(b)
	}
	b.WriteByte(0)
}

// debugLine writes a version 4 line table header with no program.
func (u DebugUnit) debugLine() []byte {
	var hdr bytes.Buffer
	hdr.WriteByte(1)                                      // minimum_instruction_length
	hdr.WriteByte(1)                                      // maximum_operations_per_instruction
	hdr.WriteByte(1)                                      // default_is_stmt
	hdr.WriteByte(0xfb)                                   // line_base -5
	hdr.WriteByte(14)                                     // line_range
	hdr.WriteByte(13)                                     // opcode_base
	hdr.Write([]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}) // standard_opcode_lengths
	hdr.WriteByte(0)                                      // no include_directories
	for _, f := range u.Files {
		writeString(&hdr, f)
		hdr.Write([]byte{0, 0, 0}) // dir, mtime, length
	}
	hdr.WriteByte(0)

	var b bytes.Buffer
	b.Write(binary.LittleEndian.AppendUint32(nil, uint32(2+4+hdr.Len())))
	b.Write(binary.LittleEndian.AppendUint16(nil, 4))
	b.Write(binary.LittleEndian.AppendUint32(nil, uint32(hdr.Len())))
	b.Write(hdr.Bytes())
	return b.Bytes()
}

func writeString(b *bytes.Buffer, s string) {
	b.WriteString(s)
	b.WriteByte(0)
}
