package fixture

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"encoding/json"
	"slices"
	"testing"

	"github.com/danmuck/defmt-print/internal/table"
)

// DefmtSection is the section index BuildELF gives .defmt (or .text).
const DefmtSection elf.SectionIndex = 1

type ELFSymbol struct {
	Name    string
	Section elf.SectionIndex
	Value   uint64
}

// VersionSymbol is the absolute marker symbol naming the wire version.
func VersionSymbol(version string) ELFSymbol {
	return ELFSymbol{Name: "_defmt_version_ = " + version, Section: elf.SHN_ABS}
}

// DefmtSymbol names an entry the way the firmware linker does.
func DefmtSymbol(t testing.TB, tag table.Tag, format string, index uint64) ELFSymbol {
	t.Helper()
	name, err := json.Marshal(map[string]string{
		"package":       "app",
		"tag":           string(tag),
		"data":          format,
		"disambiguator": "42",
	})
	if err != nil {
		t.Fatalf("marshal symbol name: %v", err)
	}
	return ELFSymbol{Name: string(name), Section: DefmtSection, Value: index}
}

// ELF writes an image carrying Entries at version 0.2.
func ELF(t testing.TB) []byte {
	t.Helper()
	entries := Entries()
	indices := make([]uint64, 0, len(entries))
	for idx := range entries {
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	syms := []ELFSymbol{VersionSymbol("0.2")}
	for _, idx := range indices {
		syms = append(syms, DefmtSymbol(t, entries[idx].Tag, entries[idx].Format, idx))
	}
	return BuildELF(t, true, 0, syms)
}

// ELFWithLocations is ELF plus DWARF declaring every entry in
// src/main.rs under module app, at line 10*index.
func ELFWithLocations(t testing.TB, compDir string) []byte {
	t.Helper()
	entries := Entries()
	indices := make([]uint64, 0, len(entries))
	for idx := range entries {
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	syms := []ELFSymbol{VersionSymbol("0.2")}
	app := DebugScope{Namespace: "app"}
	for _, idx := range indices {
		syms = append(syms, DefmtSymbol(t, entries[idx].Tag, entries[idx].Format, idx))
		app.Vars = append(app.Vars, DebugVar{Name: "DEFMT_LOG", File: 1, Line: uint8(10 * idx), Addr: uint32(idx)})
	}
	return BuildELFWithDWARF(t, 0, syms, DebugUnit{
		Name:    "src/main.rs",
		CompDir: compDir,
		Files:   []string{"src/main.rs"},
		Root:    DebugScope{Scopes: []DebugScope{app}},
	})
}

// BuildELF writes a minimal little-endian ELF64 image with a .defmt
// section (or .text when defmt is false), a symbol table and no DWARF.
func BuildELF(t testing.TB, defmt bool, defmtAddr uint64, syms []ELFSymbol) []byte {
	t.Helper()
	first := ".defmt"
	if !defmt {
		first = ".text"
	}
	return buildELF(t, first, defmtAddr, syms, nil)
}

// BuildELFWithDWARF is BuildELF plus the debug sections rendered from unit.
func BuildELFWithDWARF(t testing.TB, defmtAddr uint64, syms []ELFSymbol, unit DebugUnit) []byte {
	t.Helper()
	return buildELF(t, ".defmt", defmtAddr, syms, unit.sections())
}

type rawSection struct {
	name string
	data []byte
}

func buildELF(t testing.TB, first string, defmtAddr uint64, syms []ELFSymbol, extra []rawSection) []byte {
	t.Helper()
	var strtab bytes.Buffer
	strtab.WriteByte(0)
	var symtab bytes.Buffer
	mustWrite(t, &symtab, elf.Sym64{})
	for _, s := range syms {
		off := uint32(strtab.Len())
		strtab.WriteString(s.Name)
		strtab.WriteByte(0)
		mustWrite(t, &symtab, elf.Sym64{
			Name:  off,
			Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT),
			Shndx: uint16(s.Section),
			Value: s.Value,
		})
	}

	// .defmt stays at DefmtSection; debug sections follow it.
	chunks := []rawSection{{name: first, data: make([]byte, 16)}}
	chunks = append(chunks, extra...)
	symtabIdx := len(chunks) + 1
	chunks = append(chunks,
		rawSection{name: ".symtab", data: symtab.Bytes()},
		rawSection{name: ".strtab", data: strtab.Bytes()},
	)
	shstrtab := []byte{0}
	nameOff := make([]uint32, len(chunks)+1)
	for i, c := range chunks {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, c.name...), 0)
	}
	nameOff[len(chunks)] = uint32(len(shstrtab))
	shstrtab = append(append(shstrtab, ".shstrtab"...), 0)
	chunks = append(chunks, rawSection{name: ".shstrtab", data: shstrtab})

	const headerSize = 64
	offsets := make([]uint64, len(chunks))
	var body bytes.Buffer
	pos := uint64(headerSize)
	for i, c := range chunks {
		for pos%8 != 0 {
			body.WriteByte(0)
			pos++
		}
		offsets[i] = pos
		body.Write(c.data)
		pos += uint64(len(c.data))
	}
	for pos%8 != 0 {
		body.WriteByte(0)
		pos++
	}
	shoff := pos

	sections := []elf.Section64{{}}
	for i, c := range chunks {
		sh := elf.Section64{
			Name:      nameOff[i],
			Type:      uint32(elf.SHT_PROGBITS),
			Off:       offsets[i],
			Size:      uint64(len(c.data)),
			Addralign: 1,
		}
		switch c.name {
		case first:
			sh.Addr = defmtAddr
		case ".symtab":
			sh.Type = uint32(elf.SHT_SYMTAB)
			sh.Link = uint32(symtabIdx + 1)
			sh.Info = 1
			sh.Addralign = 8
			sh.Entsize = 24
		case ".strtab", ".shstrtab":
			sh.Type = uint32(elf.SHT_STRTAB)
		}
		sections = append(sections, sh)
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	mustWrite(t, &out, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    headerSize,
		Shentsize: 64,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(len(sections) - 1),
	})
	out.Write(body.Bytes())
	for _, s := range sections {
		mustWrite(t, &out, s)
	}
	return out.Bytes()
}

func mustWrite(t testing.TB, buf *bytes.Buffer, v any) {
	t.Helper()
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		t.Fatalf("write %T: %v", v, err)
	}
}
