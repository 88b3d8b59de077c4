package elf2table

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/danmuck/defmt-print/internal/location"
	"github.com/danmuck/defmt-print/internal/table"
)

const opAddr = 0x03 // DW_OP_addr

// Locations extracts the declaration site of every .defmt symbol from the
// image's DWARF. An image without debug info yields an empty table, which
// fails the coverage check downstream.
func Locations(image []byte, tbl *table.Table) (location.Table, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("elf2table: parse elf: %w", err)
	}
	defer f.Close()

	sec := f.Section(SectionName)
	if sec == nil {
		return nil, ErrNoDefmtData
	}
	if f.Section(".debug_info") == nil {
		return location.Table{}, nil
	}
	d, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("elf2table: load dwarf: %w", err)
	}
	return walk(d, f.ByteOrder, sec.Addr, tbl)
}

func walk(d *dwarf.Data, order binary.ByteOrder, base uint64, tbl *table.Table) (location.Table, error) {
	locs := make(location.Table)
	r := d.Reader()
	var (
		files []*dwarf.LineFile
		// one element per open entry with children: namespace name or ""
		scopes []string
	)
	for {
		e, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("elf2table: read dwarf: %w", err)
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			if len(scopes) > 0 {
				scopes = scopes[:len(scopes)-1]
			}
			continue
		}

		switch e.Tag {
		case dwarf.TagCompileUnit:
			files = nil
			lr, err := d.LineReader(e)
			if err != nil {
				return nil, fmt.Errorf("elf2table: read line table: %w", err)
			}
			if lr != nil {
				files = lr.Files()
			}
		case dwarf.TagVariable:
			loc, ok := e.Val(dwarf.AttrLocation).([]byte)
			if !ok {
				break
			}
			addr, ok := decodeAddr(loc, r.AddressSize(), order)
			if !ok || addr < base {
				break
			}
			idx := addr - base
			if _, ok := tbl.Get(idx); !ok {
				break
			}
			locs[idx] = location.Location{
				File:   declFile(e, files),
				Line:   declLine(e),
				Module: modulePath(scopes),
			}
		}

		if e.Children {
			name := ""
			if e.Tag == dwarf.TagNamespace {
				name, _ = e.Val(dwarf.AttrName).(string)
			}
			scopes = append(scopes, name)
		}
	}
	return locs, nil
}

// decodeAddr accepts a location expression that is exactly one DW_OP_addr.
func decodeAddr(expr []byte, size int, order binary.ByteOrder) (uint64, bool) {
	if len(expr) != 1+size || expr[0] != opAddr {
		return 0, false
	}
	switch size {
	case 4:
		return uint64(order.Uint32(expr[1:])), true
	case 8:
		return order.Uint64(expr[1:]), true
	}
	return 0, false
}

func declFile(e *dwarf.Entry, files []*dwarf.LineFile) string {
	idx, ok := e.Val(dwarf.AttrDeclFile).(int64)
	if !ok || idx < 0 || int(idx) >= len(files) || files[idx] == nil {
		return ""
	}
	return files[idx].Name
}

func declLine(e *dwarf.Entry) uint64 {
	line, ok := e.Val(dwarf.AttrDeclLine).(int64)
	if !ok || line < 0 {
		return 0
	}
	return uint64(line)
}

func modulePath(scopes []string) string {
	parts := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "::")
}
