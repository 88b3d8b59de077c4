package elf2table

import (
	"bytes"
	"debug/elf"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/defmt-print/internal/protocol/frame"
	"github.com/danmuck/defmt-print/internal/table"
)

const (
	SectionName   = ".defmt"
	versionPrefix = "_defmt_version_ = "
)

var (
	ErrNoDefmtData        = errors.New("elf2table: `.defmt` data not found")
	ErrNoVersion          = errors.New("elf2table: `_defmt_version_` symbol not found")
	ErrUnsupportedVersion = errors.New("elf2table: unsupported defmt version")
	ErrInvalidSymbol      = errors.New("elf2table: invalid .defmt symbol")
)

// Symbol is the part of an ELF symbol the table needs. Value is the
// offset of the symbol within .defmt, which is the frame index.
type Symbol struct {
	Name    string
	Value   uint64
	InDefmt bool
}

type symbolName struct {
	Package       string `json:"package"`
	Tag           string `json:"tag"`
	Data          string `json:"data"`
	Disambiguator string `json:"disambiguator"`
}

// Parse builds the symbol table from an ELF image. It fails with
// ErrNoDefmtData when the image has no .defmt section and with
// ErrUnsupportedVersion when the image was built for another wire version.
func Parse(image []byte) (*table.Table, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("elf2table: parse elf: %w", err)
	}
	defer f.Close()

	sec := f.Section(SectionName)
	if sec == nil {
		return nil, ErrNoDefmtData
	}
	secIndex := sectionIndex(f, sec)

	elfSyms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("elf2table: read symbols: %w", err)
	}
	syms := make([]Symbol, 0, len(elfSyms))
	for _, s := range elfSyms {
		in := int(s.Section) == secIndex
		v := s.Value
		if in {
			v -= sec.Addr
		}
		syms = append(syms, Symbol{Name: s.Name, Value: v, InDefmt: in})
	}

	tbl, err := FromSymbols(syms)
	if err != nil {
		return nil, err
	}
	if err := CheckVersion(tbl.Version()); err != nil {
		return nil, err
	}
	return tbl, nil
}

// FromSymbols builds a table from already-extracted symbols. Symbols
// outside .defmt only contribute the version marker.
func FromSymbols(syms []Symbol) (*table.Table, error) {
	var version string
	entries := make(map[uint64]table.Entry)
	for _, s := range syms {
		if v, ok := strings.CutPrefix(s.Name, versionPrefix); ok {
			version = v
			continue
		}
		if !s.InDefmt || !strings.HasPrefix(s.Name, "{") {
			continue
		}
		var sn symbolName
		if err := json.Unmarshal([]byte(s.Name), &sn); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidSymbol, s.Name, err)
		}
		if sn.Tag == "" {
			return nil, fmt.Errorf("%w %q: missing tag", ErrInvalidSymbol, s.Name)
		}
		if prev, dup := entries[s.Value]; dup {
			return nil, fmt.Errorf("%w: index %d used by %q and %q", ErrInvalidSymbol, s.Value, prev.Format, sn.Data)
		}
		entries[s.Value] = table.Entry{
			Tag:           table.Tag(sn.Tag),
			Format:        sn.Data,
			Package:       sn.Package,
			Disambiguator: sn.Disambiguator,
		}
	}
	if version == "" {
		return nil, ErrNoVersion
	}
	tbl, err := table.New(version, entries)
	if err != nil {
		return nil, fmt.Errorf("elf2table: %w", err)
	}
	return tbl, nil
}

// CheckVersion rejects images encoded for a wire version this decoder
// does not speak.
func CheckVersion(version string) error {
	if version != frame.Version {
		return fmt.Errorf("%w: image uses %q, decoder supports %q", ErrUnsupportedVersion, version, frame.Version)
	}
	return nil
}

func sectionIndex(f *elf.File, sec *elf.Section) int {
	for i, s := range f.Sections {
		if s == sec {
			return i
		}
	}
	return -1
}
