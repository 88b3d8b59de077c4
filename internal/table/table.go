package table

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/danmuck/defmt-print/internal/protocol/format"
)

// MaxIndex is the largest index that fits the u16 wire encoding.
const MaxIndex uint64 = 0xFFFF

var (
	ErrIndexTooLarge     = errors.New("table: index exceeds wire range")
	ErrMultipleTimestamp = errors.New("table: more than one timestamp entry")
	ErrUnknownTag        = errors.New("table: unknown tag")
)

// Level is the severity of a log statement.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel accepts level names case-insensitively.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("table: unknown level %q", raw)
	}
}

// Tag classifies an entry.
type Tag string

const (
	TagPrim      Tag = "defmt_prim"
	TagFmt       Tag = "defmt_fmt"
	TagStr       Tag = "defmt_str"
	TagTimestamp Tag = "defmt_timestamp"
	TagTrace     Tag = "defmt_trace"
	TagDebug     Tag = "defmt_debug"
	TagInfo      Tag = "defmt_info"
	TagWarn      Tag = "defmt_warn"
	TagError     Tag = "defmt_error"
)

// Level returns the severity of a log tag. ok is false for non-log tags.
func (t Tag) Level() (Level, bool) {
	switch t {
	case TagTrace:
		return LevelTrace, true
	case TagDebug:
		return LevelDebug, true
	case TagInfo:
		return LevelInfo, true
	case TagWarn:
		return LevelWarn, true
	case TagError:
		return LevelError, true
	}
	return 0, false
}

func (t Tag) known() bool {
	switch t {
	case TagPrim, TagFmt, TagStr, TagTimestamp:
		return true
	}
	_, ok := t.Level()
	return ok
}

// Entry is the template metadata stored at one index.
type Entry struct {
	Tag           Tag
	Format        string
	Package       string
	Disambiguator string

	Fragments []format.Fragment
	Params    []format.Param
}

// Table maps frame indices to entries. It is immutable after New.
type Table struct {
	version   string
	entries   map[uint64]Entry
	indices   []uint64
	timestamp *Entry
}

// New validates entries and parses every template once. Interned strings
// (defmt_str) are stored verbatim and never parsed.
func New(version string, entries map[uint64]Entry) (*Table, error) {
	t := &Table{
		version: version,
		entries: make(map[uint64]Entry, len(entries)),
		indices: make([]uint64, 0, len(entries)),
	}
	for idx, e := range entries {
		if idx > MaxIndex {
			return nil, fmt.Errorf("%w: %d", ErrIndexTooLarge, idx)
		}
		if !e.Tag.known() {
			return nil, fmt.Errorf("%w %q at index %d", ErrUnknownTag, e.Tag, idx)
		}
		if e.Tag != TagStr {
			frags, err := format.Parse(e.Format)
			if err != nil {
				return nil, fmt.Errorf("table: index %d (%q): %w", idx, e.Format, err)
			}
			params, err := format.Params(frags)
			if err != nil {
				return nil, fmt.Errorf("table: index %d (%q): %w", idx, e.Format, err)
			}
			e.Fragments, e.Params = frags, params
		}
		if e.Tag == TagTimestamp {
			if t.timestamp != nil {
				return nil, ErrMultipleTimestamp
			}
			ts := e
			t.timestamp = &ts
		}
		t.entries[idx] = e
		t.indices = append(t.indices, idx)
	}
	slices.Sort(t.indices)
	return t, nil
}

func (t *Table) Version() string { return t.version }

func (t *Table) Len() int { return len(t.entries) }

func (t *Table) Get(index uint64) (Entry, bool) {
	e, ok := t.entries[index]
	return e, ok
}

// Indices returns every index in ascending order.
func (t *Table) Indices() []uint64 {
	return slices.Clone(t.indices)
}

// Timestamp returns the timestamp format entry, if the image defines one.
func (t *Table) Timestamp() (Entry, bool) {
	if t.timestamp == nil {
		return Entry{}, false
	}
	return *t.timestamp, true
}
