package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/defmt-print/internal/protocol/format"
	"github.com/danmuck/defmt-print/internal/table"
)

var (
	ErrUnknownIndex    = errors.New("frame: unknown index")
	ErrArgCount        = errors.New("frame: argument count mismatch")
	ErrArgTypeMismatch = errors.New("frame: argument type mismatch")
)

// Nested is the encoder input for a `{=?}` argument.
type Nested struct {
	Index uint64
	Args  []any
}

// Encoder produces wire bytes for frames of one table. Arguments are given
// in position order; integers may be any Go integer type, istr arguments
// are the index of the interned string.
type Encoder struct {
	tbl *table.Table
}

func NewEncoder(tbl *table.Table) *Encoder {
	return &Encoder{tbl: tbl}
}

// AppendFrame appends one frame to dst. ts holds the timestamp arguments
// and must be empty when the table has no timestamp entry.
func (e *Encoder) AppendFrame(dst []byte, index uint64, ts []any, args ...any) ([]byte, error) {
	entry, ok := e.tbl.Get(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(index))
	tsEntry, hasTS := e.tbl.Timestamp()
	if hasTS {
		var err error
		if dst, err = e.appendArgs(dst, tsEntry.Params, ts); err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
	} else if len(ts) > 0 {
		return nil, fmt.Errorf("%w: table has no timestamp entry", ErrArgCount)
	}
	return e.appendArgs(dst, entry.Params, args)
}

func (e *Encoder) appendArgs(dst []byte, params []format.Param, args []any) ([]byte, error) {
	if len(params) != len(args) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrArgCount, len(params), len(args))
	}
	var err error
	for i, p := range params {
		if dst, err = e.appendValue(dst, p, args[i]); err != nil {
			return nil, fmt.Errorf("position %d: %w", p.Position, err)
		}
	}
	return dst, nil
}

func (e *Encoder) appendValue(dst []byte, p format.Param, v any) ([]byte, error) {
	mismatch := func() error {
		return fmt.Errorf("%w: %T for %s", ErrArgTypeMismatch, v, p.Type)
	}
	switch p.Type {
	case format.TypeU8, format.TypeI8:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		return append(dst, byte(n)), nil
	case format.TypeU16, format.TypeI16:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint16(dst, uint16(n)), nil
	case format.TypeU32, format.TypeI32:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(n)), nil
	case format.TypeU64, format.TypeI64:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint64(dst, n), nil
	case format.TypeUsize:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		return binary.AppendUvarint(dst, n), nil
	case format.TypeIsize:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		s := int64(n)
		return binary.AppendUvarint(dst, uint64(s<<1)^uint64(s>>63)), nil
	case format.TypeF32:
		f, ok := v.(float32)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(f)), nil
	case format.TypeF64:
		f, ok := v.(float64)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f)), nil
	case format.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch()
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case format.TypeChar:
		r, ok := v.(rune)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(r)), nil
	case format.TypeStr:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch()
		}
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		return append(dst, s...), nil
	case format.TypeBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, mismatch()
		}
		dst = binary.AppendUvarint(dst, uint64(len(b)))
		return append(dst, b...), nil
	case format.TypeByteArray:
		b, ok := v.([]byte)
		if !ok || len(b) != p.Len {
			return nil, mismatch()
		}
		return append(dst, b...), nil
	case format.TypeIStr:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		return binary.LittleEndian.AppendUint16(dst, uint16(n)), nil
	case format.TypeFormat:
		nested, ok := v.(Nested)
		if !ok {
			return nil, mismatch()
		}
		entry, ok := e.tbl.Get(nested.Index)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownIndex, nested.Index)
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(nested.Index))
		return e.appendArgs(dst, entry.Params, nested.Args)
	}
	return nil, mismatch()
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case int8:
		return uint64(n), true
	case int16:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case int:
		return uint64(n), true
	}
	return 0, false
}
