package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/danmuck/defmt-print/internal/protocol/format"
	"github.com/danmuck/defmt-print/internal/table"
)

// Codec decodes frames against a fixed table.
type Codec struct {
	tbl    *table.Table
	limits Limits
}

func NewCodec(tbl *table.Table, limits Limits) *Codec {
	return &Codec{tbl: tbl, limits: limits}
}

// Decode decodes exactly one frame from the front of buf and reports how
// many bytes it consumed. A strict prefix of a valid frame yields
// ErrUnexpectedEOF; bytes that can never form a frame yield *MalformedError.
func (c *Codec) Decode(buf []byte) (Frame, int, error) {
	d := decoder{buf: buf, tbl: c.tbl, limits: c.limits}
	f, err := d.frame()
	if err != nil {
		return Frame{}, 0, err
	}
	return f, d.pos, nil
}

// Decode is a convenience wrapper using DefaultLimits.
func Decode(buf []byte, tbl *table.Table) (Frame, int, error) {
	return NewCodec(tbl, DefaultLimits()).Decode(buf)
}

type decoder struct {
	buf    []byte
	pos    int
	depth  int
	tbl    *table.Table
	limits Limits
}

func (d *decoder) malformed(at int, reason string, args ...any) error {
	return &MalformedError{Offset: at, Reason: fmt.Sprintf(reason, args...)}
}

func (d *decoder) frame() (Frame, error) {
	at := d.pos
	idx, err := d.index()
	if err != nil {
		return Frame{}, err
	}
	entry, ok := d.tbl.Get(idx)
	if !ok {
		return Frame{}, d.malformed(at, "unknown index %d", idx)
	}
	level, ok := entry.Tag.Level()
	if !ok {
		return Frame{}, d.malformed(at, "index %d is a %s entry, not a log statement", idx, entry.Tag)
	}

	f := Frame{level: level}
	if ts, ok := d.tbl.Timestamp(); ok {
		args, err := d.args(ts.Params)
		if err != nil {
			return Frame{}, err
		}
		f.timestamp = &Message{Entry: ts, Args: args}
	}
	args, err := d.args(entry.Params)
	if err != nil {
		return Frame{}, err
	}
	f.msg = Message{Index: idx, Entry: entry, Args: args}
	return f, nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if len(d.buf)-d.pos < n {
		return nil, ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) index() (uint64, error) {
	b, err := d.take(IndexLen)
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint16(b)), nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n == 0 {
		return 0, ErrUnexpectedEOF
	}
	if n < 0 {
		return 0, d.malformed(d.pos, "varint overflows 64 bits")
	}
	d.pos += n
	return v, nil
}

func (d *decoder) sliceLen() (int, error) {
	at := d.pos
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > d.limits.MaxSliceLen {
		return 0, d.malformed(at, "slice length %d exceeds limit %d", n, d.limits.MaxSliceLen)
	}
	return int(n), nil
}

func (d *decoder) args(params []format.Param) ([]Arg, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make([]Arg, 0, len(params))
	for _, p := range params {
		v, err := d.value(p)
		if err != nil {
			return nil, err
		}
		out = append(out, Arg{Param: p, Value: v})
	}
	return out, nil
}

func (d *decoder) value(p format.Param) (any, error) {
	at := d.pos
	switch p.Type {
	case format.TypeU8, format.TypeI8, format.TypeBool:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		switch p.Type {
		case format.TypeU8:
			return uint64(b[0]), nil
		case format.TypeI8:
			return int64(int8(b[0])), nil
		}
		if b[0] > 1 {
			return nil, d.malformed(at, "invalid bool byte 0x%02x", b[0])
		}
		return b[0] == 1, nil
	case format.TypeU16, format.TypeI16:
		b, err := d.take(2)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint16(b)
		if p.Type == format.TypeI16 {
			return int64(int16(v)), nil
		}
		return uint64(v), nil
	case format.TypeU32, format.TypeI32, format.TypeF32, format.TypeChar:
		b, err := d.take(4)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint32(b)
		switch p.Type {
		case format.TypeI32:
			return int64(int32(v)), nil
		case format.TypeF32:
			return float64(math.Float32frombits(v)), nil
		case format.TypeChar:
			r := rune(v)
			if v > utf8.MaxRune || !utf8.ValidRune(r) {
				return nil, d.malformed(at, "invalid char U+%X", v)
			}
			return r, nil
		}
		return uint64(v), nil
	case format.TypeU64, format.TypeI64, format.TypeF64:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint64(b)
		switch p.Type {
		case format.TypeI64:
			return int64(v), nil
		case format.TypeF64:
			return math.Float64frombits(v), nil
		}
		return v, nil
	case format.TypeUsize:
		return d.uvarint()
	case format.TypeIsize:
		u, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		return int64(u>>1) ^ -int64(u&1), nil
	case format.TypeStr:
		n, err := d.sliceLen()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, d.malformed(at, "str argument is not valid UTF-8")
		}
		return string(b), nil
	case format.TypeBytes:
		n, err := d.sliceLen()
		if err != nil {
			return nil, err
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	case format.TypeByteArray:
		b, err := d.take(p.Len)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	case format.TypeIStr:
		idx, err := d.index()
		if err != nil {
			return nil, err
		}
		e, ok := d.tbl.Get(idx)
		if !ok || e.Tag != table.TagStr {
			return nil, d.malformed(at, "index %d is not an interned string", idx)
		}
		return e.Format, nil
	case format.TypeFormat:
		return d.nested(at)
	}
	return nil, d.malformed(at, "unsupported parameter type %s", p.Type)
}

func (d *decoder) nested(at int) (Message, error) {
	if d.depth >= MaxNestingDepth {
		return Message{}, d.malformed(at, "nesting deeper than %d", MaxNestingDepth)
	}
	idx, err := d.index()
	if err != nil {
		return Message{}, err
	}
	e, ok := d.tbl.Get(idx)
	if !ok || (e.Tag != table.TagFmt && e.Tag != table.TagPrim) {
		return Message{}, d.malformed(at, "index %d is not a format entry", idx)
	}
	d.depth++
	args, err := d.args(e.Params)
	d.depth--
	if err != nil {
		return Message{}, err
	}
	return Message{Index: idx, Entry: e, Args: args}, nil
}
