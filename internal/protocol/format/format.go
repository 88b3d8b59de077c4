package format

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrUnclosedParam   = errors.New("format: unclosed parameter")
	ErrUnmatchedBrace  = errors.New("format: unmatched '}'")
	ErrUnknownType     = errors.New("format: unknown parameter type")
	ErrUnknownHint     = errors.New("format: unknown display hint")
	ErrInvalidPosition = errors.New("format: invalid parameter position")
	ErrTypeConflict    = errors.New("format: parameter position used with two types")
	ErrPositionGap     = errors.New("format: parameter positions are not contiguous")
)

// Type is the wire type of one parameter.
type Type int

const (
	TypeU8 Type = iota + 1
	TypeU16
	TypeU32
	TypeU64
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeUsize
	TypeIsize
	TypeF32
	TypeF64
	TypeBool
	TypeChar
	TypeStr
	TypeIStr
	TypeBytes
	TypeByteArray
	TypeFormat
)

var typeNames = map[string]Type{
	"u8":    TypeU8,
	"u16":   TypeU16,
	"u32":   TypeU32,
	"u64":   TypeU64,
	"i8":    TypeI8,
	"i16":   TypeI16,
	"i32":   TypeI32,
	"i64":   TypeI64,
	"usize": TypeUsize,
	"isize": TypeIsize,
	"f32":   TypeF32,
	"f64":   TypeF64,
	"bool":  TypeBool,
	"char":  TypeChar,
	"str":   TypeStr,
	"istr":  TypeIStr,
	"[u8]":  TypeBytes,
	"?":     TypeFormat,
}

func (t Type) String() string {
	if t == TypeByteArray {
		return "[u8; N]"
	}
	for name, v := range typeNames {
		if v == t {
			return name
		}
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Unsigned reports whether values of t decode to an unsigned integer.
func (t Type) Unsigned() bool {
	switch t {
	case TypeU8, TypeU16, TypeU32, TypeU64, TypeUsize:
		return true
	}
	return false
}

// Signed reports whether values of t decode to a signed integer.
func (t Type) Signed() bool {
	switch t {
	case TypeI8, TypeI16, TypeI32, TypeI64, TypeIsize:
		return true
	}
	return false
}

// Hint selects how a decoded value is displayed.
type Hint int

const (
	HintNone Hint = iota
	HintHex
	HintUpperHex
	HintHexAlt
	HintUpperHexAlt
	HintBinary
	HintBinaryAlt
	HintOctal
	HintOctalAlt
	HintASCII
	HintMicros
	HintDebug
)

var hintNames = map[string]Hint{
	"":   HintNone,
	"x":  HintHex,
	"X":  HintUpperHex,
	"#x": HintHexAlt,
	"#X": HintUpperHexAlt,
	"b":  HintBinary,
	"#b": HintBinaryAlt,
	"o":  HintOctal,
	"#o": HintOctalAlt,
	"a":  HintASCII,
	"us": HintMicros,
	"?":  HintDebug,
}

// Param is one `{...}` placeholder.
type Param struct {
	Position int
	Type     Type
	// Len is the element count of a [u8; N] parameter.
	Len  int
	Hint Hint
}

// Fragment is either a literal run of text or a parameter.
type Fragment struct {
	Literal string
	Param   *Param
}

// Parse splits a format template into fragments.
func Parse(s string) ([]Fragment, error) {
	var (
		frags    []Fragment
		lit      strings.Builder
		implicit int
	)
	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, Fragment{Literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w at offset %d", ErrUnclosedParam, i)
			}
			p, err := parseParam(s[i+1:i+1+end], &implicit)
			if err != nil {
				return nil, err
			}
			flush()
			frags = append(frags, Fragment{Param: &p})
			i += end + 2
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, fmt.Errorf("%w at offset %d", ErrUnmatchedBrace, i)
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	if _, err := Params(frags); err != nil {
		return nil, err
	}
	return frags, nil
}

func parseParam(body string, implicit *int) (Param, error) {
	posEnd := strings.IndexAny(body, "=:")
	if posEnd < 0 {
		posEnd = len(body)
	}
	posStr := strings.TrimSpace(body[:posEnd])
	rest := body[posEnd:]

	typStr, hintStr := "?", ""
	switch {
	case strings.HasPrefix(rest, "="):
		rest = rest[1:]
		if idx := strings.IndexByte(rest, ':'); idx >= 0 {
			typStr, hintStr = rest[:idx], rest[idx+1:]
		} else {
			typStr = rest
		}
	case strings.HasPrefix(rest, ":"):
		hintStr = rest[1:]
	}

	var p Param
	if posStr == "" {
		p.Position = *implicit
		*implicit++
	} else {
		pos, err := strconv.Atoi(posStr)
		if err != nil || pos < 0 {
			return Param{}, fmt.Errorf("%w: %q", ErrInvalidPosition, posStr)
		}
		p.Position = pos
	}

	typ, n, err := parseType(strings.TrimSpace(typStr))
	if err != nil {
		return Param{}, err
	}
	p.Type, p.Len = typ, n

	hint, ok := hintNames[strings.TrimSpace(hintStr)]
	if !ok {
		return Param{}, fmt.Errorf("%w: %q", ErrUnknownHint, hintStr)
	}
	p.Hint = hint
	return p, nil
}

func parseType(s string) (Type, int, error) {
	if t, ok := typeNames[s]; ok {
		return t, 0, nil
	}
	if strings.HasPrefix(s, "[u8;") && strings.HasSuffix(s, "]") {
		n, err := strconv.Atoi(strings.TrimSpace(s[len("[u8;") : len(s)-1]))
		if err == nil && n >= 0 {
			return TypeByteArray, n, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Params returns the distinct parameters of frags ordered by position,
// which is the order their values appear on the wire.
func Params(frags []Fragment) ([]Param, error) {
	byPos := make(map[int]Param)
	for _, f := range frags {
		if f.Param == nil {
			continue
		}
		p := *f.Param
		if prev, ok := byPos[p.Position]; ok {
			if prev.Type != p.Type || prev.Len != p.Len {
				return nil, fmt.Errorf("%w: position %d is %s and %s", ErrTypeConflict, p.Position, prev.Type, p.Type)
			}
			continue
		}
		byPos[p.Position] = p
	}
	out := make([]Param, 0, len(byPos))
	for _, p := range byPos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	for i, p := range out {
		if p.Position != i {
			return nil, fmt.Errorf("%w: missing position %d", ErrPositionGap, i)
		}
	}
	return out, nil
}
