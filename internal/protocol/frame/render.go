package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/defmt-print/internal/protocol/format"
)

// Render substitutes the decoded arguments into the entry template.
func (m Message) Render() string {
	if len(m.Entry.Fragments) == 0 {
		return m.Entry.Format
	}
	var sb strings.Builder
	for _, frag := range m.Entry.Fragments {
		if frag.Param == nil {
			sb.WriteString(frag.Literal)
			continue
		}
		p := *frag.Param
		if p.Position >= len(m.Args) {
			// Params are validated contiguous at table load.
			panic(fmt.Sprintf("frame: position %d out of range for index %d", p.Position, m.Index))
		}
		writeValue(&sb, m.Args[p.Position].Value, p)
	}
	return sb.String()
}

func writeValue(sb *strings.Builder, v any, p format.Param) {
	switch v := v.(type) {
	case uint64:
		sb.WriteString(formatUint(v, p.Hint))
	case int64:
		if p.Hint == format.HintNone || p.Hint == format.HintDebug || p.Hint == format.HintMicros {
			sb.WriteString(formatInt(v, p.Hint))
			return
		}
		sb.WriteString(formatUint(uint64(v)&widthMask(p.Type), p.Hint))
	case float64:
		bits := 64
		if p.Type == format.TypeF32 {
			bits = 32
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, bits))
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case rune:
		if p.Hint == format.HintDebug {
			sb.WriteString(strconv.QuoteRune(v))
			return
		}
		sb.WriteRune(v)
	case string:
		if p.Hint == format.HintDebug {
			sb.WriteString(strconv.Quote(v))
			return
		}
		sb.WriteString(v)
	case []byte:
		writeBytes(sb, v, p.Hint)
	case Message:
		sb.WriteString(v.Render())
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}

func widthMask(t format.Type) uint64 {
	switch t {
	case format.TypeI8:
		return 0xFF
	case format.TypeI16:
		return 0xFFFF
	case format.TypeI32:
		return 0xFFFF_FFFF
	}
	return ^uint64(0)
}

func formatUint(v uint64, h format.Hint) string {
	switch h {
	case format.HintHex:
		return strconv.FormatUint(v, 16)
	case format.HintUpperHex:
		return strings.ToUpper(strconv.FormatUint(v, 16))
	case format.HintHexAlt:
		return "0x" + strconv.FormatUint(v, 16)
	case format.HintUpperHexAlt:
		return "0x" + strings.ToUpper(strconv.FormatUint(v, 16))
	case format.HintBinary:
		return strconv.FormatUint(v, 2)
	case format.HintBinaryAlt:
		return "0b" + strconv.FormatUint(v, 2)
	case format.HintOctal:
		return strconv.FormatUint(v, 8)
	case format.HintOctalAlt:
		return "0o" + strconv.FormatUint(v, 8)
	case format.HintMicros:
		return fmt.Sprintf("%d.%06d", v/1_000_000, v%1_000_000)
	}
	return strconv.FormatUint(v, 10)
}

func formatInt(v int64, h format.Hint) string {
	if h == format.HintMicros {
		sign := ""
		u := uint64(v)
		if v < 0 {
			sign, u = "-", uint64(-v)
		}
		return sign + formatUint(u, h)
	}
	return strconv.FormatInt(v, 10)
}

func writeBytes(sb *strings.Builder, b []byte, h format.Hint) {
	if h == format.HintASCII {
		sb.WriteString(`b"`)
		for _, c := range b {
			switch {
			case c == '"' || c == '\\':
				sb.WriteByte('\\')
				sb.WriteByte(c)
			case c == '\n':
				sb.WriteString(`\n`)
			case c == '\r':
				sb.WriteString(`\r`)
			case c == '\t':
				sb.WriteString(`\t`)
			case c >= 0x20 && c < 0x7f:
				sb.WriteByte(c)
			default:
				fmt.Fprintf(sb, `\x%02x`, c)
			}
		}
		sb.WriteByte('"')
		return
	}
	sb.WriteByte('[')
	for i, c := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatUint(uint64(c), h))
	}
	sb.WriteByte(']')
}
