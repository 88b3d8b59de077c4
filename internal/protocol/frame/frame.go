package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/defmt-print/internal/protocol/format"
	"github.com/danmuck/defmt-print/internal/table"
)

// Version is the wire version this codec decodes. Images built with a
// different encoder version are rejected at startup.
const Version = "0.2"

const (
	IndexLen        = 2
	MaxNestingDepth = 16
)

var (
	// ErrUnexpectedEOF means the buffer holds a strict prefix of a frame.
	ErrUnexpectedEOF = fmt.Errorf("frame: %w", io.ErrUnexpectedEOF)
	ErrMalformed     = errors.New("frame: malformed data")
)

// MalformedError describes why the leading bytes can never form a frame.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("frame: malformed data at byte %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Limits constrains decode memory use.
type Limits struct {
	MaxSliceLen uint64
}

func DefaultLimits() Limits {
	return Limits{MaxSliceLen: 1 << 20}
}

// Arg is one decoded argument value. Value holds uint64, int64, float64,
// bool, rune, string, []byte or Message depending on Param.Type.
type Arg struct {
	Param format.Param
	Value any
}

// Message is an entry plus its decoded arguments, indexed by position.
type Message struct {
	Index uint64
	Entry table.Entry
	Args  []Arg
}

// Frame is one decoded log event.
type Frame struct {
	msg       Message
	level     table.Level
	timestamp *Message
}

func (f Frame) Index() uint64 { return f.msg.Index }

func (f Frame) Level() table.Level { return f.level }

func (f Frame) Message() Message { return f.msg }

// Display renders the log message.
func (f Frame) Display() string { return f.msg.Render() }

// Timestamp renders the frame timestamp when the image defines one.
func (f Frame) Timestamp() (string, bool) {
	if f.timestamp == nil {
		return "", false
	}
	return f.timestamp.Render(), true
}
