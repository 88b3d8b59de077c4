package sink

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danmuck/defmt-print/internal/location"
	"github.com/danmuck/defmt-print/internal/table"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"

	TimestampField = "ts"
	FileField      = "file"
	LineField      = "line"
	ModuleField    = "module"
)

var ErrUnknownFormat = errors.New("sink: unknown output format")

// Record is one resolved frame ready for rendering.
type Record struct {
	Level     table.Level
	Timestamp string
	Message   string
	Location  *location.Metadata
}

// Sink receives resolved frames.
type Sink interface {
	Emit(Record) error
}

// Options control how records are rendered.
type Options struct {
	Format   string
	NoColor  bool
	MinLevel table.Level
	// HideTimestamp drops device timestamps; HideLocation drops file, line
	// and module even when the joiner resolved them.
	HideTimestamp bool
	HideLocation  bool
}

// Zerolog renders records through a zerolog logger. It is separate from
// the diagnostics logger and normally writes to stdout.
type Zerolog struct {
	logger zerolog.Logger
	opts   Options
	out    *errWriter
}

func New(w io.Writer, opts Options) (*Zerolog, error) {
	out := &errWriter{w: w}
	var writer io.Writer
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatConsole:
		writer = zerolog.ConsoleWriter{
			Out:           out,
			NoColor:       opts.NoColor,
			PartsOrder:    []string{zerolog.LevelFieldName, TimestampField, zerolog.MessageFieldName},
			FieldsExclude: []string{TimestampField},
			// a record without a device timestamp leaves the ts part empty
			FormatFieldValue: func(v any) string {
				if v == nil {
					return ""
				}
				return fmt.Sprintf("%s", v)
			},
		}
	case FormatJSON:
		writer = out
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
	return &Zerolog{
		logger: zerolog.New(writer).Level(toZerolog(opts.MinLevel)),
		opts:   opts,
		out:    out,
	}, nil
}

func (z *Zerolog) Emit(r Record) error {
	evt := z.logger.WithLevel(toZerolog(r.Level))
	if evt == nil {
		return nil
	}
	if r.Timestamp != "" && !z.opts.HideTimestamp {
		evt = evt.Str(TimestampField, r.Timestamp)
	}
	if r.Location != nil && !z.opts.HideLocation {
		evt = evt.Str(FileField, r.Location.File).
			Uint64(LineField, r.Location.Line).
			Str(ModuleField, r.Location.Module)
	}
	evt.Msg(r.Message)
	return z.out.take()
}

func toZerolog(l table.Level) zerolog.Level {
	switch l {
	case table.LevelTrace:
		return zerolog.TraceLevel
	case table.LevelDebug:
		return zerolog.DebugLevel
	case table.LevelInfo:
		return zerolog.InfoLevel
	case table.LevelWarn:
		return zerolog.WarnLevel
	case table.LevelError:
		return zerolog.ErrorLevel
	}
	panic("sink: unknown level " + strconv.Itoa(int(l)))
}

// errWriter remembers the first write error; zerolog reports write
// failures only through its global ErrorHandler.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}

func (e *errWriter) take() error {
	err := e.err
	e.err = nil
	if err != nil {
		return fmt.Errorf("sink: write: %w", err)
	}
	return nil
}
