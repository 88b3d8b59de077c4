package printer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/defmt-print/internal/location"
	"github.com/danmuck/defmt-print/internal/observability"
	"github.com/danmuck/defmt-print/internal/protocol/frame"
	"github.com/danmuck/defmt-print/internal/sink"
	"github.com/danmuck/defmt-print/internal/stream"
	"github.com/danmuck/defmt-print/internal/table"
)

const DefaultReadBufferSize = 1024

// ErrUnterminated means the input ended inside a frame.
var ErrUnterminated = errors.New("printer: input ended with a partial frame")

// UnterminatedError carries the bytes left pending at end of input.
type UnterminatedError struct {
	Offset  uint64
	Pending []byte
}

func (e *UnterminatedError) Error() string {
	return fmt.Sprintf("printer: input ended with %d pending bytes at offset %d", len(e.Pending), e.Offset)
}

func (e *UnterminatedError) Unwrap() error { return ErrUnterminated }

type Options struct {
	ReadBufferSize int
	Limits         frame.Limits
}

func DefaultOptions() Options {
	return Options{
		ReadBufferSize: DefaultReadBufferSize,
		Limits:         frame.DefaultLimits(),
	}
}

// Printer owns the read, decode, join and emit cycle for one input.
type Printer struct {
	buf     *stream.Buffer[frame.Frame]
	joiner  *location.Joiner
	sink    sink.Sink
	readBuf []byte
	// compactions already reported to metrics
	compactions uint64
}

func New(tbl *table.Table, joiner *location.Joiner, out sink.Sink, opts Options) *Printer {
	size := opts.ReadBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	limits := opts.Limits
	if limits.MaxSliceLen == 0 {
		limits = frame.DefaultLimits()
	}
	return &Printer{
		buf:     stream.New[frame.Frame](frame.NewCodec(tbl, limits)),
		joiner:  joiner,
		sink:    out,
		readBuf: make([]byte, size),
	}
}

// Run blocks reading r until end of input. It returns nil when the input
// ends on a frame boundary, *UnterminatedError when it ends mid-frame, and
// *stream.MalformedError when undecodable bytes arrive.
func (p *Printer) Run(r io.Reader) error {
	for {
		n, readErr := r.Read(p.readBuf)
		if n > 0 {
			p.buf.Ingest(p.readBuf[:n])
			st := p.buf.Stats()
			observability.RecordIngest(n, st.Compactions-p.compactions)
			p.compactions = st.Compactions
			if err := p.drain(); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			return p.finish()
		}
		if readErr != nil {
			return fmt.Errorf("printer: read input: %w", readErr)
		}
	}
}

func (p *Printer) drain() error {
	for f, err := range p.buf.Frames() {
		if err != nil {
			var me *stream.MalformedError
			if errors.As(err, &me) {
				observability.RecordFailure(observability.FailureMalformed)
				log.Error().
					Uint64("offset", me.Offset).
					Str("bytes", hex.EncodeToString(me.Bytes)).
					AnErr("cause", me.Err).
					Msg("failed to decode defmt data")
			}
			return err
		}
		if err := p.emit(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) emit(f frame.Frame) error {
	rec := sink.Record{
		Level:   f.Level(),
		Message: f.Display(),
	}
	if ts, ok := f.Timestamp(); ok {
		rec.Timestamp = ts
	}
	md, ok := p.joiner.Join(f.Index())
	if ok {
		rec.Location = &md
	}
	observability.RecordFrame(f.Level(), ok)
	return p.sink.Emit(rec)
}

func (p *Printer) finish() error {
	if p.buf.Len() == 0 {
		return nil
	}
	observability.RecordFailure(observability.FailureUnterminated)
	pending := append([]byte(nil), p.buf.Pending()...)
	log.Error().
		Uint64("offset", p.buf.Offset()).
		Str("bytes", hex.EncodeToString(pending)).
		Msg("input ended inside a frame")
	return &UnterminatedError{Offset: p.buf.Offset(), Pending: pending}
}
