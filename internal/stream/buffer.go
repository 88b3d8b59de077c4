package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// ErrMalformed is matched by every *MalformedError.
var ErrMalformed = errors.New("stream: malformed data")

// Codec decodes one frame from the front of buf. It reports incomplete
// input with an error matching io.ErrUnexpectedEOF; any other error means
// the leading bytes can never form a frame.
type Codec[F any] interface {
	Decode(buf []byte) (F, int, error)
}

// CodecFunc adapts a function to Codec.
type CodecFunc[F any] func(buf []byte) (F, int, error)

func (f CodecFunc[F]) Decode(buf []byte) (F, int, error) { return f(buf) }

// MalformedError carries the unconsumed bytes that failed to decode.
type MalformedError struct {
	// Offset is the stream position of Bytes[0].
	Offset uint64
	Bytes  []byte
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("stream: malformed data at offset %d (%d pending bytes): %v", e.Offset, len(e.Bytes), e.Err)
}

func (e *MalformedError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

// Stats are cumulative counters for one buffer.
type Stats struct {
	Ingested    uint64
	Consumed    uint64
	Frames      uint64
	Compactions uint64
}

// Buffer accumulates stream bytes and drains complete frames from them.
//
// Consumed bytes are dropped by advancing head; the live region
// data[head:] is moved to the front only on Ingest, and only when the
// append would otherwise reallocate. A buffer is single-owner.
type Buffer[F any] struct {
	codec Codec[F]
	data  []byte
	head  int
	stats Stats
	err   *MalformedError
}

func New[F any](codec Codec[F]) *Buffer[F] {
	return &Buffer[F]{codec: codec}
}

// Ingest appends chunk to the end of the pending bytes.
func (b *Buffer[F]) Ingest(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.stats.Ingested += uint64(len(chunk))
	if b.head > 0 && len(b.data)+len(chunk) > cap(b.data) {
		n := copy(b.data, b.data[b.head:])
		b.data = b.data[:n]
		b.head = 0
		b.stats.Compactions++
	}
	b.data = append(b.data, chunk...)
}

// Pending returns the bytes received but not yet consumed. The slice is
// only valid until the next Ingest or drain.
func (b *Buffer[F]) Pending() []byte { return b.data[b.head:] }

func (b *Buffer[F]) Len() int { return len(b.data) - b.head }

// Offset is the stream position of the first pending byte.
func (b *Buffer[F]) Offset() uint64 { return b.stats.Consumed }

func (b *Buffer[F]) Stats() Stats { return b.stats }

// Err returns the error that failed the buffer, if any.
func (b *Buffer[F]) Err() error {
	if b.err == nil {
		return nil
	}
	return b.err
}

// Frames decodes frames from the pending bytes until the codec reports
// incomplete input. Each frame is yielded with a nil error after its bytes
// are consumed. Malformed input yields a single *MalformedError and fails
// the buffer: every later drain yields the same error and no frames.
func (b *Buffer[F]) Frames() iter.Seq2[F, error] {
	return func(yield func(F, error) bool) {
		var zero F
		if b.err != nil {
			yield(zero, b.err)
			return
		}
		for b.Len() > 0 {
			f, n, err := b.codec.Decode(b.data[b.head:])
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				b.err = &MalformedError{
					Offset: b.stats.Consumed,
					Bytes:  append([]byte(nil), b.data[b.head:]...),
					Err:    err,
				}
				yield(zero, b.err)
				return
			}
			if n <= 0 || n > b.Len() {
				panic(fmt.Sprintf("stream: codec consumed %d of %d pending bytes", n, b.Len()))
			}
			b.consume(n)
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (b *Buffer[F]) consume(n int) {
	b.head += n
	b.stats.Consumed += uint64(n)
	b.stats.Frames++
	if b.head == len(b.data) {
		b.data = b.data[:0]
		b.head = 0
	}
}
