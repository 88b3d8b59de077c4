package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/defmt-print/internal/protocol/frame"
	"github.com/danmuck/defmt-print/internal/testutil/fixture"
)

var errBadLength = errors.New("bad length byte")

// lengthCodec decodes [n][n bytes] records; a 0xFF length is malformed.
var lengthCodec = CodecFunc[string](func(buf []byte) (string, int, error) {
	if len(buf) == 0 {
		return "", 0, io.ErrUnexpectedEOF
	}
	if buf[0] == 0xFF {
		return "", 0, errBadLength
	}
	n := int(buf[0])
	if len(buf) < 1+n {
		return "", 0, io.ErrUnexpectedEOF
	}
	return string(buf[1 : 1+n]), 1 + n, nil
})

func drain[F any](t *testing.T, b *Buffer[F]) ([]F, error) {
	t.Helper()
	var out []F
	for f, err := range b.Frames() {
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func TestFramesDrainsEveryCompleteFrame(t *testing.T) {
	b := New[string](lengthCodec)
	b.Ingest([]byte{2, 'h', 'i', 3, 'f', 'o', 'o', 4, 'p'})
	got, err := drain(t, b)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 2 || got[0] != "hi" || got[1] != "foo" {
		t.Fatalf("frames mismatch: %q", got)
	}
	if !bytes.Equal(b.Pending(), []byte{4, 'p'}) {
		t.Fatalf("pending mismatch: %v", b.Pending())
	}
	if b.Offset() != 7 {
		t.Fatalf("offset mismatch: %d", b.Offset())
	}
}

func TestPartialDeliveryThenCompletion(t *testing.T) {
	tbl := fixture.Table(t)
	wire, err := frame.NewEncoder(tbl).AppendFrame(nil, fixture.Sensor, nil, float32(3.25), true, "half")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	whole, _, err := frame.Decode(wire, tbl)
	if err != nil {
		t.Fatalf("decode whole: %v", err)
	}

	b := New[frame.Frame](frame.NewCodec(tbl, frame.DefaultLimits()))
	mid := len(wire) / 2
	b.Ingest(wire[:mid])
	got, err := drain(t, b)
	if err != nil || len(got) != 0 {
		t.Fatalf("first half: frames=%d err=%v", len(got), err)
	}
	b.Ingest(wire[mid:])
	got, err = drain(t, b)
	if err != nil {
		t.Fatalf("second half: %v", err)
	}
	if len(got) != 1 || got[0].Display() != whole.Display() || got[0].Index() != whole.Index() {
		t.Fatalf("frame mismatch: %+v", got)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", b.Len())
	}
}

func TestByteAtATimeMatchesSingleChunk(t *testing.T) {
	tbl := fixture.TimestampTable(t)
	enc := frame.NewEncoder(tbl)
	var wire []byte
	var err error
	for i := 0; i < 50; i++ {
		wire, err = enc.AppendFrame(wire, fixture.Coords, []any{uint64(i * 1000)}, uint8(i), int16(-i))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		wire, err = enc.AppendFrame(wire, fixture.Sensor, []any{uint64(i)}, float32(i), i%2 == 0, "s")
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	render := func(frames []frame.Frame) []string {
		out := make([]string, 0, len(frames))
		for _, f := range frames {
			ts, _ := f.Timestamp()
			out = append(out, ts+" "+f.Display())
		}
		return out
	}

	whole := New[frame.Frame](frame.NewCodec(tbl, frame.DefaultLimits()))
	whole.Ingest(wire)
	want, err := drain(t, whole)
	if err != nil {
		t.Fatalf("drain whole: %v", err)
	}
	if len(want) != 100 {
		t.Fatalf("expected 100 frames, got %d", len(want))
	}

	for _, chunk := range []int{1, 2, 3, 7, 64} {
		b := New[frame.Frame](frame.NewCodec(tbl, frame.DefaultLimits()))
		var got []frame.Frame
		for off := 0; off < len(wire); off += chunk {
			end := min(off+chunk, len(wire))
			b.Ingest(wire[off:end])
			frames, err := drain(t, b)
			if err != nil {
				t.Fatalf("chunk=%d: drain: %v", chunk, err)
			}
			got = append(got, frames...)
		}
		if b.Len() != 0 {
			t.Fatalf("chunk=%d: %d bytes left over", chunk, b.Len())
		}
		g, w := render(got), render(want)
		if len(g) != len(w) {
			t.Fatalf("chunk=%d: frame count %d want %d", chunk, len(g), len(w))
		}
		for i := range w {
			if g[i] != w[i] {
				t.Fatalf("chunk=%d frame %d: got=%q want=%q", chunk, i, g[i], w[i])
			}
		}
		if st := b.Stats(); st.Consumed != uint64(len(wire)) || st.Ingested != uint64(len(wire)) || st.Frames != 100 {
			t.Fatalf("chunk=%d: stats mismatch: %+v", chunk, st)
		}
	}
}

func TestPendingEqualsInputMinusConsumedPrefix(t *testing.T) {
	input := []byte{1, 'a', 2, 'b', 'c', 5, 'd', 'e'}
	b := New[string](lengthCodec)
	b.Ingest(input)
	consumed := 0
	for f, err := range b.Frames() {
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		consumed += 1 + len(f)
		if !bytes.Equal(b.Pending(), input[consumed:]) {
			t.Fatalf("after %q: pending=%v want=%v", f, b.Pending(), input[consumed:])
		}
	}
	if consumed != 5 {
		t.Fatalf("expected 5 consumed bytes, got %d", consumed)
	}
}

func TestCompactionPreservesOrder(t *testing.T) {
	b := New[string](lengthCodec)
	var want []string
	var got []string
	for i := 0; i < 200; i++ {
		payload := []byte{byte('a' + i%26), byte('a' + (i+1)%26)}
		want = append(want, string(payload))
		// Split each record across two ingests so a tail is always pending.
		rec := append([]byte{2}, payload...)
		b.Ingest(rec[:2])
		frames, err := drain(t, b)
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		got = append(got, frames...)
		b.Ingest(rec[2:])
		frames, err = drain(t, b)
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		got = append(got, frames...)
	}
	if len(got) != len(want) {
		t.Fatalf("frame count %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got=%q want=%q", i, got[i], want[i])
		}
	}
}

func TestMalformedTerminatesAndSticks(t *testing.T) {
	b := New[string](lengthCodec)
	b.Ingest([]byte{1, 'x', 0xFF, 0xFF, 0xFF})
	got, err := drain(t, b)
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected the frame before the bad bytes, got %q", got)
	}
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MalformedError, got %v", err)
	}
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, errBadLength) {
		t.Fatalf("error chain mismatch: %v", err)
	}
	if me.Offset != 2 || !bytes.Equal(me.Bytes, []byte{0xFF, 0xFF, 0xFF}) {
		t.Fatalf("malformed detail mismatch: offset=%d bytes=%v", me.Offset, me.Bytes)
	}

	b.Ingest([]byte{1, 'y'})
	got, err = drain(t, b)
	if len(got) != 0 || !errors.Is(err, ErrMalformed) {
		t.Fatalf("failed buffer must yield no frames: frames=%q err=%v", got, err)
	}
	if b.Err() == nil {
		t.Fatalf("expected sticky error")
	}
}

func TestMalformedFrameCodecBytes(t *testing.T) {
	tbl := fixture.Table(t)
	b := New[frame.Frame](frame.NewCodec(tbl, frame.DefaultLimits()))
	b.Ingest([]byte{0xFF, 0xFF, 0xFF})
	got, err := drain(t, b)
	if len(got) != 0 {
		t.Fatalf("expected zero frames, got %d", len(got))
	}
	var me *MalformedError
	if !errors.As(err, &me) || !errors.Is(err, frame.ErrMalformed) {
		t.Fatalf("expected malformed frame error, got %v", err)
	}
	if !bytes.Equal(me.Bytes, []byte{0xFF, 0xFF, 0xFF}) {
		t.Fatalf("offending bytes mismatch: %v", me.Bytes)
	}
}

func TestEarlyBreakKeepsRemainingFrames(t *testing.T) {
	b := New[string](lengthCodec)
	b.Ingest([]byte{1, 'a', 1, 'b'})
	for range b.Frames() {
		break
	}
	if !bytes.Equal(b.Pending(), []byte{1, 'b'}) {
		t.Fatalf("pending mismatch after break: %v", b.Pending())
	}
	got, err := drain(t, b)
	if err != nil || len(got) != 1 || got[0] != "b" {
		t.Fatalf("resume mismatch: %q %v", got, err)
	}
}

func TestCodecContractViolationPanics(t *testing.T) {
	b := New[string](CodecFunc[string](func(buf []byte) (string, int, error) {
		return "", len(buf) + 1, nil
	}))
	b.Ingest([]byte{1})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for over-consumption")
		}
	}()
	drain(t, b)
}
