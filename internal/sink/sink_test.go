package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/defmt-print/internal/location"
	"github.com/danmuck/defmt-print/internal/table"
)

func TestConsoleRendersLocationAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf, Options{Format: FormatConsole, NoColor: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = s.Emit(Record{
		Level:     table.LevelWarn,
		Timestamp: "1.000002",
		Message:   "x=7 y=-3",
		Location:  &location.Metadata{File: "src/main.rs", Line: 42, Module: "app::main"},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"WRN", "1.000002", "x=7 y=-3", "file=src/main.rs", "line=42", "module=app::main"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "ts=") {
		t.Fatalf("timestamp must render as a part, not a field: %q", out)
	}
}

func TestConsoleWithoutTimestamp(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf, Options{NoColor: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Emit(Record{Level: table.LevelInfo, Message: "Hello, world!"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if out := buf.String(); strings.Contains(out, "nil") || !strings.Contains(out, "INF Hello, world!") {
		t.Fatalf("unexpected console output: %q", out)
	}
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf, Options{Format: FormatJSON})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = s.Emit(Record{
		Level:     table.LevelError,
		Timestamp: "0.5",
		Message:   "boom",
		Location:  &location.Metadata{File: "/other/lib.c", Line: 7, Module: "lib"},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode json %q: %v", buf.String(), err)
	}
	if got["level"] != "error" || got["message"] != "boom" || got[TimestampField] != "0.5" ||
		got[FileField] != "/other/lib.c" || got[LineField] != float64(7) || got[ModuleField] != "lib" {
		t.Fatalf("json mismatch: %v", got)
	}
}

func TestMinLevelAndHiddenLocation(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf, Options{Format: FormatJSON, MinLevel: table.LevelInfo, HideLocation: true, HideTimestamp: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	loc := &location.Metadata{File: "a.c", Line: 1}
	if err := s.Emit(Record{Level: table.LevelDebug, Message: "quiet", Location: loc}); err != nil {
		t.Fatalf("emit debug: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("debug record must be filtered: %q", buf.String())
	}
	if err := s.Emit(Record{Level: table.LevelInfo, Timestamp: "1", Message: "loud", Location: loc}); err != nil {
		t.Fatalf("emit info: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "loud") || strings.Contains(out, FileField) || strings.Contains(out, `"ts"`) {
		t.Fatalf("unexpected output: %q", out)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEmitReportsWriteErrors(t *testing.T) {
	s, err := New(failingWriter{}, Options{Format: FormatJSON})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Emit(Record{Level: table.LevelInfo, Message: "x"}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
