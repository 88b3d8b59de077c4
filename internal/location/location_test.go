package location

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestPartialCoverageDisablesEveryFrame(t *testing.T) {
	logs := captureLog(t)
	locs := Table{
		1: {File: "/home/u/proj/src/a.rs", Line: 1, Module: "app"},
		2: {File: "/home/u/proj/src/b.rs", Line: 2, Module: "app"},
	}
	j := NewJoiner(locs, []uint64{1, 2, 3}, "/home/u/proj")
	if j.Enabled() {
		t.Fatalf("partial coverage must disable locations")
	}
	for _, idx := range []uint64{1, 2, 3} {
		if _, ok := j.Join(idx); ok {
			t.Fatalf("index %d carried location metadata", idx)
		}
	}
	if n := strings.Count(logs.String(), "location info is incomplete"); n != 1 {
		t.Fatalf("expected exactly one coverage warning, got %d: %s", n, logs.String())
	}
	if !strings.Contains(logs.String(), `"missing":1`) {
		t.Fatalf("warning missing count: %s", logs.String())
	}
}

func TestAbsentTableDisablesLocations(t *testing.T) {
	captureLog(t)
	j := NewJoiner(nil, []uint64{1}, "/tmp")
	if _, ok := j.Join(1); ok || j.Enabled() {
		t.Fatalf("nil table must disable locations")
	}
}

func TestUnavailableWarnsOnceWithCause(t *testing.T) {
	logs := captureLog(t)
	j := Unavailable(errors.New("truncated .debug_info"))
	if j.Enabled() {
		t.Fatalf("unavailable joiner must be disabled")
	}
	if _, ok := j.Join(1); ok {
		t.Fatalf("unavailable joiner returned metadata")
	}
	if n := strings.Count(logs.String(), "location info"); n != 1 {
		t.Fatalf("expected one warning, got %d: %s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "truncated .debug_info") {
		t.Fatalf("warning lost its cause: %s", logs.String())
	}
}

func TestEmptyTableWarnsAboutDWARF(t *testing.T) {
	logs := captureLog(t)
	j := NewJoiner(Table{}, []uint64{1}, "/tmp")
	if j.Enabled() {
		t.Fatalf("empty table must disable locations")
	}
	if !strings.Contains(logs.String(), "insufficient DWARF info") {
		t.Fatalf("expected DWARF warning, got %s", logs.String())
	}
}

func TestJoinRelativizesUnderReferenceDir(t *testing.T) {
	captureLog(t)
	locs := Table{
		1: {File: "/home/u/proj/src/main.c", Line: 42, Module: "app::main"},
		2: {File: "/other/lib.c", Line: 7, Module: "lib"},
	}
	j := NewJoiner(locs, []uint64{1, 2}, "/home/u/proj")
	md, ok := j.Join(1)
	if !ok || md.File != "src/main.c" || md.Line != 42 || md.Module != "app::main" {
		t.Fatalf("relative join mismatch: %+v ok=%v", md, ok)
	}
	md, ok = j.Join(2)
	if !ok || md.File != "/other/lib.c" || md.Line != 7 || md.Module != "lib" {
		t.Fatalf("absolute join mismatch: %+v ok=%v", md, ok)
	}
}

func TestJoinMissingIndexPanics(t *testing.T) {
	captureLog(t)
	j := NewJoiner(Table{1: {File: "/a.c", Line: 1}}, []uint64{1}, "/")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for index outside the checked set")
		}
	}()
	j.Join(9)
}

func TestRelativize(t *testing.T) {
	cases := []struct {
		path, ref, want string
	}{
		{"/home/u/proj/src/main.c", "/home/u/proj", "src/main.c"},
		{"/home/u/proj/src/main.c", "/home/u/proj/", "src/main.c"},
		{"/other/lib.c", "/home/u/proj", "/other/lib.c"},
		{"/home/u/projX/a.c", "/home/u/proj", "/home/u/projX/a.c"},
		{"/home/u/proj", "/home/u/proj", "/home/u/proj"},
		{"/home/u/proj/../x.c", "/home/u/proj", "/home/u/proj/../x.c"},
		{"src/rel.c", "/home/u/proj", "src/rel.c"},
		{"/a/b.c", "", "/a/b.c"},
	}
	for _, tc := range cases {
		if got := Relativize(tc.path, tc.ref); got != tc.want {
			t.Fatalf("Relativize(%q, %q) = %q, want %q", tc.path, tc.ref, got, tc.want)
		}
	}
}

func TestCovers(t *testing.T) {
	locs := Table{1: {}, 2: {}}
	if !locs.Covers([]uint64{1, 2}) || locs.Covers([]uint64{1, 2, 3}) {
		t.Fatalf("covers mismatch")
	}
	if got := locs.Missing([]uint64{3, 1, 4}); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("missing mismatch: %v", got)
	}
}
