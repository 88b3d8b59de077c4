package source

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var payload = []byte{0x01, 0x00, 0x02, 0x00, 0x07, 0xFD, 0xFF, 0x00, 0x00}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func readAll(t *testing.T, path, compression string) []byte {
	t.Helper()
	rc, err := Open(path, compression)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return got
}

func TestOpenPlainFile(t *testing.T) {
	path := writeFile(t, "capture.bin", payload)
	if got := readAll(t, path, CompressionAuto); !bytes.Equal(got, payload) {
		t.Fatalf("plain mismatch: %v", got)
	}
}

func TestOpenZstdByExtension(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	compressed := enc.EncodeAll(payload, nil)
	enc.Close()

	path := writeFile(t, "capture.bin.zst", compressed)
	if got := readAll(t, path, ""); !bytes.Equal(got, payload) {
		t.Fatalf("zstd mismatch: %v", got)
	}
}

func TestOpenLZ4Explicit(t *testing.T) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("lz4 write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("lz4 close: %v", err)
	}
	path := writeFile(t, "capture.raw", buf.Bytes())
	if got := readAll(t, path, CompressionLZ4); !bytes.Equal(got, payload) {
		t.Fatalf("lz4 mismatch: %v", got)
	}
}

func TestOpenNoneIgnoresExtension(t *testing.T) {
	path := writeFile(t, "capture.zst", payload)
	if got := readAll(t, path, CompressionNone); !bytes.Equal(got, payload) {
		t.Fatalf("none mismatch: %v", got)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.bin"), CompressionAuto); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name, compression, want string
	}{
		{"", CompressionAuto, CompressionNone},
		{"a.ZST", "", CompressionZstd},
		{"a.lz4", CompressionAuto, CompressionLZ4},
		{"a.lz4", CompressionNone, CompressionNone},
		{"", "ZSTD", CompressionZstd},
	}
	for _, tc := range cases {
		got, err := Resolve(tc.name, tc.compression)
		if err != nil || got != tc.want {
			t.Fatalf("Resolve(%q, %q) = %q, %v; want %q", tc.name, tc.compression, got, err, tc.want)
		}
	}
	if _, err := Resolve("", "gzip"); !errors.Is(err, ErrUnknownCompression) {
		t.Fatalf("expected ErrUnknownCompression, got %v", err)
	}
}
