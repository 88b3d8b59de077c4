package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	CompressionAuto = "auto"
	CompressionNone = "none"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"

	Stdin = "-"
)

var ErrUnknownCompression = errors.New("source: unknown compression")

// Open returns the byte source named by path: stdin for "" or "-",
// otherwise the file. Compressed captures are decompressed transparently.
func Open(path, compression string) (io.ReadCloser, error) {
	var (
		raw  io.ReadCloser
		name string
	)
	if path == "" || path == Stdin {
		raw, name = io.NopCloser(os.Stdin), ""
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("source: open input (%s): %w", path, err)
		}
		raw, name = f, path
	}
	rc, err := Wrap(raw, name, compression)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return rc, nil
}

// Wrap layers decompression over raw. With CompressionAuto the codec is
// picked from the extension of name; unnamed streams are left as is.
func Wrap(raw io.ReadCloser, name, compression string) (io.ReadCloser, error) {
	c, err := Resolve(name, compression)
	if err != nil {
		return nil, err
	}
	switch c {
	case CompressionZstd:
		// Concurrency 1 decodes synchronously on the caller's goroutine.
		dec, err := zstd.NewReader(raw, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("source: zstd reader: %w", err)
		}
		return &layered{Reader: dec, close: func() error { dec.Close(); return raw.Close() }}, nil
	case CompressionLZ4:
		return &layered{Reader: lz4.NewReader(raw), close: raw.Close}, nil
	}
	return raw, nil
}

// Resolve turns the configured compression into a concrete codec name.
func Resolve(name, compression string) (string, error) {
	switch c := strings.ToLower(strings.TrimSpace(compression)); c {
	case "", CompressionAuto:
		switch strings.ToLower(filepath.Ext(name)) {
		case ".zst", ".zstd":
			return CompressionZstd, nil
		case ".lz4":
			return CompressionLZ4, nil
		}
		return CompressionNone, nil
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
	}
}

type layered struct {
	io.Reader
	close func() error
}

func (l *layered) Close() error { return l.close() }
