package main

import (
	"path/filepath"
	"testing"

	"github.com/danmuck/defmt-print/internal/testutil/testlog"
)

func TestWriteThenValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "defmt-print.toml")
	if err := run(false, false, "", path, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := run(true, false, path, "", false); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := run(false, false, "", path, false); err == nil {
		t.Fatalf("expected refusal without --force")
	}
	if err := run(false, false, "", path, true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
}

func TestValidateMissing(t *testing.T) {
	testlog.Start(t)
	if err := run(true, false, filepath.Join(t.TempDir(), "missing.toml"), "", false); err == nil {
		t.Fatalf("expected error for missing config")
	}
}
