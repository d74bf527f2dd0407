package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	dst := filepath.Join(dir, "b.mp4")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile() error = %v", err)
	}
	if IsRegularFile(src) {
		t.Error("source still exists")
	}
	if got := FileSize(dst); got != 4 {
		t.Errorf("FileSize() = %d, want 4", got)
	}

	if err := MoveFile(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	if IsRegularFile(dir) {
		t.Error("directory reported as regular file")
	}
	if IsRegularFile(filepath.Join(dir, "nope")) {
		t.Error("missing file reported as regular file")
	}
}
