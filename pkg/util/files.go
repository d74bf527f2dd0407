package util

import (
	"io"
	"os"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// IsRegularFile reports whether path names an existing regular file.
// Directories and sockets never count as media.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// FileSize returns the size of path in bytes, or 0 when it cannot be stat'ed.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CleanupFiles removes multiple files, ignoring errors
func CleanupFiles(paths ...string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

// MoveFile renames src to dst, copying across filesystems when a rename
// is not possible.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
