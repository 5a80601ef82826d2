// Package fsutil is the §6 Filesystem collaborator: the small set of
// primitives the core relies on without owning. Kept deliberately thin —
// stdlib os calls, no third-party wrapper in the pack covers plain
// stat/mkdir/touch/unlink better than os itself.
package fsutil

import (
	"os"
	"time"
)

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Mtime returns path's modification time. The zero Time is returned if the
// path does not exist.
func Mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Unlink removes path. A missing file is not an error.
func Unlink(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Touch sets path's modification time to now, creating an empty file if it
// does not already exist.
func Touch(path string) error {
	now := time.Now()
	if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		f.Close()
	} else if !os.IsExist(err) {
		return err
	}
	return os.Chtimes(path, now, now)
}

// MkdirP creates dir and any missing parents.
func MkdirP(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
