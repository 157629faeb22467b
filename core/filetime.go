package core

import (
	"fmt"
	"os"
	"time"
)

// FileTime returns the creation time of path where the platform records one,
// and the last-modified time otherwise.
func FileTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if !info.Mode().IsRegular() {
		return time.Time{}, fmt.Errorf("%w: %s is not a regular file", ErrUnreadableFile, path)
	}
	if birth, ok := birthTime(info); ok {
		return birth, nil
	}
	return info.ModTime(), nil
}

// FileYear derives the record year of path from created, falling back to
// the file timestamp.
func FileYear(path, created string) int {
	t, _ := FileTime(path)
	return DeriveYear(created, t)
}
