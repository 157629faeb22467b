package scan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

var errDestinationExists = errors.New("destination already exists")

// MoveFile moves oldPath to newPath, creating missing parent folders. It
// refuses to overwrite an existing file and keeps the modification time.
func MoveFile(oldPath, newPath string) error {
	info, err := os.Stat(oldPath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("cannot move %q: it does not exist or is not a file", oldPath)
	}
	if filepath.Ext(newPath) == "" {
		return fmt.Errorf("cannot move %q: no file extension in %q", oldPath, newPath)
	}
	if _, err := os.Lstat(newPath); err == nil {
		return fmt.Errorf("cannot move %q to %q: %w", oldPath, newPath, errDestinationExists)
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("cannot move %q to %q: %w", oldPath, newPath, err)
	}

	if err := os.Link(oldPath, newPath); err == nil {
		return os.Remove(oldPath)
	} else if os.IsExist(err) {
		return fmt.Errorf("cannot move %q to %q: %w", oldPath, newPath, errDestinationExists)
	}

	if err := copyExclusive(oldPath, newPath, info); err != nil {
		return fmt.Errorf("cannot move %q to %q: %w", oldPath, newPath, err)
	}
	if err := os.Chtimes(newPath, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("cannot move %q to %q: %w", oldPath, newPath, err)
	}
	return os.Remove(oldPath)
}

func copyExclusive(src, dst string, info os.FileInfo) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		multierr.AppendInvoke(&err, multierr.Close(out))
		if err != nil {
			multierr.AppendInto(&err, removeIfExists(dst))
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
