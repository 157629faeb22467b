package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableFile means the file is missing or cannot be read.
	ErrUnreadableFile = errors.New("unreadable file")
	// ErrMalformedMetadata means a field is present but cannot be parsed.
	ErrMalformedMetadata = errors.New("malformed metadata")
	// ErrUnsupportedType means no handler serves the file extension.
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrToolsMissing means the ffmpeg/ffprobe executables are not on disk.
	ErrToolsMissing = errors.New("ffmpeg/ffprobe executables missing")
	// ErrExternalTool covers non-zero exits, timeouts and missing executables
	// of the probe/mux tools.
	ErrExternalTool = errors.New("external tool failure")
	// ErrGeocodingUnresolved means a forward or reverse lookup gave no answer.
	ErrGeocodingUnresolved = errors.New("geocoding unresolved")
	// ErrNoContainer means a photo has no EXIF block to rewrite.
	ErrNoContainer = errors.New("no metadata container")
)

// FileError records why processing of a single file failed.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// NewFileError wraps err with the path and operation it failed on.
func NewFileError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &FileError{Path: path, Op: op, Err: err}
}
