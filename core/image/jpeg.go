package image

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"github.com/metaphotor/metaphotor/core"
)

// maxSegmentPayload is the largest segment body a 16-bit length allows.
const maxSegmentPayload = 0xFFFF - 2

var exifHeader = []byte("Exif\x00\x00")

// parseJPEG splits data into its marker segments. The scan data stays in the
// SOS segment, so writing the list back reproduces the image byte for byte.
func parseJPEG(data []byte) (*jpegstructure.SegmentList, error) {
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, err
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("jpeg: unexpected parse result %T", mc)
	}
	return sl, nil
}

// exifPayload returns the TIFF structure of the APP1 Exif segment, or
// core.ErrNoContainer when there is none.
func exifPayload(sl *jpegstructure.SegmentList) ([]byte, error) {
	_, s, err := sl.FindExif()
	if err != nil {
		return nil, core.ErrNoContainer
	}
	return bytes.TrimPrefix(s.Data, exifHeader), nil
}

// encodeJPEG serializes sl.
func encodeJPEG(sl *jpegstructure.SegmentList) ([]byte, error) {
	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic replaces path with data through a temporary file in the
// same directory, so a failed save leaves the original intact.
func writeFileAtomic(path string, data []byte) (err error) {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
