package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	dsexif "github.com/dsoprea/go-exif/v3"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
)

// IFD0 tags goexif does not name on its own.
const (
	tagDocumentName = 0x010D
	tagImageHistory = 0x9213
)

// Builder paths of the sub-IFDs the record is stored in.
const (
	ifdPathExif = "IFD/Exif"
	ifdPathGPS  = "IFD/GPSInfo"
)

// subIFDs maps pointer tags to the name of the IFD they lead to.
var subIFDs = map[uint16]string{
	0x8769: "Exif",
	0x8825: "GPS",
	0xA005: "Interop",
}

// rewriteExif stores rec in the EXIF segment of sl. The IFD tree is rebuilt
// from the existing block, so every tag outside the record mapping is carried
// over. It returns the entries of the old block that the rebuild lost.
func rewriteExif(sl *jpegstructure.SegmentList, rec *core.MediaRecord) ([]string, error) {
	before, err := exifPayload(sl)
	if err != nil {
		return nil, err
	}
	header, err := dsexif.ParseExifHeader(before)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNoContainer, err)
	}
	datetime, err := exifDateTime(rec.Created)
	if err != nil {
		return nil, err
	}

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedMetadata, err)
	}
	if err := applyRecord(rootIb, rec, datetime, header.ByteOrder); err != nil {
		return nil, err
	}
	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("encoding exif: %w", err)
	}

	after, err := exifPayload(sl)
	if err != nil {
		return nil, err
	}
	if n := len(exifHeader) + len(after); n > maxSegmentPayload {
		return nil, fmt.Errorf("exif block of %d bytes does not fit in a JPEG segment", n)
	}
	return droppedTags(before, after), nil
}

func exifDateTime(created string) (string, error) {
	if created == "" {
		return "", nil
	}
	return core.FormatExifDateTime(created)
}

type builderField struct {
	ib    *dsexif.IfdBuilder
	name  string
	value interface{}
}

// applyRecord sets the record fields on the builder tree. DateTime is only
// touched when the record has one, GPSMapDatum only when it has a location.
func applyRecord(rootIb *dsexif.IfdBuilder, rec *core.MediaRecord, datetime string, order binary.ByteOrder) error {
	exifIb, err := dsexif.GetOrCreateIbFromRootIb(rootIb, ifdPathExif)
	if err != nil {
		return fmt.Errorf("exif ifd: %w", err)
	}

	fields := []builderField{
		{rootIb, "DocumentName", rec.Title},
		{rootIb, "ImageDescription", rec.Description},
		{rootIb, "ImageHistory", strings.Join(core.FilterTags(rec.Tags), " ")},
		{exifIb, "UserComment", encodeUserComment(rec.Comment, order)},
	}
	if datetime != "" {
		fields = append(fields, builderField{rootIb, "DateTime", datetime})
	}
	if !rec.GPS.IsZero() {
		gpsIb, err := dsexif.GetOrCreateIbFromRootIb(rootIb, ifdPathGPS)
		if err != nil {
			return fmt.Errorf("gps ifd: %w", err)
		}
		fields = append(fields, builderField{gpsIb, "GPSMapDatum", gps.Pack(rec.GPS)})
	}

	for _, f := range fields {
		if err := f.ib.SetStandardWithName(f.name, f.value); err != nil {
			return fmt.Errorf("setting %s: %w", f.name, err)
		}
	}
	return nil
}

// droppedTags lists the entries of before that are missing from after.
func droppedTags(before, after []byte) []string {
	kept := tagInventory(after)
	var lost []string
	for key := range tagInventory(before) {
		if _, ok := kept[key]; !ok {
			lost = append(lost, key)
		}
	}
	sort.Strings(lost)
	return lost
}

// tagInventory lists the entries of a TIFF structure as "IFD/0xID" keys. It
// follows the IFD0 chain and the Exif, GPS and Interop pointers, and lists
// entries of unknown type or with a damaged value as well.
func tagInventory(raw []byte) map[string]struct{} {
	keys := make(map[string]struct{})
	header, err := dsexif.ParseExifHeader(raw)
	if err != nil {
		return keys
	}
	order := header.ByteOrder
	r := bytes.NewReader(raw)
	seen := make(map[uint32]bool)

	var walk func(name string, off uint32) uint32
	walk = func(name string, off uint32) uint32 {
		if seen[off] || uint64(off)+2 > uint64(len(raw)) {
			return 0
		}
		seen[off] = true
		n := uint64(order.Uint16(raw[off:]))
		end := uint64(off) + 2 + 12*n
		if end+4 > uint64(len(raw)) {
			return 0
		}
		for i := uint64(0); i < n; i++ {
			if _, err := r.Seek(int64(off)+2+12*int64(i), io.SeekStart); err != nil {
				return 0
			}
			t, err := tiff.DecodeTag(r, order)
			if t == nil {
				continue
			}
			keys[fmt.Sprintf("%s/0x%04X", name, t.Id)] = struct{}{}
			if sub, ok := subIFDs[t.Id]; ok && err == nil {
				if p, err := t.Int64(0); err == nil && p > 0 {
					walk(sub, uint32(p))
				}
			}
		}
		return order.Uint32(raw[end:])
	}

	next := walk("IFD0", header.FirstIfdOffset)
	for i := 1; next != 0; i++ {
		next = walk(fmt.Sprintf("IFD%d", i), next)
	}
	return keys
}
