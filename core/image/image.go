// Package image handles metadata of JPEG photos stored in the EXIF block.
//
// Field mapping:
//
//	title        IFD0 DocumentName
//	description  IFD0 ImageDescription
//	tags         IFD0 ImageHistory (space separated)
//	comment      Exif UserComment
//	created      IFD0 DateTime
//	gps          GPS GPSMapDatum (packed descriptor), GPS sensor tags as fallback
package image

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Handler
// ──────────────────────────────────────────────────────────────────────────────

// Handler implements core.Handler for JPEG photos.
type Handler struct {
	gps *gps.Resolver
	log *logger.Logger
}

// New returns a Handler resolving locations through resolver.
func New(resolver *gps.Resolver, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if resolver == nil {
		resolver = gps.NewResolver(nil, 0, log)
	}
	return &Handler{gps: resolver, log: log}
}

func (h *Handler) Info() core.FormatInfo {
	return core.FormatInfo{
		Name:       "JPEG",
		Kind:       core.KindPhoto,
		Extensions: []string{".jpg", ".jpeg"},
		MIMETypes:  []string{"image/jpeg"},
		Container:  "EXIF",
		EditableFields: []string{
			"DocumentName", "ImageDescription", "ImageHistory",
			"UserComment", "DateTime", "GPSMapDatum",
		},
		Notes: "Read-modify-write of the existing EXIF block; files without EXIF cannot be written.",
	}
}

// goexif only indexes IFD0 tags it knows; these two hold record fields.
const (
	fieldDocumentName exif.FieldName = "DocumentName"
	fieldImageHistory exif.FieldName = "ImageHistory"
)

var ifd0Extra = map[uint16]exif.FieldName{
	tagDocumentName: fieldDocumentName,
	tagImageHistory: fieldImageHistory,
}

// ──────────────────────────────────────────────────────────────────────────────
// Extract
// ──────────────────────────────────────────────────────────────────────────────

// Extract reads the photo's EXIF block. Missing files, non-JPEG content and
// absent or damaged EXIF all yield a record with empty defaults.
func (h *Handler) Extract(ctx context.Context, path string) (*core.MediaRecord, error) {
	ctx = h.log.WithPath(ctx, path)
	rec := &core.MediaRecord{
		Kind: core.KindPhoto,
		Path: path,
		Size: core.FileSize(path),
		Tags: []string{},
	}
	defer func() { rec.Year = core.FileYear(path, rec.Created) }()

	x, err := h.decode(path)
	if err != nil {
		h.log.WarnErr(ctx, "exif unavailable", err)
		rec.GPS = h.gps.Resolve(ctx, "", false, nil)
		return rec, nil
	}

	rec.Title = stringTag(x, fieldDocumentName)
	rec.Description = stringTag(x, exif.ImageDescription)
	rec.Tags = core.SplitTags(stringTag(x, fieldImageHistory))
	if tag, err := x.Get(exif.UserComment); err == nil {
		rec.Comment = decodeUserComment(tag.Val, x.Tiff.Order)
	}

	if raw, present := lookupString(x, exif.DateTime); present {
		created, err := core.ParseExifDateTime(raw)
		if err != nil {
			h.log.WarnErr(ctx, "cannot format exif datetime", err)
		}
		rec.Created = created
	}

	descriptor, present := lookupString(x, exif.GPSMapDatum)
	rec.GPS = h.gps.Resolve(ctx, descriptor, present, sensorReading(x))
	return rec, nil
}

// decode loads the EXIF block of path through goexif.
func (h *Handler) decode(path string) (*exif.Exif, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnreadableFile, err)
	}
	sl, err := parseJPEG(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedMetadata, err)
	}
	raw, err := exifPayload(sl)
	if err != nil {
		return nil, err
	}

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedMetadata, err)
	}
	if len(x.Tiff.Dirs) > 0 {
		x.LoadTags(x.Tiff.Dirs[0], ifd0Extra, false)
	}
	return x, nil
}

func lookupString(x *exif.Exif, name exif.FieldName) (string, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return "", false
	}
	return core.SanitizeString(tag.Val), true
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	s, _ := lookupString(x, name)
	return s
}

// sensorReading collects the native GPS coordinate tags, or nil when any of
// the four is missing or not a rational triple.
func sensorReading(x *exif.Exif) *gps.Sensor {
	latRef, okLatRef := lookupString(x, exif.GPSLatitudeRef)
	lonRef, okLonRef := lookupString(x, exif.GPSLongitudeRef)
	lat, okLat := dmsTag(x, exif.GPSLatitude)
	lon, okLon := dmsTag(x, exif.GPSLongitude)
	if !okLatRef || !okLonRef || !okLat || !okLon {
		return nil
	}
	return &gps.Sensor{LatitudeRef: latRef, Latitude: lat, LongitudeRef: lonRef, Longitude: lon}
}

func dmsTag(x *exif.Exif, name exif.FieldName) (gps.DMS, bool) {
	var d gps.DMS
	tag, err := x.Get(name)
	if err != nil || tag.Count < 3 {
		return d, false
	}
	for i := range d {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return d, false
		}
		d[i] = gps.Rational{Num: num, Den: den}
	}
	return d, true
}

// ──────────────────────────────────────────────────────────────────────────────
// Write
// ──────────────────────────────────────────────────────────────────────────────

// Write stores rec in the existing EXIF block of path. Every tag outside the
// record mapping is kept; entries the rebuild cannot carry over are logged.
// The new file is assembled in memory and swapped in with a single rename.
func (h *Handler) Write(ctx context.Context, path string, rec *core.MediaRecord) (*core.WriteResult, error) {
	ctx = h.log.WithPath(ctx, path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewFileError("write", path, fmt.Errorf("%w: %v", core.ErrUnreadableFile, err))
	}
	if mt := mimetype.Detect(data); !mimetype.EqualsAny(mt.String(), h.Info().MIMETypes...) {
		return nil, core.NewFileError("write", path, fmt.Errorf("%w: content is %s", core.ErrUnsupportedType, mt.String()))
	}
	sl, err := parseJPEG(data)
	if err != nil {
		return nil, core.NewFileError("write", path, fmt.Errorf("%w: %v", core.ErrMalformedMetadata, err))
	}

	dropped, err := rewriteExif(sl, rec)
	if err != nil {
		return nil, core.NewFileError("write", path, err)
	}
	if len(dropped) > 0 {
		h.log.Warn(h.log.WithField(ctx, "tags", strings.Join(dropped, ",")), "exif entries not carried over")
	}

	out, err := encodeJPEG(sl)
	if err != nil {
		return nil, core.NewFileError("write", path, err)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return nil, core.NewFileError("write", path, err)
	}
	h.log.Debug(ctx, "exif written")
	return &core.WriteResult{Path: path}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Raw dump
// ──────────────────────────────────────────────────────────────────────────────

// Raw lists every EXIF field goexif can name, sorted by name.
func (h *Handler) Raw(ctx context.Context, path string) ([]core.RawField, error) {
	x, err := h.decode(path)
	if err != nil {
		return nil, core.NewFileError("inspect", path, err)
	}
	w := &exifWalker{order: x.Tiff.Order}
	if err := x.Walk(w); err != nil {
		return nil, core.NewFileError("inspect", path, err)
	}
	sort.Slice(w.fields, func(i, j int) bool { return w.fields[i].Key < w.fields[j].Key })
	return w.fields, nil
}

type exifWalker struct {
	order  binary.ByteOrder
	fields []core.RawField
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	val := tag.String()
	// Remove surrounding quotes from string values
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	if name == exif.UserComment {
		val = decodeUserComment(tag.Val, w.order)
	}
	w.fields = append(w.fields, core.RawField{
		Key:      string(name),
		Value:    val,
		Category: category(name),
	})
	return nil
}

func category(name exif.FieldName) string {
	if strings.HasPrefix(string(name), "GPS") {
		return "GPS"
	}
	return "EXIF"
}
