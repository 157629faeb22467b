package image

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
)

type stubGeocoder struct {
	place gps.Place
	calls int
}

func (s *stubGeocoder) Forward(context.Context, string) (float64, float64, error) {
	return 0, 0, core.ErrGeocodingUnresolved
}

func (s *stubGeocoder) Reverse(context.Context, float64, float64) (gps.Place, error) {
	s.calls++
	return s.place, nil
}

// baseBlock is a camera-like EXIF block: make, f-number and a thumbnail.
func baseBlock(order binary.ByteOrder) *exifBlock {
	b := &exifBlock{order: order}
	b.setASCII(dirIFD0, tagMake, "ACME Camera Works")
	b.setRationals(dirExif, tagFNumber, [2]uint32{28, 10})
	b.dir(dirIFD1)
	b.thumbnail = []byte{0xFF, 0xD8, 0xFF, 0xD9, 0x01, 0x02, 0x03}
	return b
}

func jpegBytes(t *testing.T, b *exifBlock) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	if b != nil {
		app1 := append(append([]byte{}, exifHeader...), b.encode()...)
		buf.Write([]byte{0xFF, 0xE1, byte((len(app1) + 2) >> 8), byte(len(app1) + 2)})
		buf.Write(app1)
	}
	buf.Write([]byte{0xFF, 0xDB, 0x00, 0x04, 0x00, 0x01})
	buf.Write([]byte{0xFF, 0xDA, 0x00, 0x04, 0x01, 0x00})
	buf.Write([]byte{0x12, 0x34, 0xFF, 0x00, 0x56})
	buf.Write([]byte{0xFF, 0xD9})
	return buf.Bytes()
}

// readExif returns the file content of path and its EXIF payload.
func readExif(t *testing.T, path string) ([]byte, []byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sl, err := parseJPEG(data)
	require.NoError(t, err)
	raw, err := exifPayload(sl)
	require.NoError(t, err)
	return data, raw
}

func writePhoto(t *testing.T, b *exifBlock) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, jpegBytes(t, b), 0o644))
	mtime := time.Date(2020, 6, 15, 12, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func newHandler(geo gps.Geocoder) *Handler {
	return New(gps.NewResolver(geo, time.Second, nil), nil)
}

func TestExtractWithoutExifYieldsDefaults(t *testing.T) {
	path := writePhoto(t, nil)

	rec, err := newHandler(nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, core.KindPhoto, rec.Kind)
	assert.Zero(t, rec.Duration)
	assert.Empty(t, rec.Title)
	assert.Empty(t, rec.Description)
	assert.Empty(t, rec.Comment)
	assert.Empty(t, rec.Tags)
	assert.Empty(t, rec.Created)
	assert.True(t, rec.GPS.IsZero())
	require.NotNil(t, rec.Size)
	if runtime.GOOS != "darwin" {
		assert.Equal(t, 2020, rec.Year)
	}
}

func TestExtractMissingFile(t *testing.T) {
	rec, err := newHandler(nil).Extract(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"))
	require.NoError(t, err)
	assert.Nil(t, rec.Size)
	assert.Zero(t, rec.Year)
}

func TestWriteWithoutExifFails(t *testing.T) {
	path := writePhoto(t, nil)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = newHandler(nil).Write(context.Background(), path, &core.MediaRecord{Title: "x"})
	assert.ErrorIs(t, err, core.ErrNoContainer)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteRejectsNonJPEGContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.jpg")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), 0o644))

	_, err := newHandler(nil).Write(context.Background(), path, &core.MediaRecord{})
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
}

func TestWriteRoundTripPreservesOtherTags(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			ctx := context.Background()
			path := writePhoto(t, baseBlock(order))
			h := newHandler(nil)

			lat, lon := 53.87303611111111, 27.65790833333333
			want := &core.MediaRecord{
				Title:       "Sunset",
				Description: "Evening at the lake",
				Tags:        []string{"sun", "lake", "hi"},
				Comment:     "Привет, мир",
				Created:     "2015-01-29 21:29:29",
				GPS: core.GPS{
					City: "minsk", Country: "belarus", CountryCode: "by",
					Latitude: &lat, Longitude: &lon,
				},
			}
			res, err := h.Write(ctx, path, want)
			require.NoError(t, err)
			assert.Equal(t, path, res.Path)

			got, err := h.Extract(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, "Sunset", got.Title)
			assert.Equal(t, "Evening at the lake", got.Description)
			assert.Equal(t, []string{"sun", "lake"}, got.Tags)
			assert.Equal(t, "Привет, мир", got.Comment)
			assert.Equal(t, "2015-01-29 21:29:29", got.Created)
			assert.Equal(t, 2015, got.Year)
			assert.Equal(t, want.GPS, got.GPS)

			data, raw := readExif(t, path)
			x, err := exif.Decode(bytes.NewReader(raw))
			require.NoError(t, err)
			mk, err := x.Get(exif.Make)
			require.NoError(t, err)
			assert.Equal(t, "ACME Camera Works", core.SanitizeString(mk.Val))
			fnum, err := x.Get(exif.FNumber)
			require.NoError(t, err)
			num, den, err := fnum.Rat2(0)
			require.NoError(t, err)
			assert.Equal(t, [2]int64{28, 10}, [2]int64{num, den})

			thumb, err := x.JpegThumbnail()
			require.NoError(t, err)
			assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9, 0x01, 0x02, 0x03}, thumb)

			// image data is untouched
			assert.True(t, bytes.HasSuffix(data, []byte{0x12, 0x34, 0xFF, 0x00, 0x56, 0xFF, 0xD9}))
		})
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := writePhoto(t, baseBlock(binary.LittleEndian))
	h := newHandler(nil)
	rec := &core.MediaRecord{Title: "t", Tags: []string{"one", "two"}, Comment: "plain"}

	_, err := h.Write(ctx, path, rec)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	again, err := h.Extract(ctx, path)
	require.NoError(t, err)
	_, err = h.Write(ctx, path, again)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestWriteKeepsDescriptorWhenGPSEmpty(t *testing.T) {
	ctx := context.Background()
	b := baseBlock(binary.LittleEndian)
	b.setASCII(dirGPS, tagGPSMapDatum, ",,minsk,belarus,by")
	path := writePhoto(t, b)
	h := newHandler(nil)

	_, err := h.Write(ctx, path, &core.MediaRecord{Title: "no gps given"})
	require.NoError(t, err)

	got, err := h.Extract(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "minsk", got.GPS.City)
}

func TestWriteKeepsPrivateAndThumbnailEntries(t *testing.T) {
	b := baseBlock(binary.BigEndian)
	b.setLong(dirIFD0, 0xC0DE, 7)
	b.setUndefined(dirExif, 0xC0DF, []byte("vendor-blob"))
	path := writePhoto(t, b)

	_, err := newHandler(nil).Write(context.Background(), path, &core.MediaRecord{Title: "kept", Comment: "x"})
	require.NoError(t, err)

	_, raw := readExif(t, path)
	keys := tagInventory(raw)
	for _, key := range []string{"IFD0/0x010F", "IFD0/0xC0DE", "Exif/0x829D", "Exif/0xC0DF", "IFD1/0x0201", "IFD1/0x0202"} {
		assert.Contains(t, keys, key)
	}
	assert.Empty(t, droppedTags(b.encode(), raw))
}

func TestDroppedTagsReportsLostEntries(t *testing.T) {
	before := baseBlock(binary.LittleEndian)
	// unknown field type
	before.dir(dirIFD0).set(ifdEntry{id: 0xC0DE, typ: 99, count: 1, val: []byte{1, 2, 3, 4}})
	// value offset past the end of the block
	before.dir(dirExif).set(ifdEntry{id: 0xC0DF, typ: typeASCII, count: 200, val: []byte{0xF0, 0xFF, 0, 0}})

	keys := tagInventory(before.encode())
	assert.Contains(t, keys, "IFD0/0xC0DE")
	assert.Contains(t, keys, "Exif/0xC0DF")
	assert.Contains(t, keys, "IFD0/0x8769")

	after := baseBlock(binary.LittleEndian)
	assert.Equal(t, []string{"Exif/0xC0DF", "IFD0/0xC0DE"}, droppedTags(before.encode(), after.encode()))
	assert.Empty(t, droppedTags(after.encode(), after.encode()))
}

func TestTagInventoryOfGarbage(t *testing.T) {
	assert.Empty(t, tagInventory(nil))
	assert.Empty(t, tagInventory([]byte("not a tiff header")))
}

func TestWriteRejectsMalformedCreated(t *testing.T) {
	path := writePhoto(t, baseBlock(binary.LittleEndian))
	_, err := newHandler(nil).Write(context.Background(), path, &core.MediaRecord{Created: "29.01.2015"})
	assert.ErrorIs(t, err, core.ErrMalformedMetadata)
}

func sensorBlock() *exifBlock {
	b := baseBlock(binary.LittleEndian)
	b.setASCII(dirGPS, 0x0001, "S")
	b.setRationals(dirGPS, 0x0002, [2]uint32{33, 1}, [2]uint32{52, 1}, [2]uint32{0, 1})
	b.setASCII(dirGPS, 0x0003, "W")
	b.setRationals(dirGPS, 0x0004, [2]uint32{151, 1}, [2]uint32{12, 1}, [2]uint32{3600, 100})
	return b
}

func TestExtractDescriptorWinsOverSensor(t *testing.T) {
	b := sensorBlock()
	b.setASCII(dirGPS, tagGPSMapDatum, "53.9,27.56,minsk,belarus,by")
	path := writePhoto(t, b)
	geo := &stubGeocoder{place: gps.Place{City: "Sydney"}}

	rec, err := newHandler(geo).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "minsk", rec.GPS.City)
	assert.Equal(t, 53.9, *rec.GPS.Latitude)
	assert.Zero(t, geo.calls)
}

func TestExtractSensorOnlyReverseGeocodes(t *testing.T) {
	path := writePhoto(t, sensorBlock())
	geo := &stubGeocoder{place: gps.Place{City: "Sydney", Country: "Australia", CountryCode: "au"}}

	rec, err := newHandler(geo).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, "Sydney", rec.GPS.City)
	assert.Equal(t, "Australia", rec.GPS.Country)
	require.True(t, rec.GPS.HasCoordinates())
	assert.InDelta(t, -(33 + 52.0/60), *rec.GPS.Latitude, 1e-9)
	assert.InDelta(t, -(151 + 12.0/60 + 36.0/3600), *rec.GPS.Longitude, 1e-9)
}

func TestExtractBlankDescriptorFallsBackToSensor(t *testing.T) {
	for _, blank := range []string{"", "\x00\x00\x00"} {
		b := sensorBlock()
		b.setASCII(dirGPS, tagGPSMapDatum, blank)
		path := writePhoto(t, b)
		geo := &stubGeocoder{place: gps.Place{City: "Sydney", Country: "Australia", CountryCode: "au"}}

		rec, err := newHandler(geo).Extract(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, 1, geo.calls)
		assert.Equal(t, "Sydney", rec.GPS.City)
		require.True(t, rec.GPS.HasCoordinates())
		assert.InDelta(t, -(33 + 52.0/60), *rec.GPS.Latitude, 1e-9)
	}
}

func TestExtractMalformedDateIsDropped(t *testing.T) {
	b := baseBlock(binary.LittleEndian)
	b.setASCII(dirIFD0, tagDateTime, "2015-13-45 99:99:99")
	path := writePhoto(t, b)

	rec, err := newHandler(nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, rec.Created)
	if runtime.GOOS != "darwin" {
		assert.Equal(t, 2020, rec.Year)
	}
}

func TestExtractStripsNulPadding(t *testing.T) {
	b := baseBlock(binary.LittleEndian)
	b.dir(dirIFD0).set(ifdEntry{id: tagDocumentName, typ: typeASCII, count: 12, val: []byte("padded\x00\x00\x00\x00\x00\x00")})
	b.setUndefined(dirExif, tagUserComment, []byte("ASCII\x00\x00\x00hello\x00\x00"))
	path := writePhoto(t, b)

	rec, err := newHandler(nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "padded", rec.Title)
	assert.Equal(t, "hello", rec.Comment)
}

func TestRawListsFields(t *testing.T) {
	path := writePhoto(t, baseBlock(binary.LittleEndian))

	fields, err := newHandler(nil).Raw(context.Background(), path)
	require.NoError(t, err)

	found := false
	for _, f := range fields {
		if f.Key == "Make" {
			found = true
			assert.Equal(t, "ACME Camera Works", f.Value)
		}
	}
	assert.True(t, found)
}
