package core

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// CreatedLayout is the canonical form of MediaRecord.Created.
	CreatedLayout = "2006-01-02 15:04:05"
	// ExifDateTimeLayout is the colon-delimited EXIF DateTime form.
	ExifDateTimeLayout = "2006:01:02 15:04:05"

	MinTagLength = 3
	MaxTagLength = 15
)

// SanitizeString decodes raw container bytes as UTF-8, replacing invalid
// sequences, and strips NUL padding.
func SanitizeString(raw []byte) string {
	s := strings.ReplaceAll(string(raw), "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s
}

// SplitTags splits a whitespace-joined tag string and keeps only tags whose
// length (in characters) is within [MinTagLength, MaxTagLength].
func SplitTags(s string) []string {
	return FilterTags(strings.Fields(s))
}

// FilterTags applies the tag length rule to candidates.
func FilterTags(candidates []string) []string {
	tags := make([]string, 0, len(candidates))
	for _, tag := range candidates {
		n := utf8.RuneCountInString(tag)
		if n >= MinTagLength && n <= MaxTagLength {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ParseExifDateTime converts an EXIF "YYYY:MM:DD HH:MM:SS" value to the
// canonical created form. Anything else, including out-of-range fields, is
// rejected rather than partially parsed.
func ParseExifDateTime(s string) (string, error) {
	t, err := time.Parse(ExifDateTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: datetime %q", ErrMalformedMetadata, s)
	}
	return t.Format(CreatedLayout), nil
}

// FormatExifDateTime converts a canonical created value to the EXIF form.
func FormatExifDateTime(created string) (string, error) {
	t, err := time.Parse(CreatedLayout, strings.TrimSpace(created))
	if err != nil {
		return "", fmt.Errorf("%w: created %q", ErrMalformedMetadata, created)
	}
	return t.Format(ExifDateTimeLayout), nil
}

// ValidCreated reports whether s is in the canonical created form.
func ValidCreated(s string) bool {
	_, err := time.Parse(CreatedLayout, s)
	return err == nil
}

// FormatCreated renders a file timestamp in the canonical created form,
// in local time.
func FormatCreated(t time.Time) string {
	return t.Local().Format(CreatedLayout)
}

// DeriveYear takes the year from created when present, else from the file
// timestamp. It returns 0 when neither is usable.
func DeriveYear(created string, fileTime time.Time) int {
	if len(created) >= 4 {
		var year int
		if _, err := fmt.Sscanf(created[:4], "%4d", &year); err == nil && year > 0 {
			return year
		}
	}
	if fileTime.IsZero() {
		return 0
	}
	return fileTime.Local().Year()
}

// FileSize returns the size of path, or nil when it cannot be stat'ed.
func FileSize(path string) *int64 {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	size := info.Size()
	return &size
}
