// Package core defines the canonical media record, the handler contract every
// media kind implements, and the shared normalization rules.
package core

import (
	"context"
	"strconv"
	"strings"
)

// Kind is the broad media category a handler serves.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// GPS is the location part of a MediaRecord. Latitude and Longitude are
// either both set or both nil; City/Country may be set without coordinates.
type GPS struct {
	City        string   `json:"city"`
	Country     string   `json:"country"`
	CountryCode string   `json:"country_code"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// HasCoordinates reports whether both coordinates are present.
func (g GPS) HasCoordinates() bool {
	return g.Latitude != nil && g.Longitude != nil
}

// IsZero reports whether no location data is present at all.
func (g GPS) IsZero() bool {
	return g.City == "" && g.Country == "" && g.CountryCode == "" && !g.HasCoordinates()
}

// Coords renders the original sensor coordinates as "lat,lon", or "" when
// they are absent.
func (g GPS) Coords() string {
	if !g.HasCoordinates() {
		return ""
	}
	return FormatFloat(*g.Latitude) + "," + FormatFloat(*g.Longitude)
}

// FormatFloat renders a coordinate in its shortest round-trippable form.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MediaRecord is the format-independent projection of a media file's
// metadata. It is built fresh on every extraction and never mutated by the
// handlers; an update is extract, modify a copy, then Write.
type MediaRecord struct {
	Kind        Kind     `json:"kind"`
	Path        string   `json:"path"`
	Size        *int64   `json:"size"`
	Duration    float64  `json:"duration"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Comment     string   `json:"comment"`
	Tags        []string `json:"tags"`
	Created     string   `json:"created"`
	Year        int      `json:"year,omitempty"`
	GPS         GPS      `json:"gps"`
}

// TagString joins the tags the way they are stored inside the container.
func (r *MediaRecord) TagString() string {
	return strings.Join(r.Tags, " ")
}

// YearString returns the derived year, or "" when unknown.
func (r *MediaRecord) YearString() string {
	if r.Year <= 0 {
		return ""
	}
	return strconv.Itoa(r.Year)
}

// Clone returns a deep copy suitable for modification before a Write.
func (r *MediaRecord) Clone() *MediaRecord {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	if r.Size != nil {
		size := *r.Size
		c.Size = &size
	}
	if r.GPS.Latitude != nil {
		lat := *r.GPS.Latitude
		c.GPS.Latitude = &lat
	}
	if r.GPS.Longitude != nil {
		lon := *r.GPS.Longitude
		c.GPS.Longitude = &lon
	}
	return &c
}

// WriteResult describes the outcome of a successful metadata write. Path is
// the authoritative location of the file afterwards: video writes always
// produce a new file.
type WriteResult struct {
	Path   string
	Output string
}

// FormatInfo describes what a format handler supports.
type FormatInfo struct {
	Name       string   // "JPEG"
	Kind       Kind     // photo | video
	Extensions []string // [".jpg", ".jpeg"]
	MIMETypes  []string
	// Container is the native tag container, e.g. "EXIF".
	Container      string
	EditableFields []string
	Notes          string
}

// Editable reports whether the native field key is written by the handler.
func (i FormatInfo) Editable(key string) bool {
	for _, f := range i.EditableFields {
		if f == key {
			return true
		}
	}
	return false
}

// Handler is the interface every media kind implements.
type Handler interface {
	// Extract reads the native metadata container of path into a MediaRecord.
	Extract(ctx context.Context, path string) (*MediaRecord, error)
	// Write serializes rec back into the native container of path.
	Write(ctx context.Context, path string, rec *MediaRecord) (*WriteResult, error)
	// Info returns format capabilities.
	Info() FormatInfo
}

// Converter is implemented by handlers that can normalize a file into the
// canonical container format before it is catalogued.
type Converter interface {
	// Convert transcodes path, stamping created into the output, and returns
	// the new path. Files already canonical are returned unchanged.
	Convert(ctx context.Context, path, created string) (*WriteResult, error)
	NeedsConversion(path string) bool
}
