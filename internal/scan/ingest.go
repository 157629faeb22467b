package scan

import (
	"context"
	"errors"
	"strings"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
	"github.com/metaphotor/metaphotor/internal/catalog"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

// Detector resolves the handler of a media file.
type Detector interface {
	Detect(ctx context.Context, path string) (core.Handler, error)
	Converter(h core.Handler) core.Converter
}

// Store is the part of the catalog a scan writes to.
type Store interface {
	Registry
	RemovePublicUnder(ctx context.Context, folder string) (int64, error)
	CreateTags(ctx context.Context, names []string) error
	FindLocation(ctx context.Context, city, country string) (*catalog.Location, error)
	EnsureLocation(ctx context.Context, loc catalog.Location) (*catalog.Location, error)
	CreateMediaFile(ctx context.Context, m *catalog.MediaFile) error
}

// Ingester adds a single media file to the catalog.
type Ingester struct {
	detector Detector
	store    Store
	geocoder gps.Geocoder
	log      *logger.Logger
}

// NewIngester builds an Ingester. geocoder may be nil; new locations are
// then stored without city-center coordinates.
func NewIngester(detector Detector, store Store, geocoder gps.Geocoder, log *logger.Logger) *Ingester {
	if log == nil {
		log = logger.Nop()
	}
	return &Ingester{detector: detector, store: store, geocoder: geocoder, log: log}
}

// Add resolves, converts when needed, extracts and registers path for owner.
// The original sensor coordinates are stored with the file, never the
// city-center coordinates of its location.
func (in *Ingester) Add(ctx context.Context, owner uint, path string) (*catalog.MediaFile, error) {
	ctx = in.log.WithPath(ctx, path)

	h, err := in.detector.Detect(ctx, path)
	if err != nil {
		return nil, err
	}

	t, err := core.FileTime(path)
	if err != nil {
		return nil, core.NewFileError("stat", path, err)
	}
	created := core.FormatCreated(t)

	if conv := in.detector.Converter(h); conv != nil && conv.NeedsConversion(path) {
		res, err := conv.Convert(ctx, path, created)
		if err != nil {
			return nil, err
		}
		in.log.Info(ctx, "converted to "+res.Path)
		path = res.Path
		ctx = in.log.WithPath(ctx, path)
	}

	rec, err := h.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	tags := core.FilterTags(rec.Tags)
	if err := in.store.CreateTags(ctx, tags); err != nil {
		in.log.WarnErr(ctx, "cannot register tags", err)
	}

	m := &catalog.MediaFile{
		UserID:      owner,
		Path:        path,
		Duration:    rec.Duration,
		Title:       rec.Title,
		Description: rec.Description,
		Comment:     rec.Comment,
		Tags:        strings.Join(tags, " "),
		Coords:      rec.GPS.Coords(),
		Year:        rec.Year,
		Created:     rec.Created,
	}
	if rec.Size != nil {
		m.Size = *rec.Size
	}
	if loc := in.location(ctx, rec.GPS); loc != nil {
		m.LocationID = &loc.ID
	}

	if err := in.store.CreateMediaFile(ctx, m); err != nil {
		return nil, core.NewFileError("register", path, err)
	}
	return m, nil
}

// location finds or creates the catalog location named by g. Failures only
// cost the file its location.
func (in *Ingester) location(ctx context.Context, g core.GPS) *catalog.Location {
	if g.City == "" {
		return nil
	}
	loc, err := in.store.FindLocation(ctx, g.City, g.Country)
	if err == nil {
		return loc
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		in.log.WarnErr(ctx, "cannot look up location", err)
		return nil
	}

	candidate := catalog.Location{City: g.City, Country: g.Country, Code: g.CountryCode}
	if in.geocoder != nil {
		lat, lon, err := in.geocoder.Forward(ctx, g.City)
		if err != nil {
			in.log.WarnErr(ctx, "cannot get coordinates of city "+g.City, err)
		} else {
			candidate.Latitude, candidate.Longitude = &lat, &lon
		}
	}
	loc, err = in.store.EnsureLocation(ctx, candidate)
	if err != nil {
		in.log.WarnErr(ctx, "cannot register location", err)
		return nil
	}
	return loc
}
