package gps

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

// Place is a reverse-geocoding answer.
type Place struct {
	City        string
	Country     string
	CountryCode string
}

// Geocoder looks places up. Implementations report a lookup without answer
// as core.ErrGeocodingUnresolved.
type Geocoder interface {
	Forward(ctx context.Context, city string) (lat, lon float64, err error)
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}

// DefaultLookupTimeout bounds a single geocoding call made during extraction.
const DefaultLookupTimeout = 10 * time.Second

// Resolver picks the location of a photo: the packed descriptor wins, native
// sensor tags plus reverse geocoding are the fallback.
type Resolver struct {
	geo     Geocoder
	timeout time.Duration
	log     *logger.Logger
}

// NewResolver builds a Resolver. geo may be nil, in which case sensor
// coordinates are kept without place names.
func NewResolver(geo Geocoder, timeout time.Duration, log *logger.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{geo: geo, timeout: timeout, log: log}
}

// Resolve returns the GPS of a file. descriptor is the packed descriptor tag
// (present reports whether the tag exists at all); a present but blank
// descriptor counts as unreadable. sensor is nil when the
// file has no complete set of native GPS tags. A file with no usable source
// yields a zero GPS and a warning, never an error.
func (r *Resolver) Resolve(ctx context.Context, descriptor string, present bool, sensor *Sensor) core.GPS {
	if present {
		// a blank tag carries no location; cameras pad GPSMapDatum with NULs
		if strings.TrimSpace(descriptor) == "" {
			r.log.Warn(ctx, "gps descriptor empty, falling back to sensor tags")
		} else if g, err := Unpack(descriptor); err == nil {
			return g
		} else {
			r.log.WarnErr(ctx, "gps descriptor unreadable, falling back to sensor tags", err)
		}
	}

	if sensor == nil {
		r.log.Warn(ctx, "gps info missing")
		return core.GPS{}
	}
	lat, lon, err := sensor.Coordinates()
	if err != nil {
		r.log.WarnErr(ctx, "gps sensor tags incorrect", err)
		return core.GPS{}
	}

	g := core.GPS{Latitude: &lat, Longitude: &lon}
	place, err := r.reverse(ctx, lat, lon)
	if err != nil {
		r.log.WarnErr(ctx, "reverse geocoding unresolved", err)
		return g
	}
	g.City, g.Country, g.CountryCode = place.City, place.Country, place.CountryCode
	return g
}

func (r *Resolver) reverse(ctx context.Context, lat, lon float64) (Place, error) {
	if r.geo == nil {
		return Place{}, core.ErrGeocodingUnresolved
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	place, err := r.geo.Reverse(ctx, lat, lon)
	if err != nil {
		if errors.Is(err, core.ErrGeocodingUnresolved) {
			return Place{}, err
		}
		return Place{}, errors.Join(core.ErrGeocodingUnresolved, err)
	}
	return place, nil
}
