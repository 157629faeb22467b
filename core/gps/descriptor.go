// Package gps converts between the packed location descriptor stored inside
// media files and the structured core.GPS value, and resolves locations from
// raw sensor readings through a Geocoder.
package gps

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/metaphotor/metaphotor/core"
)

// descriptorFields is the arity of "<lat>,<lon>,<city>,<country>,<code>".
const descriptorFields = 5

// Pack renders g as a descriptor. Coordinates use their shortest
// round-trippable form; absent coordinates render as empty fields.
func Pack(g core.GPS) string {
	var lat, lon string
	if g.HasCoordinates() {
		lat = core.FormatFloat(*g.Latitude)
		lon = core.FormatFloat(*g.Longitude)
	}
	return strings.Join([]string{lat, lon, g.City, g.Country, g.CountryCode}, ",")
}

// Unpack parses a descriptor. An empty string yields a zero GPS and no error,
// which is how a video without an album tag reads.
// Wrong arity, a non-numeric coordinate or only one coordinate present is
// reported as core.ErrMalformedMetadata.
func Unpack(s string) (core.GPS, error) {
	if strings.TrimSpace(s) == "" {
		return core.GPS{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != descriptorFields {
		return core.GPS{}, fmt.Errorf("%w: gps descriptor has %d fields, want %d", core.ErrMalformedMetadata, len(parts), descriptorFields)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	g := core.GPS{City: parts[2], Country: parts[3], CountryCode: parts[4]}
	latStr, lonStr := parts[0], parts[1]
	switch {
	case latStr == "" && lonStr == "":
		return g, nil
	case latStr == "" || lonStr == "":
		return core.GPS{}, fmt.Errorf("%w: gps descriptor has a single coordinate", core.ErrMalformedMetadata)
	}

	lat, err := parseCoordinate(latStr, 90)
	if err != nil {
		return core.GPS{}, err
	}
	lon, err := parseCoordinate(lonStr, 180)
	if err != nil {
		return core.GPS{}, err
	}
	g.Latitude, g.Longitude = &lat, &lon
	return g, nil
}

func parseCoordinate(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
		return 0, fmt.Errorf("%w: gps coordinate %q", core.ErrMalformedMetadata, s)
	}
	return v, nil
}

// ParseCoords parses the "lat,lon" catalog form. An empty string yields nil
// coordinates.
func ParseCoords(s string) (lat, lon *float64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: coords %q", core.ErrMalformedMetadata, s)
	}
	la, err := parseCoordinate(strings.TrimSpace(parts[0]), 90)
	if err != nil {
		return nil, nil, err
	}
	lo, err := parseCoordinate(strings.TrimSpace(parts[1]), 180)
	if err != nil {
		return nil, nil, err
	}
	return &la, &lo, nil
}
