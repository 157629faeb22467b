package gps

import (
	"fmt"
	"strings"

	"github.com/metaphotor/metaphotor/core"
)

// Rational is an unsigned EXIF RATIONAL value.
type Rational struct {
	Num, Den int64
}

// Float returns the value of r, or an error for a zero denominator.
func (r Rational) Float() (float64, error) {
	if r.Den == 0 {
		return 0, fmt.Errorf("%w: zero denominator in %d/%d", core.ErrMalformedMetadata, r.Num, r.Den)
	}
	return float64(r.Num) / float64(r.Den), nil
}

// DMS is a degrees/minutes/seconds triple as stored by GPS receivers.
type DMS [3]Rational

// Degrees converts d to decimal degrees: deg + min/60 + sec/3600.
func (d DMS) Degrees() (float64, error) {
	var parts [3]float64
	for i, r := range d {
		v, err := r.Float()
		if err != nil {
			return 0, err
		}
		parts[i] = v
	}
	return parts[0] + parts[1]/60 + parts[2]/3600, nil
}

// Sensor is the raw coordinate reading of the native EXIF GPS tags.
type Sensor struct {
	LatitudeRef  string
	Latitude     DMS
	LongitudeRef string
	Longitude    DMS
}

// Coordinates converts the reading to signed decimal degrees. "S" and "W"
// negate, "N" and "E" keep the sign; any other reference is malformed.
func (s Sensor) Coordinates() (lat, lon float64, err error) {
	lat, err = s.Latitude.Degrees()
	if err != nil {
		return 0, 0, err
	}
	lon, err = s.Longitude.Degrees()
	if err != nil {
		return 0, 0, err
	}
	if lat, err = applyHemisphere(lat, s.LatitudeRef, "N", "S"); err != nil {
		return 0, 0, err
	}
	if lon, err = applyHemisphere(lon, s.LongitudeRef, "E", "W"); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func applyHemisphere(v float64, ref, positive, negative string) (float64, error) {
	switch strings.ToUpper(strings.TrimSpace(strings.Trim(ref, "\x00"))) {
	case positive:
		return v, nil
	case negative:
		return -v, nil
	default:
		return 0, fmt.Errorf("%w: gps reference %q", core.ErrMalformedMetadata, ref)
	}
}
