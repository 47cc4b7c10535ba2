// Package geo provides the geographic point scalar and distance helpers.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean radius of Earth used for Haversine distance.
const EarthRadiusMeters = 6_371_000.0

// ErrInvalidPoint is returned for unparsable or out-of-range coordinates.
var ErrInvalidPoint = errors.New("invalid geo point")

// Point is a longitude/latitude pair in degrees.
type Point struct {
	Lon float64
	Lat float64
}

// NewPoint creates a point. Note the lon, lat order used by the search engine.
func NewPoint(lon, lat float64) Point {
	return Point{Lon: lon, Lat: lat}
}

// String renders the stored form "lon,lat".
func (p Point) String() string {
	return strconv.FormatFloat(p.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}

// Valid checks that latitude is in [-90,90] and longitude in [-180,180].
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// ParsePoint parses "lon,lat".
func ParsePoint(s string) (Point, error) {
	lonStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidPoint, s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: longitude %q", ErrInvalidPoint, lonStr)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: latitude %q", ErrInvalidPoint, latStr)
	}
	p := Point{Lon: lon, Lat: lat}
	if !p.Valid() {
		return Point{}, fmt.Errorf("%w: %q out of range", ErrInvalidPoint, s)
	}
	return p, nil
}

// Unit is a distance unit understood by geo radius queries.
type Unit string

// Supported units.
const (
	Meters     Unit = "m"
	Kilometers Unit = "km"
	Miles      Unit = "mi"
	Feet       Unit = "ft"
)

// Meters converts d in unit u to meters.
func (u Unit) Meters(d float64) float64 {
	switch u {
	case Kilometers:
		return d * 1000
	case Miles:
		return d * 1609.344
	case Feet:
		return d * 0.3048
	default:
		return d
	}
}

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case Meters, Kilometers, Miles, Feet:
		return true
	}
	return false
}

// Haversine returns the great-circle distance in meters between two points
// specified by latitude and longitude in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Distance returns the great-circle distance between p and q in meters.
func Distance(p, q Point) float64 {
	return Haversine(p.Lat, p.Lon, q.Lat, q.Lon)
}
