// README: Shared value objects (ids, coordinates) and the validation error kinds.
package types

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidCoordinate = fmt.Errorf("%w: invalid coordinate", ErrValidation)
)

type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects latitudes outside [-90,90], longitudes outside [-180,180] and non-finite values.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return ErrInvalidCoordinate
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle (haversine) distance between a and b.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dlat := (b.Lat - a.Lat) * math.Pi / 180.0
	dlng := (b.Lng - a.Lng) * math.Pi / 180.0
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	if h > 1 {
		h = 1
	}
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
