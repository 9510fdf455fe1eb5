package shared

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// ID represents a unique identifier
type ID string

// NewID generates a new unique ID
func NewID() ID {
	return ID(uuid.New().String())
}

// String returns the string representation of ID
func (id ID) String() string {
	return string(id)
}

// Coordinate is a WGS84 position in decimal degrees
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"latitude"`
	Lon float64 `json:"lon" yaml:"lon" validate:"longitude"`
}

// NewCoordinate creates a coordinate, rejecting values outside WGS84 ranges
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if !c.IsValid() {
		return Coordinate{}, ErrInvalidInputf("coordinate out of range: %s", c)
	}
	return c, nil
}

// IsValid reports whether lat is in [-90,90], lon in [-180,180] and both are finite
func (c Coordinate) IsValid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Point converts the coordinate to an orb point (lon, lat order)
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// CoordinateFromPoint converts an orb point back to a coordinate
func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// String returns string representation of the coordinate
func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lon)
}
