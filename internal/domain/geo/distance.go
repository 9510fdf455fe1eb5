// Package geo computes great-circle distances between WGS84 coordinates.
package geo

import (
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Distance returns the haversine distance in meters between two points
// given in decimal degrees. Inputs are assumed finite.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.DistanceHaversine(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}

// DistanceBetween is Distance for coordinates
func DistanceBetween(a, b shared.Coordinate) float64 {
	return geo.DistanceHaversine(a.Point(), b.Point())
}

// BoundAround returns a bounding box that contains every point within
// radius meters of c.
func BoundAround(c shared.Coordinate, radius float64) orb.Bound {
	return geo.NewBoundAroundPoint(c.Point(), radius)
}
