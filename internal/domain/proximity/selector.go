// Package proximity picks the attractions relevant to a listener's position.
package proximity

import (
	"github.com/danghamo/tourguide/internal/domain/geo"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/internal/domain/shared"
)

const (
	// DefaultMinDistance is the inner edge of the trigger band in meters
	DefaultMinDistance = 50.0
	// DefaultMaxDistance is the trigger radius in meters
	DefaultMaxDistance = 100.0
)

// FindWithinRadius returns every attraction at distance <= radius, in input order
func FindWithinRadius(userLat, userLon float64, pois []route.Attraction, radius float64) []route.Attraction {
	if len(pois) == 0 {
		return nil
	}
	user := shared.Coordinate{Lat: userLat, Lon: userLon}
	bound := geo.BoundAround(user, radius).Pad(boundSlack)
	// boxes spanning the antimeridian or a pole are not usable as a prefilter
	prefilter := bound.Min.Lon() >= -180 && bound.Max.Lon() <= 180 &&
		bound.Min.Lat() >= -90 && bound.Max.Lat() <= 90

	var out []route.Attraction
	for _, poi := range pois {
		if prefilter && !bound.Contains(poi.Location.Point()) {
			continue
		}
		if geo.DistanceBetween(user, poi.Location) <= radius {
			out = append(out, poi)
		}
	}
	return out
}

// boundSlack widens the prefilter box so the exact distance check decides edge cases
const boundSlack = 1e-6

// FindWithinBand returns every attraction with min <= distance <= max, in input order
func FindWithinBand(userLat, userLon float64, pois []route.Attraction, min, max float64) []route.Attraction {
	var out []route.Attraction
	for _, poi := range FindWithinRadius(userLat, userLon, pois, max) {
		if IsNear(userLat, userLon, poi, min, max) {
			out = append(out, poi)
		}
	}
	return out
}

// IsNear reports whether poi lies inside the [min, max] band around the user
func IsNear(userLat, userLon float64, poi route.Attraction, min, max float64) bool {
	d := geo.Distance(userLat, userLon, poi.Location.Lat, poi.Location.Lon)
	return d >= min && d <= max
}

// FindNearest returns the closest attraction; the first one wins on ties.
// ok is false when pois is empty.
func FindNearest(userLat, userLon float64, pois []route.Attraction) (nearest route.Attraction, ok bool) {
	best := 0.0
	for i, poi := range pois {
		d := geo.Distance(userLat, userLon, poi.Location.Lat, poi.Location.Lon)
		if i == 0 || d < best {
			nearest, best = poi, d
		}
	}
	return nearest, len(pois) > 0
}

// Band is a trigger band in meters
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultBand returns the 50..100 m band
func DefaultBand() Band {
	return Band{Min: DefaultMinDistance, Max: DefaultMaxDistance}
}

// Selector decides which attractions are candidates for auto-triggering
type Selector struct {
	Band Band
	// UseMinDistance excludes attractions closer than Band.Min
	UseMinDistance bool
}

// NewSelector creates a selector for the given band
func NewSelector(band Band, useMinDistance bool) Selector {
	return Selector{Band: band, UseMinDistance: useMinDistance}
}

// Candidates returns the attractions eligible for triggering at the given position
func (s Selector) Candidates(userLat, userLon float64, pois []route.Attraction) []route.Attraction {
	if s.UseMinDistance {
		return FindWithinBand(userLat, userLon, pois, s.Band.Min, s.Band.Max)
	}
	return FindWithinRadius(userLat, userLon, pois, s.Band.Max)
}

// Nearest returns the closest candidate, if any
func (s Selector) Nearest(userLat, userLon float64, pois []route.Attraction) (route.Attraction, bool) {
	return FindNearest(userLat, userLon, s.Candidates(userLat, userLon, pois))
}
