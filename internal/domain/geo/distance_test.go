package geo

import (
	"testing"

	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestDistanceRedSquare(t *testing.T) {
	// Two points about 13 m apart near Red Square
	d := Distance(55.7558, 37.6173, 55.7559, 37.6174)
	assert.InDelta(t, 12.8, d, 1.0)
}

func TestDistanceSymmetricAndZero(t *testing.T) {
	pairs := []struct {
		a, b shared.Coordinate
	}{
		{shared.Coordinate{Lat: 55.7558, Lon: 37.6173}, shared.Coordinate{Lat: 55.7520, Lon: 37.6175}},
		{shared.Coordinate{Lat: -33.8568, Lon: 151.2153}, shared.Coordinate{Lat: -33.8523, Lon: 151.2108}},
		{shared.Coordinate{Lat: 0, Lon: 179.9999}, shared.Coordinate{Lat: 0, Lon: -179.9999}},
	}

	for _, p := range pairs {
		assert.Equal(t, DistanceBetween(p.a, p.b), DistanceBetween(p.b, p.a))
		assert.Equal(t, 0.0, DistanceBetween(p.a, p.a))
		assert.Greater(t, DistanceBetween(p.a, p.b), 0.0)
	}
}

func TestDistanceOneDegreeLatitude(t *testing.T) {
	// One degree of latitude is roughly 111.3 km on the sphere used by orb
	assert.InDelta(t, 111319, Distance(10, 20, 11, 20), 50)
}

func TestDistanceAcrossAntimeridian(t *testing.T) {
	assert.Less(t, Distance(0, 179.9999, 0, -179.9999), 30.0)
}

func TestBoundAroundContainsRadius(t *testing.T) {
	center := shared.Coordinate{Lat: 55.7558, Lon: 37.6173}
	bound := BoundAround(center, 100)

	assert.True(t, bound.Contains(center.Point()))
	assert.True(t, bound.Contains(shared.Coordinate{Lat: 55.7559, Lon: 37.6174}.Point()))
	assert.False(t, bound.Contains(shared.Coordinate{Lat: 55.7600, Lon: 37.6173}.Point()))
}
