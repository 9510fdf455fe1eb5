package proximity

import (
	"testing"

	"github.com/danghamo/tourguide/internal/domain/geo"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userLat = 55.7558
	userLon = 37.6173
)

func poi(id string, lat, lon float64) route.Attraction {
	return route.Attraction{ID: id, Name: id, Location: shared.Coordinate{Lat: lat, Lon: lon}}
}

func fixtures() []route.Attraction {
	return []route.Attraction{
		poi("near", 55.7559, 37.6174), // ~13 m
		poi("band", 55.7564, 37.6173), // ~67 m
		poi("edge", 55.7566, 37.6175), // ~90 m
		poi("far", 55.7600, 37.6173),  // ~467 m
	}
}

func ids(pois []route.Attraction) []string {
	out := make([]string, 0, len(pois))
	for _, p := range pois {
		out = append(out, p.ID)
	}
	return out
}

func TestFindWithinRadius(t *testing.T) {
	got := FindWithinRadius(userLat, userLon, fixtures(), 100)
	assert.Equal(t, []string{"near", "band", "edge"}, ids(got))

	assert.Empty(t, FindWithinRadius(userLat, userLon, nil, 100))
	assert.Empty(t, FindWithinRadius(userLat, userLon, fixtures(), 5))
}

func TestFindWithinRadiusInclusiveBoundary(t *testing.T) {
	p := poi("exact", 55.7566, 37.6175)
	d := geo.Distance(userLat, userLon, p.Location.Lat, p.Location.Lon)

	assert.Len(t, FindWithinRadius(userLat, userLon, []route.Attraction{p}, d), 1)
}

func TestFindWithinRadiusMonotonic(t *testing.T) {
	pois := fixtures()
	radii := []float64{0, 10, 50, 80, 100, 500, 1000}
	for i := 1; i < len(radii); i++ {
		smaller := ids(FindWithinRadius(userLat, userLon, pois, radii[i-1]))
		larger := ids(FindWithinRadius(userLat, userLon, pois, radii[i]))
		assert.Subset(t, larger, smaller, "radius %v -> %v", radii[i-1], radii[i])
	}
}

func TestFindWithinBand(t *testing.T) {
	got := FindWithinBand(userLat, userLon, fixtures(), 50, 100)
	assert.Equal(t, []string{"band", "edge"}, ids(got))

	assert.True(t, IsNear(userLat, userLon, poi("band", 55.7564, 37.6173), 50, 100))
	assert.False(t, IsNear(userLat, userLon, poi("near", 55.7559, 37.6174), 50, 100))
	assert.False(t, IsNear(userLat, userLon, poi("far", 55.7600, 37.6173), 50, 100))
}

func TestFindNearest(t *testing.T) {
	nearest, ok := FindNearest(userLat, userLon, fixtures())
	require.True(t, ok)
	assert.Equal(t, "near", nearest.ID)

	_, ok = FindNearest(userLat, userLon, nil)
	assert.False(t, ok)
}

func TestFindNearestStableOnTies(t *testing.T) {
	pois := []route.Attraction{
		poi("first", 55.7559, 37.6174),
		poi("second", 55.7559, 37.6174),
	}
	nearest, ok := FindNearest(userLat, userLon, pois)
	require.True(t, ok)
	assert.Equal(t, "first", nearest.ID)
}

func TestFindNearestIsMember(t *testing.T) {
	pois := fixtures()
	for _, lat := range []float64{55.74, 55.7558, 55.76, 55.80} {
		nearest, ok := FindNearest(lat, userLon, pois)
		require.True(t, ok)
		assert.Contains(t, ids(pois), nearest.ID)
	}
}

func TestSelectorCandidates(t *testing.T) {
	pois := fixtures()

	radius := NewSelector(DefaultBand(), false)
	assert.Equal(t, []string{"near", "band", "edge"}, ids(radius.Candidates(userLat, userLon, pois)))
	nearest, ok := radius.Nearest(userLat, userLon, pois)
	require.True(t, ok)
	assert.Equal(t, "near", nearest.ID)

	band := NewSelector(DefaultBand(), true)
	assert.Equal(t, []string{"band", "edge"}, ids(band.Candidates(userLat, userLon, pois)))
	nearest, ok = band.Nearest(userLat, userLon, pois)
	require.True(t, ok)
	assert.Equal(t, "band", nearest.ID)

	_, ok = radius.Nearest(55.80, userLon, pois)
	assert.False(t, ok)
}

func TestSelectorBandVersusRadius(t *testing.T) {
	pois := []route.Attraction{poi("close", 55.7559, 37.6174)}

	band := NewSelector(DefaultBand(), true)
	assert.Empty(t, band.Candidates(userLat, userLon, pois))
	_, ok := band.Nearest(userLat, userLon, pois)
	assert.False(t, ok)

	radius := NewSelector(DefaultBand(), false)
	assert.Equal(t, []string{"close"}, ids(radius.Candidates(userLat, userLon, pois)))
}

func TestSelectorNearestWithinMax(t *testing.T) {
	// ~80 m and ~250 m north of the user
	pois := []route.Attraction{
		poi("far", 55.758046, 37.6173),
		poi("x", 55.756519, 37.6173),
	}
	assert.InDelta(t, 80, geo.Distance(userLat, userLon, 55.756519, 37.6173), 1)
	assert.InDelta(t, 250, geo.Distance(userLat, userLon, 55.758046, 37.6173), 1)

	s := NewSelector(DefaultBand(), false)
	assert.Equal(t, []string{"x"}, ids(s.Candidates(userLat, userLon, pois)))

	nearest, ok := s.Nearest(userLat, userLon, pois)
	require.True(t, ok)
	assert.Equal(t, "x", nearest.ID)
}
