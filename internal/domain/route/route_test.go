package route

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
	"github.com/danghamo/tourguide/pkg/redisx"
)

// MockRepository for provider tests
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListRoutes(ctx context.Context) ([]Route, error) {
	args := m.Called(ctx)
	routes, _ := args.Get(0).([]Route)
	return routes, args.Error(1)
}

func (m *MockRepository) GetRoute(ctx context.Context, id string) (*Route, error) {
	args := m.Called(ctx, id)
	rt, _ := args.Get(0).(*Route)
	return rt, args.Error(1)
}

func (m *MockRepository) GetAttractions(ctx context.Context, routeID string) ([]Attraction, error) {
	args := m.Called(ctx, routeID)
	attractions, _ := args.Get(0).([]Attraction)
	return attractions, args.Error(1)
}

func (m *MockRepository) SaveRoute(ctx context.Context, r Route, attractions []Attraction) error {
	return m.Called(ctx, r, attractions).Error(0)
}

func (m *MockRepository) DeleteRoute(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func sampleRoute() (Route, []Attraction) {
	rt := Route{ID: "r1", Number: "1", Name: "Kremlin loop"}
	attractions := []Attraction{
		{ID: "a2", Name: "GUM", Order: 2, Location: shared.Coordinate{Lat: 55.7547, Lon: 37.6215}},
		{ID: "a1", Name: "Red Square", Order: 1, Location: shared.Coordinate{Lat: 55.7539, Lon: 37.6208}},
	}
	return rt, attractions
}

func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	rt, attractions := sampleRoute()

	missing, err := repo.GetRoute(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := repo.GetAttractions(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.SaveRoute(ctx, rt, attractions))

	got, err := repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Kremlin loop", got.Name)

	stored, err := repo.GetAttractions(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "a1", stored[0].ID)
	assert.Equal(t, "r1", stored[0].RouteID)

	routes, err := repo.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Len(t, routes, 1)

	require.NoError(t, repo.DeleteRoute(ctx, "r1"))
	got, err = repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestBoltRepository(t *testing.T) {
	repo, err := OpenBoltRepository(filepath.Join(t.TempDir(), "routes.db"))
	require.NoError(t, err)
	defer repo.Close()

	exerciseRepository(t, repo)
}

func TestRedisRepository(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL environment variable not set, skipping Redis integration tests")
	}
	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	client := redisx.Wrap(redis.NewClient(opt), logger.NewDefault())
	defer client.Close()
	defer client.Del(context.Background(), routeIndexKey, routeKey("r1"), attractionsKey("r1"))

	exerciseRepository(t, NewRedisRepository(client))
}

func TestSyncProviderWritesThrough(t *testing.T) {
	ctx := context.Background()
	rt, attractions := sampleRoute()
	remote := &MockRepository{}
	cache := NewMemoryRepository()

	remote.On("GetAttractions", mock.Anything, "r1").Return(attractions, nil)
	remote.On("GetRoute", mock.Anything, "r1").Return(&rt, nil)

	provider := NewSyncProvider(remote, cache, logger.NewDefault())
	got, err := provider.Attractions(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	cached, err := cache.GetAttractions(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
	remote.AssertExpectations(t)
}

func TestSyncProviderFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	rt, attractions := sampleRoute()
	remote := &MockRepository{}
	cache := NewMemoryRepository()
	require.NoError(t, cache.SaveRoute(ctx, rt, attractions))

	remote.On("GetAttractions", mock.Anything, "r1").Return(nil, errors.New("connection refused"))
	remote.On("GetRoute", mock.Anything, "r1").Return(nil, errors.New("connection refused"))
	remote.On("ListRoutes", mock.Anything).Return(nil, errors.New("connection refused"))

	provider := NewSyncProvider(remote, cache, logger.NewDefault())

	got, err := provider.Attractions(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got[0].ID)

	found, err := provider.Route(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", found.ID)

	routes, err := provider.Routes(ctx)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestSyncProviderMissingRoute(t *testing.T) {
	provider := NewSyncProvider(nil, NewMemoryRepository(), logger.NewDefault())

	_, err := provider.Route(context.Background(), "ghost")
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	attractions, err := provider.Attractions(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, attractions)
}

func TestSyncProviderSync(t *testing.T) {
	ctx := context.Background()
	rt, attractions := sampleRoute()
	remote := NewMemoryRepository()
	require.NoError(t, remote.SaveRoute(ctx, rt, attractions))
	cache := NewMemoryRepository()

	n, err := NewSyncProvider(remote, cache, nil).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cached, err := cache.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, cached)
}

const seedYAML = `
routes:
  - id: r1
    number: "1"
    name: Kremlin loop
    start_point: {lat: 55.7539, lon: 37.6208}
    attractions:
      - id: a1
        name: Red Square
        order: 1
        location: {lat: 55.7539, lon: 37.6208}
        local_audio_path: red_square.mp3
      - id: a2
        name: GUM
        order: 2
        location: {lat: 55.7547, lon: 37.6215}
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Routes, 1)
	assert.Equal(t, "Kremlin loop", seed.Routes[0].Name)
	assert.Len(t, seed.Routes[0].Attractions, 2)
	assert.Equal(t, "red_square.mp3", seed.Routes[0].Attractions[0].LocalAudioPath)

	repo := NewMemoryRepository()
	require.NoError(t, seed.Apply(context.Background(), repo))
	stored, err := repo.GetAttractions(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestParseSeedRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"missing name":   "routes:\n  - id: r1\n",
		"bad latitude":   "routes:\n  - id: r1\n    name: x\n    attractions:\n      - id: a1\n        name: y\n        location: {lat: 95, lon: 0}\n",
		"duplicate id":   "routes:\n  - id: r1\n    name: x\n  - id: r1\n    name: y\n",
		"unknown field":  "routes:\n  - id: r1\n    name: x\n    colour: red\n",
		"not yaml at all": "routes: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeed([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestFeatureCollection(t *testing.T) {
	_, attractions := sampleRoute()
	data, err := json.Marshal(FeatureCollection(attractions))
	require.NoError(t, err)

	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FeatureCollection", decoded.Type)
	require.Len(t, decoded.Features, 2)
	assert.Equal(t, "a2", decoded.Features[0].ID)
	assert.Equal(t, []float64{37.6215, 55.7547}, decoded.Features[0].Geometry.Coordinates)
	assert.Equal(t, "GUM", decoded.Features[0].Properties["name"])
}
