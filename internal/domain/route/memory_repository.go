package route

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository
type MemoryRepository struct {
	mu          sync.RWMutex
	routes      map[string]Route
	attractions map[string][]Attraction
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		routes:      make(map[string]Route),
		attractions: make(map[string][]Attraction),
	}
}

func (m *MemoryRepository) ListRoutes(_ context.Context) ([]Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	routes := make([]Route, 0, len(m.routes))
	for _, rt := range m.routes {
		routes = append(routes, rt)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	return routes, nil
}

func (m *MemoryRepository) GetRoute(_ context.Context, id string) (*Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rt, ok := m.routes[id]
	if !ok {
		return nil, nil
	}
	return &rt, nil
}

func (m *MemoryRepository) GetAttractions(_ context.Context, routeID string) ([]Attraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Attraction, len(m.attractions[routeID]))
	copy(out, m.attractions[routeID])
	return out, nil
}

func (m *MemoryRepository) SaveRoute(_ context.Context, rt Route, attractions []Attraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.routes[rt.ID] = rt
	m.attractions[rt.ID] = normalize(rt.ID, attractions)
	return nil
}

func (m *MemoryRepository) DeleteRoute(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.routes, id)
	delete(m.attractions, id)
	return nil
}
