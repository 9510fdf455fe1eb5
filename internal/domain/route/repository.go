package route

import (
	"context"
)

// Repository defines route persistence operations
type Repository interface {
	// ListRoutes returns every stored route ordered by id
	ListRoutes(ctx context.Context) ([]Route, error)

	// GetRoute retrieves a route by id; nil when it does not exist
	GetRoute(ctx context.Context, id string) (*Route, error)

	// GetAttractions returns a route's attractions sorted by display order.
	// An unknown route yields an empty slice.
	GetAttractions(ctx context.Context, routeID string) ([]Attraction, error)

	// SaveRoute stores a route together with its attractions, replacing what was there
	SaveRoute(ctx context.Context, r Route, attractions []Attraction) error

	// DeleteRoute removes a route and its attractions
	DeleteRoute(ctx context.Context, id string) error
}

// normalize stamps the route id on attractions and sorts them
func normalize(routeID string, attractions []Attraction) []Attraction {
	out := make([]Attraction, len(attractions))
	copy(out, attractions)
	for i := range out {
		out[i].RouteID = routeID
	}
	SortByOrder(out)
	return out
}
