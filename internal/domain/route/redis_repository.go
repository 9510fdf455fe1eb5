package route

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/danghamo/tourguide/pkg/redisx"
)

const routeIndexKey = "routes"

func routeKey(id string) string {
	return fmt.Sprintf("route:%s", id)
}

func attractionsKey(routeID string) string {
	return fmt.Sprintf("route:%s:attractions", routeID)
}

// RedisRepository implements Repository on plain Redis strings holding JSON
type RedisRepository struct {
	client *redisx.Client
}

// NewRedisRepository creates a Redis-backed route repository
func NewRedisRepository(client *redisx.Client) Repository {
	return &RedisRepository{client: client}
}

// ListRoutes returns every route in the index
func (r *RedisRepository) ListRoutes(ctx context.Context) ([]Route, error) {
	ids, err := r.client.SMembers(ctx, routeIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read route index: %w", err)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return []Route{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = routeKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read routes: %w", err)
	}

	routes := make([]Route, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// stale index entry
			continue
		}
		var rt Route
		if err := json.Unmarshal([]byte(s), &rt); err != nil {
			return nil, fmt.Errorf("failed to deserialize route %s: %w", ids[i], err)
		}
		routes = append(routes, rt)
	}
	return routes, nil
}

// GetRoute retrieves a route by id
func (r *RedisRepository) GetRoute(ctx context.Context, id string) (*Route, error) {
	var rt Route
	found, err := r.client.GetJSON(ctx, routeKey(id), &rt)
	if err != nil {
		return nil, fmt.Errorf("failed to read route %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &rt, nil
}

// GetAttractions returns the attractions of a route
func (r *RedisRepository) GetAttractions(ctx context.Context, routeID string) ([]Attraction, error) {
	attractions := []Attraction{}
	if _, err := r.client.GetJSON(ctx, attractionsKey(routeID), &attractions); err != nil {
		return nil, fmt.Errorf("failed to read attractions of %s: %w", routeID, err)
	}
	SortByOrder(attractions)
	return attractions, nil
}

// SaveRoute stores a route and its attractions in one transaction
func (r *RedisRepository) SaveRoute(ctx context.Context, rt Route, attractions []Attraction) error {
	routeJSON, err := json.Marshal(rt)
	if err != nil {
		return fmt.Errorf("failed to serialize route: %w", err)
	}
	attractionsJSON, err := json.Marshal(normalize(rt.ID, attractions))
	if err != nil {
		return fmt.Errorf("failed to serialize attractions: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, routeKey(rt.ID), routeJSON, 0)
		pipe.Set(ctx, attractionsKey(rt.ID), attractionsJSON, 0)
		pipe.SAdd(ctx, routeIndexKey, rt.ID)
		return nil
	})
	return err
}

// DeleteRoute removes a route, its attractions and its index entry
func (r *RedisRepository) DeleteRoute(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, routeKey(id), attractionsKey(id))
		pipe.SRem(ctx, routeIndexKey, id)
		return nil
	})
	return err
}
