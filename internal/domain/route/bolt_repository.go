package route

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	routesBucket      = []byte("routes")
	attractionsBucket = []byte("attractions")
)

// BoltRepository keeps an offline copy of routes in a bbolt file
type BoltRepository struct {
	db *bolt.DB
}

// OpenBoltRepository opens (or creates) the cache file at path
func OpenBoltRepository(path string) (*BoltRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open route cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(routesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(attractionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare route cache: %w", err)
	}

	return &BoltRepository{db: db}, nil
}

// Close closes the cache file
func (b *BoltRepository) Close() error {
	return b.db.Close()
}

// ListRoutes returns every cached route; bbolt iterates keys in byte order
func (b *BoltRepository) ListRoutes(_ context.Context) ([]Route, error) {
	routes := []Route{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(routesBucket).ForEach(func(k, v []byte) error {
			var rt Route
			if err := json.Unmarshal(v, &rt); err != nil {
				return fmt.Errorf("failed to deserialize route %s: %w", k, err)
			}
			routes = append(routes, rt)
			return nil
		})
	})
	return routes, err
}

// GetRoute retrieves a cached route
func (b *BoltRepository) GetRoute(_ context.Context, id string) (*Route, error) {
	var rt *Route
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(routesBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		rt = &Route{}
		return json.Unmarshal(v, rt)
	})
	return rt, err
}

// GetAttractions returns the cached attractions of a route
func (b *BoltRepository) GetAttractions(_ context.Context, routeID string) ([]Attraction, error) {
	attractions := []Attraction{}
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(attractionsBucket).Get([]byte(routeID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &attractions)
	})
	if err != nil {
		return nil, err
	}
	SortByOrder(attractions)
	return attractions, nil
}

// SaveRoute stores a route and its attractions
func (b *BoltRepository) SaveRoute(_ context.Context, rt Route, attractions []Attraction) error {
	routeJSON, err := json.Marshal(rt)
	if err != nil {
		return err
	}
	attractionsJSON, err := json.Marshal(normalize(rt.ID, attractions))
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(routesBucket).Put([]byte(rt.ID), routeJSON); err != nil {
			return err
		}
		return tx.Bucket(attractionsBucket).Put([]byte(rt.ID), attractionsJSON)
	})
}

// DeleteRoute removes a cached route
func (b *BoltRepository) DeleteRoute(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(routesBucket).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(attractionsBucket).Delete([]byte(id))
	})
}
