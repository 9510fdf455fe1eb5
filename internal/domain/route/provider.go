package route

import (
	"context"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
)

// Provider is the read side used by guide sessions and the API
type Provider interface {
	Routes(ctx context.Context) ([]Route, error)
	Route(ctx context.Context, id string) (Route, error)
	Attractions(ctx context.Context, routeID string) ([]Attraction, error)
}

// SyncProvider reads from the remote store and keeps the offline cache
// current. When the remote fails, reads are served from the cache.
type SyncProvider struct {
	remote Repository
	cache  Repository
	logger *logger.Logger
}

// NewSyncProvider creates a provider. remote or cache may be nil, not both.
func NewSyncProvider(remote, cache Repository, log *logger.Logger) *SyncProvider {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &SyncProvider{remote: remote, cache: cache, logger: log.WithComponent("route-provider")}
}

// Routes lists routes, falling back to the cache when the remote is unavailable
func (p *SyncProvider) Routes(ctx context.Context) ([]Route, error) {
	if p.remote != nil {
		routes, err := p.remote.ListRoutes(ctx)
		if err == nil && len(routes) > 0 {
			return routes, nil
		}
		if err != nil {
			p.logger.Warn("Remote route list failed, using offline cache", zap.Error(err))
		}
		if p.cache == nil {
			return routes, err
		}
	}
	return p.cache.ListRoutes(ctx)
}

// Route returns a single route or a NOT_FOUND domain error
func (p *SyncProvider) Route(ctx context.Context, id string) (Route, error) {
	var (
		rt  *Route
		err error
	)
	if p.remote != nil {
		rt, err = p.remote.GetRoute(ctx, id)
		if err != nil {
			p.logger.Warn("Remote route read failed, using offline cache", zap.String("route_id", id), zap.Error(err))
		}
	}
	if rt == nil && p.cache != nil {
		cached, cacheErr := p.cache.GetRoute(ctx, id)
		if cacheErr != nil && err == nil {
			err = cacheErr
		}
		rt = cached
	}
	if rt == nil {
		if err != nil {
			return Route{}, shared.WrapDomainError(err, shared.ErrCodeNotFound, "route "+id+" unavailable")
		}
		return Route{}, shared.ErrNotFoundf("route " + id)
	}
	return *rt, nil
}

// Attractions returns a route's attractions. Fresh remote data is written
// through to the cache. An empty list is a valid answer.
func (p *SyncProvider) Attractions(ctx context.Context, routeID string) ([]Attraction, error) {
	if p.remote != nil {
		attractions, err := p.remote.GetAttractions(ctx, routeID)
		switch {
		case err != nil:
			p.logger.Warn("Remote attractions read failed, using offline cache",
				zap.String("route_id", routeID), zap.Error(err))
		case len(attractions) > 0:
			p.writeThrough(ctx, routeID, attractions)
			return attractions, nil
		}
		if p.cache == nil {
			return attractions, err
		}
	}

	attractions, err := p.cache.GetAttractions(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if len(attractions) == 0 {
		p.logger.Info("Route has no attractions", zap.String("route_id", routeID))
	}
	return attractions, nil
}

func (p *SyncProvider) writeThrough(ctx context.Context, routeID string, attractions []Attraction) {
	if p.cache == nil || p.remote == nil {
		return
	}
	rt, err := p.remote.GetRoute(ctx, routeID)
	if err != nil || rt == nil {
		return
	}
	if err := p.cache.SaveRoute(ctx, *rt, attractions); err != nil {
		p.logger.Warn("Failed to update offline cache", zap.String("route_id", routeID), zap.Error(err))
	}
}

// Sync copies every remote route into the cache and returns how many were copied
func (p *SyncProvider) Sync(ctx context.Context) (int, error) {
	if p.remote == nil || p.cache == nil {
		return 0, nil
	}
	routes, err := p.remote.ListRoutes(ctx)
	if err != nil {
		return 0, shared.WrapDomainError(err, shared.ErrCodeNotFound, "remote routes unavailable")
	}
	for _, rt := range routes {
		attractions, err := p.remote.GetAttractions(ctx, rt.ID)
		if err != nil {
			return 0, err
		}
		if err := p.cache.SaveRoute(ctx, rt, attractions); err != nil {
			return 0, err
		}
	}
	p.logger.Info("Offline route cache synced", zap.Int("routes", len(routes)))
	return len(routes), nil
}
