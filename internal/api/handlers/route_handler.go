package handlers

import (
	"context"
	"net/http"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	cqrsevents "github.com/danghamo/tourguide/internal/cqrs"
	"github.com/danghamo/tourguide/internal/domain/media"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/pkg/logger"
)

// RouteSyncer refreshes the offline route cache
type RouteSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// RouteReloader pushes fresh attractions into open sessions
type RouteReloader interface {
	ReloadRoute(ctx context.Context, routeID string) error
}

// CatalogNotifier tells every client that the route catalog changed
type CatalogNotifier interface {
	BroadcastToAll(ctx context.Context, method string, params interface{}) error
}

// RouteHandler serves the route.* methods
type RouteHandler struct {
	logger   *logger.Logger
	routes   route.Provider
	resolver *media.Resolver
	syncer   RouteSyncer
	reloader RouteReloader
	notifier CatalogNotifier
}

// NewRouteHandler creates a route handler. syncer, reloader and notifier may be nil.
func NewRouteHandler(
	log *logger.Logger,
	routes route.Provider,
	resolver *media.Resolver,
	syncer RouteSyncer,
	reloader RouteReloader,
	notifier CatalogNotifier,
) *RouteHandler {
	return &RouteHandler{
		logger:   log.WithComponent("route-handler"),
		routes:   routes,
		resolver: resolver,
		syncer:   syncer,
		reloader: reloader,
		notifier: notifier,
	}
}

type RouteIDRequest struct {
	RouteID string `json:"route_id" validate:"required"`
}

type ListRoutesResponse struct {
	Routes []route.Route `json:"routes"`
	Total  int           `json:"total"`
}

// AttractionView is an attraction with its media resolved to fetchable URLs
type AttractionView struct {
	route.Attraction
	ResolvedAudioURL  string   `json:"resolved_audio_url,omitempty"`
	ResolvedImageURLs []string `json:"resolved_image_urls,omitempty"`
}

type RouteDetailsResponse struct {
	Route       route.Route      `json:"route"`
	Attractions []AttractionView `json:"attractions"`
}

// AttractionsResponse is a GeoJSON FeatureCollection of attraction points
type AttractionsResponse = geojson.FeatureCollection

type SyncRoutesResponse struct {
	Synced int `json:"synced"`
}

// List returns every known route
// @Summary List routes
// @Tags route
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[ListRoutesResponse]
// @Security BearerAuth
// @Router /api/v1/route.List [post]
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	var params EmptyParams
	_, req, ok := begin(r, &params)
	if !ok {
		return
	}

	routes, err := h.routes.Routes(r.Context())
	if err != nil {
		h.logger.Error("Failed to list routes", zap.Error(err))
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	if routes == nil {
		routes = []route.Route{}
	}
	jsonrpcx.Success(w, req.ID, ListRoutesResponse{Routes: routes, Total: len(routes)})
}

// Get returns a route with its attractions
// @Summary Get a route
// @Tags route
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[RouteIDRequest] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[RouteDetailsResponse]
// @Failure 400 {object} jsonrpcx.ErrorResponse "Unknown route"
// @Security BearerAuth
// @Router /api/v1/route.Get [post]
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	var params RouteIDRequest
	_, req, ok := begin(r, &params)
	if !ok {
		return
	}

	rt, err := h.routes.Route(r.Context(), params.RouteID)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	attractions, err := h.routes.Attractions(r.Context(), params.RouteID)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}

	views := make([]AttractionView, 0, len(attractions))
	for _, a := range attractions {
		views = append(views, h.view(a))
	}
	jsonrpcx.Success(w, req.ID, RouteDetailsResponse{Route: rt, Attractions: views})
}

// Attractions returns a route's attractions as GeoJSON points
// @Summary Route attractions as GeoJSON
// @Tags route
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[RouteIDRequest] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[AttractionsResponse]
// @Security BearerAuth
// @Router /api/v1/route.Attractions [post]
func (h *RouteHandler) Attractions(w http.ResponseWriter, r *http.Request) {
	var params RouteIDRequest
	_, req, ok := begin(r, &params)
	if !ok {
		return
	}

	if _, err := h.routes.Route(r.Context(), params.RouteID); err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	attractions, err := h.routes.Attractions(r.Context(), params.RouteID)
	if err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}

	jsonrpcx.Success(w, req.ID, route.FeatureCollection(attractions))
}

// Sync refreshes the offline cache from the remote store
// @Summary Sync the offline route cache
// @Description Copies remote routes into the local cache, reloads open sessions and notifies clients
// @Tags route
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[SyncRoutesResponse]
// @Security BearerAuth
// @Router /api/v1/route.Sync [post]
func (h *RouteHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var params EmptyParams
	_, req, ok := begin(r, &params)
	if !ok {
		return
	}

	synced := 0
	if h.syncer != nil {
		n, err := h.syncer.Sync(r.Context())
		if err != nil {
			h.logger.Warn("Route sync failed", zap.Error(err))
			jsonrpcx.WithDomainError(r, req.ID, err)
			return
		}
		synced = n
	}

	if h.reloader != nil {
		if routes, err := h.routes.Routes(r.Context()); err == nil {
			for _, rt := range routes {
				if err := h.reloader.ReloadRoute(r.Context(), rt.ID); err != nil {
					h.logger.Warn("Failed to reload route sessions", zap.String("route_id", rt.ID), zap.Error(err))
				}
			}
		}
	}

	if h.notifier != nil {
		if err := h.notifier.BroadcastToAll(r.Context(), cqrsevents.MethodRouteCatalogUpdated, map[string]int{"synced": synced}); err != nil {
			h.logger.Warn("Failed to announce catalog update", zap.Error(err))
		}
	}
	jsonrpcx.Success(w, req.ID, SyncRoutesResponse{Synced: synced})
}

func (h *RouteHandler) view(a route.Attraction) AttractionView {
	v := AttractionView{Attraction: a}
	if h.resolver == nil {
		return v
	}
	if ref := h.resolver.AudioURL(a.AudioURL, a.LocalAudioPath, a.RouteID); ref != "" {
		v.ResolvedAudioURL = h.resolver.Playable(ref)
	}
	v.ResolvedImageURLs = h.resolver.ImageURLs(a.ImageURLs, a.LocalImagePaths, a.RouteID)
	return v
}
