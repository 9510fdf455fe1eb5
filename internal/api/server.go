package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/danghamo/tourguide/docs"
	"github.com/danghamo/tourguide/internal/api/handlers"
	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	"github.com/danghamo/tourguide/internal/api/middleware"
	"github.com/danghamo/tourguide/internal/app/location"
	"github.com/danghamo/tourguide/internal/app/service"
	cqrsevents "github.com/danghamo/tourguide/internal/cqrs"
	cqrshandlers "github.com/danghamo/tourguide/internal/cqrs/handlers"
	"github.com/danghamo/tourguide/internal/domain/media"
	"github.com/danghamo/tourguide/internal/domain/preference"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/pkg/audio"
	"github.com/danghamo/tourguide/pkg/autorouter"
	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/logger"
	"github.com/danghamo/tourguide/pkg/redisx"
	"github.com/danghamo/tourguide/pkg/sse"
)

const (
	apiPrefix      = "/api/v1/"
	guideStreamURL = "/api/v1/stream/guide"
	locationWSURL  = "/api/v1/stream/location"
	eventTopic     = "guide-events.%s"
)

// Deps are the storage and device collaborators the server is built from
type Deps struct {
	// Redis is optional; it backs the health check and the redis event backend
	Redis    *redisx.Client
	Routes   route.Provider
	Syncer   handlers.RouteSyncer
	Prefs    preference.Store
	Engines  audio.Factory
	Resolver *media.Resolver
	// Sources overrides where sessions read locations from. Defaults to the push hub.
	Sources service.SourceProvider
	Version string
}

// Server represents the HTTP server
type Server struct {
	cfg            *config.Config
	httpServer     *http.Server
	logger         *logger.Logger
	redisClient    *redisx.Client
	mux            *http.ServeMux
	authMiddleware *middleware.AuthMiddleware
	sseBroadcaster *sse.Broadcaster
	manager        *service.GuideManager
	routers        []*autorouter.AutoRouter

	guideHandler   *handlers.GuideHandler
	routeHandler   *handlers.RouteHandler
	serverHandler  *handlers.ServerHandler
	locationSocket *handlers.LocationSocket

	// Watermill CQRS components
	publisher       message.Publisher
	eventBus        *cqrs.EventBus
	eventProcessor  *cqrs.EventProcessor
	router          *message.Router
	sseEventHandler *cqrshandlers.SSEEventHandler

	cancelSessions context.CancelFunc
}

// NewServer creates the HTTP server and wires the guide engine behind it
func NewServer(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if deps.Routes == nil || deps.Prefs == nil || deps.Engines == nil {
		return nil, errors.New("routes, preferences and audio engines are required")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	apiLogger := log.WithComponent("api")
	mux := http.NewServeMux()

	watermillLogger := logger.NewWatermillAdapter(log.WithComponent("watermill"))

	publisher, subscriber, err := newPubSub(cfg.Events, deps.Redis, watermillLogger)
	if err != nil {
		return nil, err
	}

	// Short close timeout so shutdown is not held up by in-flight handlers
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 5 * time.Second,
	}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	marshaler := cqrs.JSONMarshaler{GenerateName: cqrs.StructName}

	eventBus, err := cqrs.NewEventBusWithConfig(
		publisher,
		cqrs.EventBusConfig{
			GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
				return fmt.Sprintf(eventTopic, params.EventName), nil
			},
			Marshaler: marshaler,
			Logger:    watermillLogger,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(
		router,
		cqrs.EventProcessorConfig{
			GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
				return fmt.Sprintf(eventTopic, params.EventName), nil
			},
			SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
				return subscriber, nil
			},
			Marshaler: marshaler,
			Logger:    watermillLogger,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event processor: %w", err)
	}

	hub := location.NewHub(log)
	sources := deps.Sources
	if sources == nil {
		sources = hub.Source
	}

	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	manager := service.NewGuideManager(sessionCtx, service.ManagerDeps{
		Routes:    deps.Routes,
		Prefs:     deps.Prefs,
		Engines:   deps.Engines,
		Resolver:  deps.Resolver,
		Sources:   sources,
		Publisher: eventBus,
	}, service.RunnerConfigFrom(cfg.Guide, deps.Resolver), log)

	sseBroadcaster := sse.NewBroadcaster(log,
		sse.WithHeartbeat(cfg.Server.SSEHeartbeat),
		sse.WithSnapshot(sessionSnapshot(manager)),
	)
	sseEventHandler := cqrshandlers.NewSSEEventHandler(sseBroadcaster, log)

	err = eventProcessor.AddHandlers(
		cqrs.NewEventHandler("GuideStateChangedEvent", sseEventHandler.HandleGuideStateChanged),
		cqrs.NewEventHandler("AttractionShownEvent", sseEventHandler.HandleAttractionShown),
		cqrs.NewEventHandler("AttractionDismissedEvent", sseEventHandler.HandleAttractionDismissed),
		cqrs.NewEventHandler("LocationLostEvent", sseEventHandler.HandleLocationLost),
		cqrs.NewEventHandler("GuideSessionClosedEvent", sseEventHandler.HandleGuideSessionClosed),
		cqrs.NewEventHandler("SSENotificationEvent", sseEventHandler.HandleSSENotificationEvent),
	)
	if err != nil {
		cancelSessions()
		return nil, fmt.Errorf("failed to register event handlers: %w", err)
	}

	syncer := deps.Syncer
	if syncer == nil {
		if sp, ok := deps.Routes.(handlers.RouteSyncer); ok {
			syncer = sp
		}
	}

	server := &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Server.GetServerAddr(),
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:         apiLogger,
		redisClient:    deps.Redis,
		mux:            mux,
		authMiddleware: middleware.NewAuthMiddleware(cfg.Auth, apiLogger),
		sseBroadcaster: sseBroadcaster,
		manager:        manager,
		guideHandler:   handlers.NewGuideHandler(apiLogger, manager, hub),
		routeHandler: handlers.NewRouteHandler(apiLogger, deps.Routes, deps.Resolver,
			syncer, manager, cqrsevents.NewSSEBroadcastHelper(eventBus)),
		serverHandler: handlers.NewServerHandler(handlers.ServerInfo{
			Name:          "tourguide",
			Version:       deps.Version,
			AudioEngine:   cfg.Audio.Engine,
			EventsBackend: cfg.Events.Backend,
		}, manager, handlers.CounterFunc(sseBroadcaster.ClientCount)),
		locationSocket:  handlers.NewLocationSocket(apiLogger, hub, cfg.CORS.AllowedOrigins),
		publisher:       publisher,
		eventBus:        eventBus,
		eventProcessor:  eventProcessor,
		router:          router,
		sseEventHandler: sseEventHandler,
		cancelSessions:  cancelSessions,
	}

	if err := server.setupRoutes(); err != nil {
		cancelSessions()
		return nil, err
	}
	server.setupMiddleware()

	return server, nil
}

// newPubSub picks the watermill transport. gochannel keeps events in process;
// redis streams fan them out to every instance through its own consumer group.
func newPubSub(cfg config.EventsConfig, redisClient *redisx.Client, wl watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	switch cfg.Backend {
	case "redis":
		if redisClient == nil {
			return nil, nil, errors.New("redis event backend requires a redis client")
		}

		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "unknown"
		}
		group := cfg.ConsumerGroup
		if group == "" {
			group = "tourguide"
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient.Client},
			wl,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create publisher: %w", err)
		}

		subscriber, err := redisstream.NewSubscriber(
			redisstream.SubscriberConfig{
				Client:        redisClient.Client,
				ConsumerGroup: fmt.Sprintf("%s-%s-%d", group, hostname, time.Now().UnixNano()),
			},
			wl,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create subscriber: %w", err)
		}
		return publisher, subscriber, nil

	case "gochannel", "":
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wl)
		return pubSub, pubSub, nil

	default:
		return nil, nil, fmt.Errorf("unsupported events backend: %s", cfg.Backend)
	}
}

// sessionSnapshot sends a newly connected stream the owner's current session
func sessionSnapshot(manager *service.GuideManager) sse.SnapshotFunc {
	return func(userID string) (jsonrpcx.JSONRPCNotification, bool) {
		runner, err := manager.Get(userID)
		if err != nil {
			return jsonrpcx.JSONRPCNotification{}, false
		}
		s := runner.Snapshot()
		state, err := json.Marshal(s)
		if err != nil {
			return jsonrpcx.JSONRPCNotification{}, false
		}
		return jsonrpcx.NewNotification(cqrsevents.MethodGuideStateChanged, map[string]interface{}{
			"session_id": s.ID,
			"route_id":   s.RouteID,
			"version":    s.Version,
			"cause":      "snapshot",
			"state":      json.RawMessage(state),
			"timestamp":  time.Now().Format(time.RFC3339Nano),
		}), true
	}
}

// setupRoutes configures the server routes
func (s *Server) setupRoutes() error {
	s.mux.HandleFunc("GET "+s.healthPath(), s.healthCheckHandler)

	s.mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Every JSON-RPC call resolves the session owner through auth, which
	// falls back to the device identity when auth is disabled
	groups := []struct {
		method  string
		handler interface{}
	}{
		{"guide.", s.guideHandler},
		{"route.", s.routeHandler},
		{"server.", s.serverHandler},
	}
	for _, g := range groups {
		ar := autorouter.NewAutoRouter(s.mux, autorouter.RegistrationOptions{
			Prefix:       apiPrefix,
			MethodPrefix: g.method,
		}, s.logger)
		if err := ar.RegisterHandlersWithAuth(g.handler, s.authMiddleware.RequireAuth); err != nil {
			return fmt.Errorf("failed to register %s handlers: %w", g.method, err)
		}
		s.routers = append(s.routers, ar)
	}

	// Streams take the token from the query string since browsers cannot set headers there
	s.mux.Handle("GET "+guideStreamURL, s.authMiddleware.RequireSSEAuth(http.HandlerFunc(s.sseBroadcaster.HandleSSE)))
	s.mux.Handle("GET "+locationWSURL, s.authMiddleware.RequireSSEAuth(http.HandlerFunc(s.locationSocket.HandleSocket)))
	return nil
}

// setupMiddleware applies middleware to all routes
func (s *Server) setupMiddleware() {
	middlewareChain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.ErrorAdapter(s.logger),
		middleware.CORS(s.cfg.CORS),
		middleware.Logging(s.logger),
		middleware.RateLimit(s.logger, s.cfg.Server.RateLimit, s.cfg.Server.RateBurst),
	)

	s.httpServer.Handler = middlewareChain(s.mux)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Manager returns the guide session registry
func (s *Server) Manager() *service.GuideManager {
	return s.manager
}

// RunEvents runs the watermill router until ctx is done
func (s *Server) RunEvents(ctx context.Context) error {
	return s.router.Run(ctx)
}

// EventsRunning is closed once the event router is consuming
func (s *Server) EventsRunning() chan struct{} {
	return s.router.Running()
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr))
	for _, ar := range s.routers {
		ar.LogRoutes()
	}

	go func() {
		if err := s.RunEvents(ctx); err != nil {
			s.logger.Error("Watermill router error", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = s.Shutdown()
		return err
	}

	return s.Shutdown()
}

// Shutdown closes guide sessions, streams, the HTTP server and the event router
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	// Sessions first so their closed events still reach connected streams
	s.manager.CloseAll()
	s.cancelSessions()

	if s.sseBroadcaster != nil {
		s.logger.Debug("Closing SSE broadcaster")
		s.sseBroadcaster.Close()
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown error", zap.Error(err))
		errs = append(errs, err)
	}

	if s.router != nil {
		s.logger.Info("Closing Watermill router")
		if err := s.router.Close(); err != nil {
			s.logger.Error("Router shutdown error", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("HTTP server stopped")
	return errors.Join(errs...)
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	return s.httpServer.Addr
}

func (s *Server) healthPath() string {
	if p := s.cfg.Server.HealthCheckPath; p != "" {
		return p
	}
	return "/health"
}

type healthCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Sessions int                    `json:"sessions"`
	Checks   map[string]healthCheck `json:"checks"`
}

// healthCheckHandler reports redis reachability and the open session count
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Sessions: s.manager.Count(), Checks: map[string]healthCheck{}}
	code := http.StatusOK

	if s.redisClient != nil {
		if err := s.redisClient.HealthCheck(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Checks["redis"] = healthCheck{Status: "down", Error: err.Error()}
			code = http.StatusServiceUnavailable
		} else {
			resp.Checks["redis"] = healthCheck{Status: "up"}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
