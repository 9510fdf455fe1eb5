package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/app/location"
	"github.com/danghamo/tourguide/internal/app/playback"
	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/media"
	"github.com/danghamo/tourguide/internal/domain/preference"
	"github.com/danghamo/tourguide/internal/domain/proximity"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/audio"
	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/logger"
)

// SourceProvider returns the location stream for a session owner
type SourceProvider func(userID string) location.Source

// ManagerDeps are the collaborators every session needs
type ManagerDeps struct {
	Routes    route.Provider
	Prefs     preference.Store
	Engines   audio.Factory
	Resolver  *media.Resolver
	Sources   SourceProvider
	Publisher EventPublisher
}

// RunnerConfigFrom builds runner settings from the guide config section
func RunnerConfigFrom(cfg config.GuideConfig, resolver *media.Resolver) RunnerConfig {
	band := proximity.Band{Min: cfg.MinDistance, Max: cfg.MaxDistance}
	if band.Max <= 0 {
		band = proximity.DefaultBand()
	}
	guideCfg := guide.Config{
		Selector: proximity.NewSelector(band, cfg.UseMinDistance),
		TrackRef: guide.DefaultTrackRef,
	}
	if resolver != nil {
		guideCfg.TrackRef = func(a route.Attraction) string {
			return resolver.AudioURL(a.AudioURL, a.LocalAudioPath, a.RouteID)
		}
	}
	return RunnerConfig{
		Guide:             guideCfg,
		LocationInterval:  cfg.LocationInterval,
		Buffer:            cfg.EventBuffer,
		AudioGuideDefault: cfg.AudioGuideDefault,
	}
}

// GuideManager keeps at most one guide session per user
type GuideManager struct {
	deps    ManagerDeps
	cfg     RunnerConfig
	baseCtx context.Context
	logger  *logger.Logger

	mu      sync.Mutex
	runners map[string]*GuideRunner
}

// NewGuideManager creates a manager. Sessions live until closed or until ctx ends.
func NewGuideManager(ctx context.Context, deps ManagerDeps, cfg RunnerConfig, log *logger.Logger) *GuideManager {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &GuideManager{
		deps:    deps,
		cfg:     cfg,
		baseCtx: ctx,
		logger:  log.WithComponent("guide-manager"),
		runners: make(map[string]*GuideRunner),
	}
}

// Open starts a session for userID on routeID. An open session on the same
// route is returned as is; one on another route is closed first.
func (m *GuideManager) Open(ctx context.Context, userID, routeID string) (*GuideRunner, error) {
	if userID == "" {
		return nil, shared.ErrInvalidInputf("user id is required")
	}
	if routeID == "" {
		return nil, shared.ErrInvalidInputf("route id is required")
	}

	if existing, ok := m.lookup(userID); ok {
		if existing.Snapshot().RouteID == routeID {
			return existing, nil
		}
		m.Close(userID)
	}

	if _, err := m.deps.Routes.Route(ctx, routeID); err != nil {
		return nil, err
	}
	attractions, err := m.deps.Routes.Attractions(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if len(attractions) == 0 {
		m.logger.Warn("Route has no attractions", zap.String("route_id", routeID))
	}

	enabled := m.cfg.AudioGuideDefault
	if m.deps.Prefs != nil {
		enabled, err = m.deps.Prefs.AudioGuideEnabled(ctx, userID)
		if err != nil {
			m.logger.Warn("Failed to read audio guide preference, using default",
				zap.String("user_id", userID), zap.Error(err))
			enabled = m.cfg.AudioGuideDefault
		}
	}

	engine, err := m.deps.Engines()
	if err != nil {
		return nil, shared.WrapDomainError(err, shared.ErrCodePlaybackFailure, "cannot create audio engine")
	}

	var resolver playback.Resolver
	if m.deps.Resolver != nil {
		resolver = m.deps.Resolver
	}
	controller := playback.NewController(engine, resolver, m.logger)

	session := guide.NewSession(shared.NewID().String(), userID, routeID, attractions, enabled)
	runner := NewGuideRunner(session, controller, m.deps.Sources(userID), m.deps.Publisher, m.cfg, m.logger)

	m.mu.Lock()
	if raced, ok := m.runners[userID]; ok {
		m.mu.Unlock()
		runner.Close()
		if raced.Snapshot().RouteID == routeID {
			return raced, nil
		}
		return nil, shared.NewDomainErrorf(shared.ErrCodeInvalidInput, "another session for %s was opened concurrently", userID)
	}
	m.runners[userID] = runner
	m.mu.Unlock()

	runner.Start(m.baseCtx)
	go m.forget(userID, runner)

	m.logger.Info("Guide session opened",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.String("route_id", routeID),
		zap.Int("attractions", len(attractions)),
		zap.Bool("audio_guide", enabled),
	)
	return runner, nil
}

// forget drops runner from the registry once its loop exits
func (m *GuideManager) forget(userID string, runner *GuideRunner) {
	<-runner.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runners[userID] == runner {
		delete(m.runners, userID)
	}
}

func (m *GuideManager) lookup(userID string) (*GuideRunner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[userID]
	return r, ok
}

// Get returns userID's open session
func (m *GuideManager) Get(userID string) (*GuideRunner, error) {
	r, ok := m.lookup(userID)
	if !ok {
		return nil, shared.ErrSessionNotFoundf(userID)
	}
	return r, nil
}

// Close ends userID's session. Closing a missing session is not an error.
func (m *GuideManager) Close(userID string) {
	m.mu.Lock()
	r, ok := m.runners[userID]
	delete(m.runners, userID)
	m.mu.Unlock()

	if ok {
		r.Close()
	}
}

// CloseAll ends every session
func (m *GuideManager) CloseAll() {
	m.mu.Lock()
	runners := make([]*GuideRunner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.runners = make(map[string]*GuideRunner)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *GuideRunner) {
			defer wg.Done()
			r.Close()
		}(r)
	}
	wg.Wait()
	m.logger.Info("All guide sessions closed", zap.Int("count", len(runners)))
}

// Count returns the number of open sessions
func (m *GuideManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runners)
}

// SetAudioGuide stores the preference and applies it to an open session
func (m *GuideManager) SetAudioGuide(ctx context.Context, userID string, enabled bool) error {
	if m.deps.Prefs != nil {
		if err := m.deps.Prefs.SetAudioGuideEnabled(ctx, userID, enabled); err != nil {
			return err
		}
	}
	if r, ok := m.lookup(userID); ok {
		return r.Submit(ctx, guide.AudioGuideToggled{Enabled: enabled})
	}
	return nil
}

// ReloadRoute pushes fresh attractions into every session on routeID
func (m *GuideManager) ReloadRoute(ctx context.Context, routeID string) error {
	attractions, err := m.deps.Routes.Attractions(ctx, routeID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	targets := make([]*GuideRunner, 0)
	for _, r := range m.runners {
		if r.Snapshot().RouteID == routeID {
			targets = append(targets, r)
		}
	}
	m.mu.Unlock()

	for _, r := range targets {
		if err := r.Submit(ctx, guide.AttractionsLoaded{Attractions: attractions}); err != nil {
			m.logger.Warn("Failed to reload attractions", zap.String("session_id", r.ID()), zap.Error(err))
		}
	}
	return nil
}
