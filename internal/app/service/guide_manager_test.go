package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/tourguide/internal/app/location"
	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/media"
	"github.com/danghamo/tourguide/internal/domain/preference"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/audio"
	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/logger"
)

type engineRecorder struct {
	mu      sync.Mutex
	engines []*audio.FakeEngine
	err     error
}

func (e *engineRecorder) factory() audio.Factory {
	return func() (audio.Engine, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.err != nil {
			return nil, e.err
		}
		engine := audio.NewFakeEngine()
		e.engines = append(e.engines, engine)
		return engine, nil
	}
}

func (e *engineRecorder) all() []*audio.FakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*audio.FakeEngine(nil), e.engines...)
}

type managerFixture struct {
	manager *GuideManager
	repo    *route.MemoryRepository
	prefs   *preference.MemoryStore
	hub     *location.Hub
	engines *engineRecorder
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	ctx := context.Background()
	log := logger.NewDefault()

	repo := route.NewMemoryRepository()
	require.NoError(t, repo.SaveRoute(ctx, route.Route{ID: "r1", Name: "Red line"}, testAttractions()))
	require.NoError(t, repo.SaveRoute(ctx, route.Route{ID: "r2", Name: "Green line"}, nil))

	prefs := preference.NewMemoryStore(true)
	hub := location.NewHub(log)
	engines := &engineRecorder{}
	resolver := media.NewResolver(media.Config{BaseURL: "https://cdn.example.com", AudioPath: "audio", AssetsDir: "/assets"})

	cfg := RunnerConfigFrom(config.GuideConfig{
		MaxDistance:       100,
		MinDistance:       50,
		LocationInterval:  time.Millisecond,
		AudioGuideDefault: true,
		EventBuffer:       16,
	}, resolver)

	manager := NewGuideManager(ctx, ManagerDeps{
		Routes:   route.NewSyncProvider(nil, repo, log),
		Prefs:    prefs,
		Engines:  engines.factory(),
		Resolver: resolver,
		Sources:  hub.Source,
	}, cfg, log)
	t.Cleanup(manager.CloseAll)

	return &managerFixture{manager: manager, repo: repo, prefs: prefs, hub: hub, engines: engines}
}

func TestManagerOpenStartsSession(t *testing.T) {
	f := newManagerFixture(t)

	runner, err := f.manager.Open(context.Background(), "u1", "r1")
	require.NoError(t, err)

	s := runner.Snapshot()
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "r1", s.RouteID)
	assert.Len(t, s.Attractions, 2)
	assert.True(t, s.AudioGuideEnabled)
	assert.Equal(t, 1, f.manager.Count())

	got, err := f.manager.Get("u1")
	require.NoError(t, err)
	assert.Same(t, runner, got)

	require.Eventually(t, func() bool {
		_ = f.hub.Push("u1", home)
		return runner.Snapshot().Playback == guide.PlaybackPlaying
	}, waitFor, tick)
	engines := f.engines.all()
	require.Len(t, engines, 1)
	assert.Eventually(t, engines[0].Playing, waitFor, tick)
}

func TestManagerOpenSameRouteReturnsExisting(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	first, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)
	second, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, f.engines.all(), 1)
}

func TestManagerOpenOtherRouteReplacesSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	first, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)
	second, err := f.manager.Open(ctx, "u1", "r2")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	select {
	case <-first.Done():
	case <-time.After(waitFor):
		t.Fatal("previous session was not closed")
	}
	assert.True(t, f.engines.all()[0].Released())
	assert.Empty(t, second.Snapshot().Attractions)
	assert.Equal(t, 1, f.manager.Count())
}

func TestManagerOpenRejectsBadInput(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	_, err := f.manager.Open(ctx, "", "r1")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.manager.Open(ctx, "u1", "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.manager.Open(ctx, "u1", "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.engines.all())
}

func TestManagerOpenFailsWithoutEngine(t *testing.T) {
	f := newManagerFixture(t)
	f.engines.err = errors.New("no audio device")

	_, err := f.manager.Open(context.Background(), "u1", "r1")
	assert.ErrorIs(t, err, shared.ErrPlaybackFailure)
	assert.Equal(t, 0, f.manager.Count())
}

func TestManagerUsesStoredPreference(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.prefs.SetAudioGuideEnabled(ctx, "u1", false))

	runner, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.False(t, runner.Snapshot().AudioGuideEnabled)
}

func TestManagerSetAudioGuidePersistsAndApplies(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	runner, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)

	require.NoError(t, f.manager.SetAudioGuide(ctx, "u1", false))

	enabled, err := f.prefs.AudioGuideEnabled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Eventually(t, func() bool { return !runner.Snapshot().AudioGuideEnabled }, waitFor, tick)

	// no session: only the preference changes
	require.NoError(t, f.manager.SetAudioGuide(ctx, "u2", false))
}

func TestManagerCloseAndGet(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	runner, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)

	f.manager.Close("u1")
	f.manager.Close("u1")

	_, err = f.manager.Get("u1")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	assert.True(t, runner.Snapshot().Closed)
	assert.True(t, f.engines.all()[0].Released())
}

func TestManagerCloseEvictsLocationSource(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	_, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)
	_, err = f.manager.Open(ctx, "u2", "r1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.Len() == 2 }, time.Second, time.Millisecond)

	f.manager.Close("u1")

	assert.Eventually(t, func() bool { return f.hub.Len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.hub.Push("u1", home))
	assert.Equal(t, 1, f.hub.Len())
}

func TestManagerCloseAll(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		_, err := f.manager.Open(ctx, user, "r1")
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.manager.Count())

	f.manager.CloseAll()

	assert.Equal(t, 0, f.manager.Count())
	for _, engine := range f.engines.all() {
		assert.True(t, engine.Released())
	}
}

func TestManagerReloadRoute(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	runner, err := f.manager.Open(ctx, "u1", "r1")
	require.NoError(t, err)

	require.NoError(t, f.repo.SaveRoute(ctx, route.Route{ID: "r1", Name: "Red line"}, testAttractions()[:1]))
	require.NoError(t, f.manager.ReloadRoute(ctx, "r1"))

	assert.Eventually(t, func() bool { return len(runner.Snapshot().Attractions) == 1 }, waitFor, tick)
}

func TestRunnerConfigFromDefaultsBand(t *testing.T) {
	cfg := RunnerConfigFrom(config.GuideConfig{UseMinDistance: true}, nil)

	assert.Equal(t, 100.0, cfg.Guide.Selector.Band.Max)
	assert.True(t, cfg.Guide.Selector.UseMinDistance)
	assert.Equal(t, "a.mp3", cfg.Guide.TrackRef(route.Attraction{AudioURL: "a.mp3", LocalAudioPath: "b.mp3"}))
}
