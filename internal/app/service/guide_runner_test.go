package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/tourguide/internal/app/location"
	"github.com/danghamo/tourguide/internal/app/playback"
	cqrsevents "github.com/danghamo/tourguide/internal/cqrs"
	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/media"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/audio"
	"github.com/danghamo/tourguide/pkg/logger"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

var (
	home = guide.Fix{Coordinate: shared.Coordinate{Lat: 55.7578, Lon: 37.6173}}
	away = guide.Fix{Coordinate: shared.Coordinate{Lat: 55.8000, Lon: 37.6173}}
)

func testAttractions() []route.Attraction {
	return []route.Attraction{
		{ID: "x", RouteID: "r1", Name: "Bolshoi", Location: shared.Coordinate{Lat: 55.758519, Lon: 37.6173},
			AudioURL: "https://cdn.example.com/audio/r1/x.mp3", Order: 1},
		{ID: "y", RouteID: "r1", Name: "Lubyanka", Location: shared.Coordinate{Lat: 55.7658, Lon: 37.6173},
			AudioURL: "https://cdn.example.com/audio/r1/y.mp3", Order: 2},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) all() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}(nil), p.events...)
}

func (p *recordingPublisher) count(match func(interface{}) bool) int {
	n := 0
	for _, e := range p.all() {
		if match(e) {
			n++
		}
	}
	return n
}

type runnerFixture struct {
	runner    *GuideRunner
	engine    *audio.FakeEngine
	source    *location.PushSource
	publisher *recordingPublisher
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{Guide: guide.DefaultConfig(), LocationInterval: time.Millisecond}
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	log := logger.NewDefault()
	engine := audio.NewFakeEngine()
	controller := playback.NewController(engine, media.NewResolver(media.Config{AssetsDir: "/assets"}), log)
	source := location.NewPushSource(log)
	publisher := &recordingPublisher{}

	session := guide.NewSession("s1", "u1", "r1", testAttractions(), true)
	runner := NewGuideRunner(session, controller, source, publisher, testRunnerConfig(), log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		runner.Close()
		cancel()
	})
	runner.Start(ctx)

	require.Eventually(t, func() bool { return source.Subscribers() == 1 }, waitFor, tick)
	return &runnerFixture{runner: runner, engine: engine, source: source, publisher: publisher}
}

// pushUntil keeps pushing fix until cond holds; repeated fixes are no-ops for the session
func (f *runnerFixture) pushUntil(t *testing.T, fix guide.Fix, cond func(guide.Session) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		_ = f.source.Push(fix)
		return cond(f.runner.Snapshot())
	}, waitFor, tick)
}

func playing(s guide.Session) bool { return s.Playback == guide.PlaybackPlaying }

func TestRunnerTracksLocationOnStart(t *testing.T) {
	f := newRunnerFixture(t)

	assert.Eventually(t, func() bool { return f.runner.Snapshot().Tracking }, waitFor, tick)
}

func TestRunnerAutoPlaysNearestAttraction(t *testing.T) {
	f := newRunnerFixture(t)

	f.pushUntil(t, home, playing)

	s := f.runner.Snapshot()
	assert.Equal(t, guide.CardAuto, s.Card.Mode())
	assert.Equal(t, "x", s.Card.AttractionID())
	assert.Equal(t, "x", s.CurrentTrackID)
	assert.Eventually(t, f.engine.Playing, waitFor, tick)
	assert.Contains(t, f.engine.URI(), "x.mp3")

	assert.Eventually(t, func() bool {
		return f.publisher.count(func(e interface{}) bool {
			shown, ok := e.(*cqrsevents.AttractionShownEvent)
			return ok && shown.Attraction.ID == "x" && !shown.Manual
		}) == 1
	}, waitFor, tick)
}

func TestRunnerLeavingRangeStopsAudio(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)

	f.pushUntil(t, away, func(s guide.Session) bool { return !s.Card.IsOpen() })

	s := f.runner.Snapshot()
	assert.Equal(t, guide.PlaybackIdle, s.Playback)
	assert.False(t, f.engine.Playing())
	assert.Eventually(t, func() bool {
		return f.publisher.count(func(e interface{}) bool {
			_, ok := e.(*cqrsevents.AttractionDismissedEvent)
			return ok
		}) == 1
	}, waitFor, tick)
}

func TestRunnerCompletionReturnsToIdle(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)
	require.Eventually(t, f.engine.Playing, waitFor, tick)

	f.engine.Finish()

	assert.Eventually(t, func() bool {
		return f.runner.Snapshot().Playback == guide.PlaybackIdle
	}, waitFor, tick)
	s := f.runner.Snapshot()
	assert.True(t, s.Card.IsOpen(), "card stays open after the track ends")
	assert.Empty(t, s.CurrentTrackID)
}

func TestRunnerPlaybackFailureKeepsCard(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)

	f.engine.Fail(errors.New("decode error"))

	assert.Eventually(t, func() bool {
		return f.runner.Snapshot().Playback == guide.PlaybackIdle
	}, waitFor, tick)
	assert.Equal(t, "x", f.runner.Snapshot().Card.AttractionID())
}

func TestRunnerApplyPauseAndResume(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)
	require.Eventually(t, f.engine.Playing, waitFor, tick)
	ctx := context.Background()

	s, err := f.runner.Apply(ctx, guide.PauseRequested{})
	require.NoError(t, err)
	assert.Equal(t, guide.PlaybackPaused, s.Playback)
	assert.False(t, f.engine.Playing())

	s, err = f.runner.Apply(ctx, guide.ResumeRequested{})
	require.NoError(t, err)
	assert.Equal(t, guide.PlaybackPlaying, s.Playback)
	assert.True(t, f.engine.Playing())
}

func TestRunnerIgnoresCompletionOfEarlierPlay(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)
	require.Eventually(t, f.engine.Playing, waitFor, tick)
	ctx := context.Background()
	first := f.runner.Snapshot().PlaySeq

	_, err := f.runner.Apply(ctx, guide.CardDismissed{})
	require.NoError(t, err)
	_, err = f.runner.Apply(ctx, guide.AttractionSelected{Attraction: testAttractions()[0]})
	require.NoError(t, err)
	s, err := f.runner.Apply(ctx, guide.PlayRequested{})
	require.NoError(t, err)
	require.Equal(t, "x", s.CurrentTrackID)
	require.Greater(t, s.PlaySeq, first)
	require.Eventually(t, f.engine.Playing, waitFor, tick)

	// the first play's end arrives after the replay started
	s, err = f.runner.Apply(ctx, guide.PlaybackCompleted{TrackID: "x", Play: first})
	require.NoError(t, err)
	assert.Equal(t, guide.PlaybackPlaying, s.Playback)
	assert.Equal(t, "x", s.CurrentTrackID)

	s, err = f.runner.Apply(ctx, guide.PauseRequested{})
	require.NoError(t, err)
	assert.Equal(t, guide.PlaybackPaused, s.Playback)
	assert.False(t, f.engine.Playing())

	_, err = f.runner.Apply(ctx, guide.ResumeRequested{})
	require.NoError(t, err)
	f.engine.Finish()
	assert.Eventually(t, func() bool {
		return f.runner.Snapshot().Playback == guide.PlaybackIdle
	}, waitFor, tick)
}

func TestRunnerRestartRewindsLoadedTrack(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)
	require.Eventually(t, f.engine.Playing, waitFor, tick)
	f.engine.Advance(30 * time.Second)

	s, err := f.runner.Apply(context.Background(), guide.RestartRequested{})
	require.NoError(t, err)
	assert.Equal(t, guide.PlaybackPlaying, s.Playback)
	assert.Equal(t, time.Duration(0), f.engine.Position())

	loads := 0
	for _, call := range f.engine.Calls() {
		if strings.HasPrefix(call, "load ") {
			loads++
		}
	}
	assert.Equal(t, 1, loads)
	assert.Contains(t, f.engine.Calls(), "seek 0")

	f.engine.Finish()
	assert.Eventually(t, func() bool {
		return f.runner.Snapshot().Playback == guide.PlaybackIdle
	}, waitFor, tick)
}

func TestRunnerManualSelectionDoesNotAutoplay(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	s, err := f.runner.Apply(ctx, guide.AttractionSelected{Attraction: testAttractions()[1]})
	require.NoError(t, err)
	assert.True(t, s.Card.IsManuallyOpened())
	assert.Equal(t, guide.PlaybackIdle, s.Playback)

	s, err = f.runner.Apply(ctx, guide.PlayRequested{})
	require.NoError(t, err)
	assert.Equal(t, "y", s.CurrentTrackID)
	assert.Eventually(t, f.engine.Playing, waitFor, tick)
}

func TestRunnerLocationFailureAndRestart(t *testing.T) {
	f := newRunnerFixture(t)
	require.Eventually(t, func() bool { return f.runner.Snapshot().Tracking }, waitFor, tick)

	f.source.Fail(errors.New("permission revoked"))

	require.Eventually(t, func() bool {
		s := f.runner.Snapshot()
		return !s.Tracking && s.LocationError != ""
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		return f.publisher.count(func(e interface{}) bool {
			_, ok := e.(*cqrsevents.LocationLostEvent)
			return ok
		}) == 1
	}, waitFor, tick)

	f.runner.RestartLocation()

	assert.Eventually(t, func() bool { return f.source.Subscribers() == 1 }, waitFor, tick)
	assert.Eventually(t, func() bool {
		s := f.runner.Snapshot()
		return s.Tracking && s.LocationError == ""
	}, waitFor, tick)
	f.pushUntil(t, home, playing)
}

func TestRunnerPublishesVersionedState(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)

	var versions []uint64
	for _, e := range f.publisher.all() {
		if changed, ok := e.(*cqrsevents.GuideStateChangedEvent); ok {
			versions = append(versions, changed.Version)
			assert.NotEmpty(t, changed.State)
			assert.NotEmpty(t, changed.Cause)
		}
	}
	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestRunnerCloseReleasesEngine(t *testing.T) {
	f := newRunnerFixture(t)
	f.pushUntil(t, home, playing)

	f.runner.Close()
	f.runner.Close()

	select {
	case <-f.runner.Done():
	case <-time.After(waitFor):
		t.Fatal("runner did not stop")
	}
	assert.True(t, f.engine.Released())
	assert.True(t, f.runner.Snapshot().Closed)
	assert.Eventually(t, func() bool { return f.source.Subscribers() == 0 }, waitFor, tick)

	err := f.runner.Submit(context.Background(), guide.PlayRequested{})
	assert.ErrorIs(t, err, shared.ErrSessionClosed)
	_, err = f.runner.Apply(context.Background(), guide.PlayRequested{})
	assert.ErrorIs(t, err, shared.ErrSessionClosed)

	assert.Equal(t, 1, f.publisher.count(func(e interface{}) bool {
		_, ok := e.(*cqrsevents.GuideSessionClosedEvent)
		return ok
	}))
}

func TestRunnerContextCancelClosesSession(t *testing.T) {
	log := logger.NewDefault()
	engine := audio.NewFakeEngine()
	controller := playback.NewController(engine, nil, log)
	session := guide.NewSession("s2", "u2", "r1", testAttractions(), true)
	runner := NewGuideRunner(session, controller, location.NewPushSource(log), nil, testRunnerConfig(), log)

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)
	cancel()

	select {
	case <-runner.Done():
	case <-time.After(waitFor):
		t.Fatal("runner did not stop")
	}
	assert.True(t, engine.Released())
	assert.True(t, runner.Snapshot().Closed)
}

func TestRunnerCloseBeforeStart(t *testing.T) {
	log := logger.NewDefault()
	engine := audio.NewFakeEngine()
	controller := playback.NewController(engine, nil, log)
	session := guide.NewSession("s3", "u3", "r1", nil, true)
	runner := NewGuideRunner(session, controller, location.NewPushSource(log), nil, testRunnerConfig(), log)

	runner.Close()
	runner.Start(context.Background())

	select {
	case <-runner.Done():
	default:
		t.Fatal("Done should be closed")
	}
	assert.True(t, engine.Released())
}
