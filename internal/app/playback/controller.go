// Package playback wraps an audio engine with the guide's track lifecycle.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/audio"
	"github.com/danghamo/tourguide/pkg/logger"
)

// State is the controller's lifecycle state
type State string

const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateEnded     State = "ended"
)

// Handlers receive the outcome of one Play. At most one of them fires,
// at most once.
type Handlers struct {
	// OnCompletion fires when the track plays to its natural end
	OnCompletion func(trackID string)
	// OnFailure fires when the engine reports an error for the track
	OnFailure func(trackID string, err error)
}

// Resolver maps a stored track reference to an engine URI
type Resolver interface {
	Playable(ref string) string
}

// Controller owns one audio engine on behalf of one guide session
type Controller struct {
	engine   audio.Engine
	resolver Resolver
	logger   *logger.Logger

	mu       sync.Mutex
	state    State
	trackID  string
	ref      string
	seq      uint64
	handlers *Handlers
	released bool

	events chan audio.Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewController creates a controller and starts its engine event loop
func NewController(engine audio.Engine, resolver Resolver, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	c := &Controller{
		engine:   engine,
		resolver: resolver,
		logger:   log.WithComponent("playback"),
		state:    StateIdle,
		events:   make(chan audio.Event, 32),
		done:     make(chan struct{}),
	}
	engine.SetListener(c.onEngineEvent)

	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *Controller) onEngineEvent(ev audio.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) loop() {
	defer c.wg.Done()
	for {
		select {
		case ev := <-c.events:
			c.handleEngineEvent(ev)
		case <-c.done:
			return
		}
	}
}

func (c *Controller) handleEngineEvent(ev audio.Event) {
	c.mu.Lock()
	if c.released || ev.Seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug("Dropping stale engine event",
			zap.Stringer("signal", ev.Signal), zap.Uint64("seq", ev.Seq))
		return
	}

	var fire func()
	switch ev.Signal {
	case audio.SignalReady:
		if c.state == StateBuffering {
			if err := c.engine.Play(); err != nil {
				fire = c.failLocked(err)
			} else {
				c.state = StatePlaying
				c.logger.Debug("Track playing", zap.String("track_id", c.trackID))
			}
		}
	case audio.SignalEnded:
		if c.state == StatePlaying || c.state == StatePaused || c.state == StateBuffering {
			trackID, h := c.trackID, c.takeHandlersLocked()
			c.state = StateEnded
			c.trackID, c.ref = "", ""
			c.seq = 0
			c.logger.Info("Track completed", zap.String("track_id", trackID))
			if h != nil && h.OnCompletion != nil {
				fire = func() { h.OnCompletion(trackID) }
			}
		}
	case audio.SignalError:
		err := ev.Err
		if err == nil {
			err = errors.New("engine error")
		}
		fire = c.failLocked(err)
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// failLocked resets to Idle and returns the failure notification to run unlocked
func (c *Controller) failLocked(err error) func() {
	trackID, h := c.trackID, c.takeHandlersLocked()
	c.logger.Error("Playback failed", zap.String("track_id", trackID), zap.Error(err))
	c.engine.Stop()
	c.state = StateIdle
	c.trackID, c.ref = "", ""
	c.seq = 0

	if h == nil || h.OnFailure == nil {
		return nil
	}
	wrapped := shared.WrapDomainError(err, shared.ErrCodePlaybackFailure, "playback of "+trackID+" failed")
	return func() { h.OnFailure(trackID, wrapped) }
}

func (c *Controller) takeHandlersLocked() *Handlers {
	h := c.handlers
	c.handlers = nil
	return h
}

func (c *Controller) releasedErr() error {
	return shared.NewDomainError(shared.ErrCodeEngineReleased, "playback controller released")
}

// Play starts trackID from ref. Calling it again for the track that is
// already buffering or playing keeps the track and only swaps in h; for a
// paused track it also resumes.
func (c *Controller) Play(ctx context.Context, trackID, ref string, h Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return c.releasedErr()
	}
	if trackID == c.trackID && trackID != "" {
		switch c.state {
		case StatePlaying, StateBuffering:
			c.handlers = &h
			return nil
		case StatePaused:
			c.handlers = &h
			return c.resumeLocked()
		}
	}
	if ref == "" {
		return shared.NewDomainErrorf(shared.ErrCodePlaybackFailure, "track %s has no audio", trackID)
	}
	return c.startLocked(ctx, trackID, ref, &h)
}

func (c *Controller) startLocked(ctx context.Context, trackID, ref string, h *Handlers) error {
	if c.state != StateIdle && c.state != StateEnded {
		c.engine.Stop()
	}
	// drop the previous track's outcome
	c.handlers = nil
	c.seq = 0

	uri := ref
	if c.resolver != nil {
		uri = c.resolver.Playable(ref)
	}

	seq, err := c.engine.Load(ctx, uri)
	if err != nil {
		c.state = StateIdle
		c.trackID, c.ref = "", ""
		c.logger.Error("Failed to load track",
			zap.String("track_id", trackID), zap.String("uri", uri), zap.Error(err))
		if errors.Is(err, audio.ErrReleased) {
			return c.releasedErr()
		}
		return shared.WrapDomainError(err, shared.ErrCodePlaybackFailure, "cannot load "+trackID)
	}

	c.state = StateBuffering
	c.trackID, c.ref = trackID, ref
	c.seq = seq
	c.handlers = h
	c.logger.Info("Track loading", zap.String("track_id", trackID), zap.String("uri", uri))
	return nil
}

// Pause pauses a playing or buffering track; otherwise it does nothing
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return c.releasedErr()
	}
	switch c.state {
	case StateBuffering:
		// the engine loads paused; Ready will not start it
		c.state = StatePaused
		return nil
	case StatePlaying:
	default:
		c.logger.Debug("Pause ignored", zap.String("state", string(c.state)))
		return nil
	}
	if err := c.engine.Pause(); err != nil {
		return shared.WrapDomainError(err, shared.ErrCodePlaybackFailure, "pause failed")
	}
	c.state = StatePaused
	return nil
}

// Resume continues a paused track, or lets a paused load start once it
// is ready. Otherwise it does nothing.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return c.releasedErr()
	}
	return c.resumeLocked()
}

func (c *Controller) resumeLocked() error {
	if c.state != StatePaused {
		c.logger.Debug("Resume ignored", zap.String("state", string(c.state)))
		return nil
	}
	if !c.engine.Ready() {
		// still loading; play once Ready arrives
		c.state = StateBuffering
		return nil
	}
	if err := c.engine.Play(); err != nil {
		return shared.WrapDomainError(err, shared.ErrCodePlaybackFailure, "resume failed")
	}
	c.state = StatePlaying
	return nil
}

// Restart plays the current track again from the start. Its handlers carry over.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return c.releasedErr()
	}
	return c.restartLocked(ctx, c.handlers)
}

// RestartWith is Restart with h receiving the outcome instead
func (c *Controller) RestartWith(ctx context.Context, h Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return c.releasedErr()
	}
	return c.restartLocked(ctx, &h)
}

// restartLocked rewinds loaded media in place and reloads only when the
// engine has nothing to rewind
func (c *Controller) restartLocked(ctx context.Context, h *Handlers) error {
	if c.trackID == "" {
		return nil
	}
	trackID, ref := c.trackID, c.ref

	if (c.state == StatePlaying || c.state == StatePaused) && c.engine.Ready() {
		seq, err := c.engine.SeekStart()
		if err == nil {
			c.seq = seq
			c.handlers = h
			if err = c.engine.Play(); err == nil {
				c.state = StatePlaying
				c.logger.Info("Track restarted", zap.String("track_id", trackID))
				return nil
			}
		}
		if errors.Is(err, audio.ErrReleased) {
			return c.releasedErr()
		}
		c.logger.Debug("Rewind failed, reloading", zap.String("track_id", trackID), zap.Error(err))
	}
	return c.startLocked(ctx, trackID, ref, h)
}

// Stop halts playback and forgets the current track. No handler fires.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return c.releasedErr()
	}
	if c.state != StateIdle && c.state != StateEnded {
		if err := c.engine.Stop(); err != nil {
			c.logger.Warn("Engine stop failed", zap.Error(err))
		}
	}
	c.state = StateIdle
	c.trackID, c.ref = "", ""
	c.handlers = nil
	c.seq = 0
	return nil
}

// Release stops playback and frees the engine. Later calls are no-ops.
func (c *Controller) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.state = StateIdle
	c.trackID, c.ref = "", ""
	c.handlers = nil
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()

	if err := c.engine.Release(); err != nil {
		c.logger.Warn("Engine release failed", zap.Error(err))
		return err
	}
	c.logger.Info("Playback controller released")
	return nil
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TrackID returns the current track, "" when none
func (c *Controller) TrackID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackID
}

// Position returns the engine position of the current track
func (c *Controller) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trackID == "" {
		return 0
	}
	return c.engine.Position()
}

// Released reports whether Release has been called
func (c *Controller) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
