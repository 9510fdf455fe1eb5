// Package service runs guide sessions: one event loop per session that
// applies guide events in order and carries out their effects.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/app/location"
	"github.com/danghamo/tourguide/internal/app/playback"
	cqrsevents "github.com/danghamo/tourguide/internal/cqrs"
	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
)

// EventPublisher publishes domain events, typically a watermill cqrs.EventBus
type EventPublisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// RunnerConfig tunes a session runner
type RunnerConfig struct {
	Guide            guide.Config
	LocationInterval time.Duration
	// Buffer is the inbox capacity
	Buffer int
	// AudioGuideDefault applies when the stored preference cannot be read
	AudioGuideDefault bool
}

type envelope struct {
	event guide.Event
	reply chan guide.Session
}

// GuideRunner owns one guide session. Every input is queued on one inbox
// and applied by a single goroutine; nothing else writes the session.
type GuideRunner struct {
	id         string
	cfg        RunnerConfig
	controller *playback.Controller
	source     location.Source
	publisher  EventPublisher
	logger     *logger.Logger

	inbox   chan envelope
	restart chan struct{}
	closing chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	mu      sync.RWMutex
	session guide.Session

	// loop-owned
	ctx            context.Context
	cancel         context.CancelFunc
	cancelLocation context.CancelFunc
	lastState      []byte
}

// NewGuideRunner creates a runner for session. It does nothing until Start.
func NewGuideRunner(
	session guide.Session,
	controller *playback.Controller,
	source location.Source,
	publisher EventPublisher,
	cfg RunnerConfig,
	log *logger.Logger,
) *GuideRunner {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &GuideRunner{
		id:         session.ID,
		cfg:        cfg,
		controller: controller,
		source:     source,
		publisher:  publisher,
		logger: log.WithComponent("guide-runner").
			WithSessionID(session.ID).
			WithUserID(session.UserID).
			WithRouteID(session.RouteID),
		inbox:   make(chan envelope, cfg.Buffer),
		restart: make(chan struct{}, 1),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
		session: session,
	}
}

// Start subscribes to location and starts the event loop. The session is
// closed when ctx is cancelled.
func (r *GuideRunner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		select {
		case <-r.closing:
			return
		default:
		}
		r.ctx, r.cancel = context.WithCancel(ctx)
		r.started.Store(true)
		go r.loop()
	})
}

// ID returns the session id
func (r *GuideRunner) ID() string {
	return r.id
}

// Snapshot returns a copy of the current session
func (r *GuideRunner) Snapshot() guide.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session.Clone()
}

// Submit queues e without waiting for it to be applied
func (r *GuideRunner) Submit(ctx context.Context, e guide.Event) error {
	return r.enqueue(ctx, envelope{event: e})
}

// Apply queues e and returns the session once e has been applied
func (r *GuideRunner) Apply(ctx context.Context, e guide.Event) (guide.Session, error) {
	reply := make(chan guide.Session, 1)
	if err := r.enqueue(ctx, envelope{event: e, reply: reply}); err != nil {
		return guide.Session{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.stopped:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return guide.Session{}, ctx.Err()
	}
}

func (r *GuideRunner) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-r.closing:
		return shared.ErrSessionClosedf(r.id)
	case <-r.stopped:
		return shared.ErrSessionClosedf(r.id)
	default:
	}

	select {
	case r.inbox <- env:
		return nil
	case <-r.stopped:
		return shared.ErrSessionClosedf(r.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RestartLocation resubscribes to the location source, for example after
// the device granted permission again
func (r *GuideRunner) RestartLocation() {
	select {
	case r.restart <- struct{}{}:
	default:
	}
}

// Close tears the session down and waits for the loop to finish. It is
// safe to call more than once.
func (r *GuideRunner) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	if r.started.Load() {
		<-r.stopped
		return
	}
	// never started: nothing but the engine to free
	r.stopOnce.Do(func() {
		r.controller.Release()
		close(r.stopped)
	})
}

// Done is closed when the loop has exited
func (r *GuideRunner) Done() <-chan struct{} {
	return r.stopped
}

func (r *GuideRunner) loop() {
	defer r.stopOnce.Do(func() { close(r.stopped) })
	defer r.cancel()

	r.lastState, _ = json.Marshal(r.Snapshot())
	r.logger.Info("Guide session started")

	r.startLocation()
	r.dispatch(envelope{event: guide.TrackingStarted{}})

	for {
		select {
		case env := <-r.inbox:
			r.dispatch(env)
		case <-r.restart:
			r.stopLocation()
			r.startLocation()
			r.dispatch(envelope{event: guide.TrackingStarted{}})
		case <-r.closing:
			r.shutdown()
			return
		case <-r.ctx.Done():
			r.shutdown()
			return
		}
	}
}

func (r *GuideRunner) shutdown() {
	r.dispatch(envelope{event: guide.SessionClosed{}})

	// answer callers still waiting in the inbox
	for {
		select {
		case env := <-r.inbox:
			if env.reply != nil {
				env.reply <- r.Snapshot()
			}
		default:
			s := r.Snapshot()
			r.publish(&cqrsevents.GuideSessionClosedEvent{
				SessionID: s.ID,
				UserID:    s.UserID,
				RouteID:   s.RouteID,
				Timestamp: time.Now(),
				RequestID: uuid.New().String(),
			})
			r.logger.Info("Guide session closed")
			return
		}
	}
}

// dispatch applies one event and any follow-up events its effects produce
func (r *GuideRunner) dispatch(env envelope) {
	queue := []guide.Event{env.event}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		prev := r.Snapshot()
		next, effects := guide.Reduce(prev, e, r.cfg.Guide)
		if next.Version != prev.Version {
			r.mu.Lock()
			r.session = next
			r.mu.Unlock()
			r.publishState(next, guide.EventName(e))
		}

		for _, effect := range effects {
			queue = append(queue, r.run(next, effect)...)
		}
	}

	if env.reply != nil {
		env.reply <- r.Snapshot()
	}
}

// run performs one effect. Failures come back as events, never as errors.
func (r *GuideRunner) run(s guide.Session, effect guide.Effect) []guide.Event {
	r.logger.Debug("Running effect", zap.String("effect", guide.EffectName(effect)))

	switch e := effect.(type) {
	case guide.PlayTrack:
		if err := r.controller.Play(r.ctx, e.AttractionID, e.Ref, r.handlers(e.Play)); err != nil {
			r.logger.Warn("Play failed", zap.String("track_id", e.AttractionID), zap.Error(err))
			return []guide.Event{guide.PlaybackFailed{TrackID: e.AttractionID, Play: e.Play, Err: err}}
		}
	case guide.RestartTrack:
		var err error
		if r.controller.TrackID() == e.AttractionID {
			err = r.controller.RestartWith(r.ctx, r.handlers(e.Play))
		} else {
			err = r.controller.Play(r.ctx, e.AttractionID, e.Ref, r.handlers(e.Play))
		}
		if err != nil {
			r.logger.Warn("Restart failed", zap.String("track_id", e.AttractionID), zap.Error(err))
			return []guide.Event{guide.PlaybackFailed{TrackID: e.AttractionID, Play: e.Play, Err: err}}
		}
	case guide.PauseTrack:
		if err := r.controller.Pause(); err != nil {
			r.logger.Warn("Pause failed", zap.Error(err))
		}
	case guide.ResumeTrack:
		if err := r.controller.Resume(); err != nil {
			r.logger.Warn("Resume failed", zap.Error(err))
			return []guide.Event{guide.PlaybackFailed{TrackID: s.CurrentTrackID, Play: s.PlaySeq, Err: err}}
		}
	case guide.StopTrack:
		if err := r.controller.Stop(); err != nil {
			r.logger.Warn("Stop failed", zap.Error(err))
		}
	case guide.CancelLocation:
		r.stopLocation()
	case guide.ReleaseEngine:
		if err := r.controller.Release(); err != nil {
			r.logger.Warn("Engine release failed", zap.Error(err))
		}
	case guide.Announce:
		r.announce(s, e)
	}
	return nil
}

// handlers tags the outcome of one play with its PlaySeq
func (r *GuideRunner) handlers(play uint64) playback.Handlers {
	return playback.Handlers{
		OnCompletion: func(trackID string) {
			r.post(guide.PlaybackCompleted{TrackID: trackID, Play: play})
		},
		OnFailure: func(trackID string, err error) {
			r.post(guide.PlaybackFailed{TrackID: trackID, Play: play, Err: err})
		},
	}
}

// post queues an event from a callback without ever blocking the caller
func (r *GuideRunner) post(e guide.Event) {
	env := envelope{event: e}
	select {
	case r.inbox <- env:
	case <-r.stopped:
	default:
		go func() {
			select {
			case r.inbox <- env:
			case <-r.stopped:
			}
		}()
	}
}

func (r *GuideRunner) startLocation() {
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancelLocation = cancel

	fixes, errs := r.source.Subscribe(ctx, r.cfg.LocationInterval)
	go r.pumpLocation(ctx, fixes, errs)
}

func (r *GuideRunner) stopLocation() {
	if r.cancelLocation != nil {
		r.cancelLocation()
		r.cancelLocation = nil
	}
}

func (r *GuideRunner) pumpLocation(ctx context.Context, fixes <-chan guide.Fix, errs <-chan error) {
	send := func(e guide.Event) bool {
		select {
		case r.inbox <- envelope{event: e}:
			return true
		case <-ctx.Done():
			return false
		case <-r.stopped:
			return false
		}
	}

	for fix := range fixes {
		if !send(guide.LocationUpdated{Fix: fix}) {
			return
		}
	}

	err, ok := <-errs
	if ok && err != nil && ctx.Err() == nil {
		r.logger.Warn("Location stream failed", zap.Error(err))
		send(guide.LocationFailed{Err: err})
	}
}

func (r *GuideRunner) publishState(s guide.Session, cause string) {
	state, err := json.Marshal(s)
	if err != nil {
		r.logger.Error("Failed to encode session", zap.Error(err))
		return
	}

	patch, err := jsonpatch.CreateMergePatch(r.lastState, state)
	if err != nil {
		r.logger.Warn("Failed to diff session", zap.Error(err))
		patch = nil
	}
	r.lastState = state

	r.publish(&cqrsevents.GuideStateChangedEvent{
		SessionID: s.ID,
		UserID:    s.UserID,
		RouteID:   s.RouteID,
		Version:   s.Version,
		Cause:     cause,
		State:     state,
		Patch:     patch,
		Timestamp: time.Now(),
		RequestID: uuid.New().String(),
	})
}

func (r *GuideRunner) announce(s guide.Session, a guide.Announce) {
	now := time.Now()
	switch a.Kind {
	case guide.AttractionShown:
		r.logger.Info("Attraction shown",
			zap.String("attraction_id", a.Attraction.ID), zap.Bool("manual", a.Manual))
		r.publish(&cqrsevents.AttractionShownEvent{
			SessionID: s.ID, UserID: s.UserID, Attraction: a.Attraction, Manual: a.Manual,
			Timestamp: now, RequestID: uuid.New().String(),
		})
	case guide.AttractionDismissed:
		r.logger.Info("Attraction dismissed",
			zap.String("attraction_id", a.Attraction.ID), zap.String("reason", a.Reason))
		r.publish(&cqrsevents.AttractionDismissedEvent{
			SessionID: s.ID, UserID: s.UserID, Attraction: a.Attraction, Reason: a.Reason,
			Timestamp: now, RequestID: uuid.New().String(),
		})
	case guide.LocationLost:
		r.publish(&cqrsevents.LocationLostEvent{
			SessionID: s.ID, UserID: s.UserID, Reason: a.Reason,
			Timestamp: now, RequestID: uuid.New().String(),
		})
	}
}

func (r *GuideRunner) publish(event interface{}) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(context.WithoutCancel(r.ctx), event); err != nil {
		r.logger.Warn("Failed to publish event", zap.Error(err))
	}
}
