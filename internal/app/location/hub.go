package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/pkg/logger"
)

// Hub keeps one PushSource per device owner while that owner has a session
// subscribed. The entry is evicted when its last subscription ends.
type Hub struct {
	mu      sync.Mutex
	sources map[string]*hubEntry
	logger  *logger.Logger
}

type hubEntry struct {
	src  *PushSource
	refs int
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Hub{sources: make(map[string]*hubEntry), logger: log}
}

// Source returns userID's stream as a Source
func (h *Hub) Source(userID string) Source {
	return hubSource{hub: h, userID: userID}
}

// Push forwards a fix from userID's device. Fixes for users without a
// subscribed session are validated and dropped.
func (h *Hub) Push(userID string, fix guide.Fix) error {
	src, ok := h.lookup(userID)
	if !ok {
		_, err := checkFix(fix)
		return err
	}
	return src.Push(fix)
}

// Fail terminates userID's current subscriptions
func (h *Hub) Fail(userID string, err error) {
	if src, ok := h.lookup(userID); ok {
		src.Fail(err)
	}
}

// Len returns the number of users with a live entry
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sources)
}

func (h *Hub) lookup(userID string) (*PushSource, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sources[userID]
	if !ok {
		return nil, false
	}
	return e.src, true
}

func (h *Hub) subscribe(ctx context.Context, userID string, interval time.Duration) (<-chan guide.Fix, <-chan error) {
	h.mu.Lock()
	e, ok := h.sources[userID]
	if !ok {
		e = &hubEntry{src: NewPushSource(h.logger.WithUserID(userID))}
		h.sources[userID] = e
	}
	e.refs++
	h.mu.Unlock()

	fixes, errs := e.src.Subscribe(ctx, interval)
	go func() {
		<-ctx.Done()
		h.release(userID, e)
	}()
	return fixes, errs
}

func (h *Hub) release(userID string, e *hubEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.refs--
	if e.refs > 0 || h.sources[userID] != e {
		return
	}
	delete(h.sources, userID)
	h.logger.Debug("Location source evicted", zap.String("user_id", userID))
}

type hubSource struct {
	hub    *Hub
	userID string
}

func (s hubSource) Subscribe(ctx context.Context, interval time.Duration) (<-chan guide.Fix, <-chan error) {
	return s.hub.subscribe(ctx, s.userID, interval)
}
