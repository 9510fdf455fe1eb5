package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
)

// PushSource is fed by a device over the API and fans fixes out to subscribers
type PushSource struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	logger *logger.Logger
}

type subscription struct {
	fixes   chan guide.Fix
	errs    chan error
	limiter *rate.Limiter
}

// NewPushSource creates an empty push source
func NewPushSource(log *logger.Logger) *PushSource {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &PushSource{
		subs:   make(map[uint64]*subscription),
		logger: log.WithComponent("location-push"),
	}
}

// Subscribe implements Source. Each subscriber receives at most one fix per interval.
func (p *PushSource) Subscribe(ctx context.Context, interval time.Duration) (<-chan guide.Fix, <-chan error) {
	sub := &subscription{
		fixes:   make(chan guide.Fix, 1),
		errs:    make(chan error, 1),
		limiter: rate.NewLimiter(rate.Every(normalizeInterval(interval)), 1),
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = sub
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if s, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(s.fixes)
			close(s.errs)
		}
	}()

	return sub.fixes, sub.errs
}

// Push delivers a fix to every subscriber whose interval has elapsed
func (p *PushSource) Push(fix guide.Fix) error {
	fix, err := checkFix(fix)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subs {
		if !sub.limiter.Allow() {
			continue
		}
		select {
		case sub.fixes <- fix:
		default:
			// subscriber is behind; replace the stale fix
			select {
			case <-sub.fixes:
			default:
			}
			sub.fixes <- fix
		}
	}
	return nil
}

// Fail ends every current subscription with err, for example when the device
// reports that location permission was revoked. Later subscriptions start fresh.
func (p *PushSource) Fail(err error) {
	wrapped := shared.NewDomainError(shared.ErrCodeLocationUnavailable, "location stream failed")
	if err != nil {
		wrapped = shared.WrapDomainError(err, shared.ErrCodeLocationUnavailable, "location stream failed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Warn("Location source failed",
		zap.Int("subscribers", len(p.subs)),
		zap.Error(err),
	)
	for id, sub := range p.subs {
		sub.errs <- wrapped
		close(sub.fixes)
		close(sub.errs)
		delete(p.subs, id)
	}
}

// Subscribers returns the number of live subscriptions
func (p *PushSource) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func checkFix(fix guide.Fix) (guide.Fix, error) {
	if !fix.Coordinate.IsValid() {
		return fix, shared.ErrInvalidInputf("invalid location fix %s", fix.Coordinate)
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	return fix, nil
}
