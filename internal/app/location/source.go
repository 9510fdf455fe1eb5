// Package location delivers location fixes to guide sessions.
package location

import (
	"context"
	"time"

	"github.com/danghamo/tourguide/internal/domain/guide"
)

// DefaultInterval is the sampling interval when none is configured
const DefaultInterval = 2 * time.Second

// Source is a restartable stream of location fixes.
//
// Subscribe starts a stream that ends when ctx is cancelled or the source
// fails. The fix channel is closed when the stream ends; a terminal error,
// if any, is sent on the error channel before it is closed.
type Source interface {
	Subscribe(ctx context.Context, interval time.Duration) (<-chan guide.Fix, <-chan error)
}

func normalizeInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return DefaultInterval
	}
	return interval
}
