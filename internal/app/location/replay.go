package location

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/pkg/logger"
)

// Track is a recorded sequence of fixes
type Track struct {
	Name  string      `yaml:"name"`
	Loop  bool        `yaml:"loop"`
	Fixes []guide.Fix `yaml:"fixes" validate:"required,min=1,dive"`
}

var trackValidator = validator.New()

// ParseTrack decodes and validates a YAML track
func ParseTrack(data []byte) (*Track, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var track Track
	if err := dec.Decode(&track); err != nil {
		return nil, fmt.Errorf("failed to parse track: %w", err)
	}
	if err := trackValidator.Struct(&track); err != nil {
		return nil, fmt.Errorf("invalid track: %w", err)
	}
	return &track, nil
}

// LoadTrackFile reads a YAML track from disk
func LoadTrackFile(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track: %w", err)
	}
	return ParseTrack(data)
}

// ReplaySource plays a recorded track back, one fix per interval
type ReplaySource struct {
	track  *Track
	now    func() time.Time
	logger *logger.Logger
}

// NewReplaySource creates a source for track
func NewReplaySource(track *Track, log *logger.Logger) *ReplaySource {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ReplaySource{
		track:  track,
		now:    time.Now,
		logger: log.WithComponent("location-replay"),
	}
}

// Subscribe implements Source. The first fix is sent immediately. A track
// that does not loop closes the stream after its last fix without an error.
func (r *ReplaySource) Subscribe(ctx context.Context, interval time.Duration) (<-chan guide.Fix, <-chan error) {
	fixes := make(chan guide.Fix)
	errs := make(chan error, 1)
	interval = normalizeInterval(interval)

	go func() {
		defer close(errs)
		defer close(fixes)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.logger.Info("Replaying track",
			zap.String("track", r.track.Name),
			zap.Int("fixes", len(r.track.Fixes)),
			zap.Duration("interval", interval),
		)

		for i := 0; ; i++ {
			if i == len(r.track.Fixes) {
				if !r.track.Loop {
					r.logger.Debug("Track finished", zap.String("track", r.track.Name))
					return
				}
				i = 0
			}

			fix := r.track.Fixes[i]
			fix.Timestamp = r.now()
			select {
			case fixes <- fix:
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return fixes, errs
}
