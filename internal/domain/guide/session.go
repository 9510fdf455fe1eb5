// Package guide is the proximity-driven audio guide state machine.
// Reduce applies one event to a Session and returns the side effects the
// caller must perform; it never does I/O itself.
package guide

import (
	"time"

	"github.com/danghamo/tourguide/internal/domain/proximity"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/internal/domain/shared"
)

// PlaybackState is the session's view of audio
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// Fix is a location sample
type Fix struct {
	shared.Coordinate `yaml:",inline"`
	Accuracy          float64   `json:"accuracy,omitempty" yaml:"accuracy" validate:"gte=0"`
	Timestamp         time.Time `json:"timestamp" yaml:"timestamp"`
}

// Session is the working state of one guide session
type Session struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	RouteID           string             `json:"route_id"`
	Attractions       []route.Attraction `json:"-"`
	Card              Card               `json:"card"`
	Playback          PlaybackState      `json:"playback"`
	CurrentTrackID    string             `json:"current_track_id,omitempty"`
	AudioGuideEnabled bool               `json:"audio_guide_enabled"`
	LastFix           *Fix               `json:"last_fix,omitempty"`
	LocationError     string             `json:"location_error,omitempty"`
	Tracking          bool               `json:"tracking"`
	Closed            bool               `json:"closed"`
	// Version increases every time an event changes the session
	Version uint64 `json:"version"`
	// PlaySeq numbers every PlayTrack and RestartTrack; outcomes of older plays are ignored
	PlaySeq uint64 `json:"play_seq"`
}

// NewSession creates a closed-card session for a route
func NewSession(id, userID, routeID string, attractions []route.Attraction, audioGuideEnabled bool) Session {
	return Session{
		ID:                id,
		UserID:            userID,
		RouteID:           routeID,
		Attractions:       attractions,
		Card:              ClosedCard(),
		Playback:          PlaybackIdle,
		AudioGuideEnabled: audioGuideEnabled,
	}
}

// Clone returns a copy that shares no mutable state with s
func (s Session) Clone() Session {
	out := s
	out.Attractions = append([]route.Attraction(nil), s.Attractions...)
	if s.LastFix != nil {
		fix := *s.LastFix
		out.LastFix = &fix
	}
	return out
}

// Config tunes the state machine
type Config struct {
	Selector proximity.Selector
	// TrackRef picks the audio reference for an attraction; "" means no audio
	TrackRef func(route.Attraction) string
}

// DefaultConfig triggers within 100 m and plays the attraction's own reference
func DefaultConfig() Config {
	return Config{
		Selector: proximity.NewSelector(proximity.DefaultBand(), false),
		TrackRef: DefaultTrackRef,
	}
}

// DefaultTrackRef prefers the cloud URL, then the local path
func DefaultTrackRef(a route.Attraction) string {
	if a.AudioURL != "" {
		return a.AudioURL
	}
	return a.LocalAudioPath
}

func (c Config) trackRef(a route.Attraction) string {
	if c.TrackRef == nil {
		return DefaultTrackRef(a)
	}
	return c.TrackRef(a)
}
