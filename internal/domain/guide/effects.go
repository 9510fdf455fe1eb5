package guide

import (
	"github.com/danghamo/tourguide/internal/domain/route"
)

// Effect is work the caller performs after a transition
type Effect interface {
	effectName() string
}

// PlayTrack stops whatever plays and starts AttractionID's audio.
// Play is the session's PlaySeq for this play.
type PlayTrack struct {
	AttractionID string
	Ref          string
	Play         uint64
}

// RestartTrack plays AttractionID's audio again from position zero
type RestartTrack struct {
	AttractionID string
	Ref          string
	Play         uint64
}

// PauseTrack pauses audio
type PauseTrack struct{}

// ResumeTrack resumes audio
type ResumeTrack struct{}

// StopTrack stops audio
type StopTrack struct{}

// CancelLocation unsubscribes from the location source
type CancelLocation struct{}

// ReleaseEngine frees the audio engine
type ReleaseEngine struct{}

// AnnouncementKind names a change subscribers care about
type AnnouncementKind string

const (
	AttractionShown     AnnouncementKind = "attraction_shown"
	AttractionDismissed AnnouncementKind = "attraction_dismissed"
	LocationLost        AnnouncementKind = "location_lost"
)

// Announce tells subscribers about a card or location change
type Announce struct {
	Kind       AnnouncementKind
	Attraction route.Attraction
	Manual     bool
	Reason     string
}

func (PlayTrack) effectName() string      { return "play_track" }
func (RestartTrack) effectName() string   { return "restart_track" }
func (PauseTrack) effectName() string     { return "pause_track" }
func (ResumeTrack) effectName() string    { return "resume_track" }
func (StopTrack) effectName() string      { return "stop_track" }
func (CancelLocation) effectName() string { return "cancel_location" }
func (ReleaseEngine) effectName() string  { return "release_engine" }
func (Announce) effectName() string       { return "announce" }

// EffectName returns a stable name for logging
func EffectName(e Effect) string {
	return e.effectName()
}
