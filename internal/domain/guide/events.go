package guide

import (
	"github.com/danghamo/tourguide/internal/domain/route"
)

// Event is an input to the state machine
type Event interface {
	eventName() string
}

// AttractionsLoaded replaces the candidate set
type AttractionsLoaded struct {
	Attractions []route.Attraction
}

// TrackingStarted means the location subscription is (re)established
type TrackingStarted struct{}

// LocationUpdated carries a new location sample
type LocationUpdated struct {
	Fix Fix
}

// LocationFailed means the location stream terminated with an error
type LocationFailed struct {
	Err error
}

// AttractionSelected is an explicit selection, such as a map marker tap
type AttractionSelected struct {
	Attraction route.Attraction
}

// CardDismissed closes the card
type CardDismissed struct{}

// PlayRequested is the listener pressing play on the shown card
type PlayRequested struct{}

// PauseRequested pauses audio
type PauseRequested struct{}

// ResumeRequested resumes paused audio
type ResumeRequested struct{}

// RestartRequested plays the shown card's audio from the start
type RestartRequested struct{}

// StopRequested stops audio, leaving the card open
type StopRequested struct{}

// PlaybackCompleted is the end-of-track signal for TrackID. Play is the
// PlaySeq of the PlayTrack or RestartTrack that started it.
type PlaybackCompleted struct {
	TrackID string
	Play    uint64
}

// PlaybackFailed means TrackID could not be played
type PlaybackFailed struct {
	TrackID string
	Play    uint64
	Err     error
}

// AudioGuideToggled changes whether proximity auto-plays audio
type AudioGuideToggled struct {
	Enabled bool
}

// SessionClosed tears the session down
type SessionClosed struct{}

func (AttractionsLoaded) eventName() string  { return "attractions_loaded" }
func (TrackingStarted) eventName() string    { return "tracking_started" }
func (LocationUpdated) eventName() string    { return "location_updated" }
func (LocationFailed) eventName() string     { return "location_failed" }
func (AttractionSelected) eventName() string { return "attraction_selected" }
func (CardDismissed) eventName() string      { return "card_dismissed" }
func (PlayRequested) eventName() string      { return "play_requested" }
func (PauseRequested) eventName() string     { return "pause_requested" }
func (ResumeRequested) eventName() string    { return "resume_requested" }
func (RestartRequested) eventName() string   { return "restart_requested" }
func (StopRequested) eventName() string      { return "stop_requested" }
func (PlaybackCompleted) eventName() string  { return "playback_completed" }
func (PlaybackFailed) eventName() string     { return "playback_failed" }
func (AudioGuideToggled) eventName() string  { return "audio_guide_toggled" }
func (SessionClosed) eventName() string      { return "session_closed" }

// EventName returns a stable name for logging
func EventName(e Event) string {
	return e.eventName()
}
