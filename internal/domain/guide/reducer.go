package guide

import (
	"github.com/danghamo/tourguide/internal/domain/route"
)

// Reduce applies e to s. It returns the next session and the effects to run,
// in order. A closed session ignores every event.
func Reduce(s Session, e Event, cfg Config) (Session, []Effect) {
	if s.Closed {
		return s, nil
	}

	r := reduction{next: s.Clone(), cfg: cfg}
	switch ev := e.(type) {
	case AttractionsLoaded:
		r.attractionsLoaded(ev)
	case TrackingStarted:
		r.trackingStarted()
	case LocationUpdated:
		r.locationUpdated(ev)
	case LocationFailed:
		r.locationFailed(ev)
	case AttractionSelected:
		r.attractionSelected(ev)
	case CardDismissed:
		r.cardDismissed()
	case PlayRequested:
		r.playRequested()
	case PauseRequested:
		if r.next.Playback == PlaybackPlaying {
			r.setPlayback(PlaybackPaused, r.next.CurrentTrackID)
			r.emit(PauseTrack{})
		}
	case ResumeRequested:
		if r.next.Playback == PlaybackPaused {
			r.setPlayback(PlaybackPlaying, r.next.CurrentTrackID)
			r.emit(ResumeTrack{})
		}
	case RestartRequested:
		r.restartRequested()
	case StopRequested:
		if r.next.Playback != PlaybackIdle || r.next.CurrentTrackID != "" {
			r.stop()
		}
	case PlaybackCompleted:
		r.playbackFinished(ev.TrackID, ev.Play)
	case PlaybackFailed:
		r.playbackFinished(ev.TrackID, ev.Play)
	case AudioGuideToggled:
		if r.next.AudioGuideEnabled != ev.Enabled {
			r.next.AudioGuideEnabled = ev.Enabled
			r.changed = true
		}
	case SessionClosed:
		r.sessionClosed()
	}

	if !r.changed {
		return s, r.effects
	}
	r.next.Version = s.Version + 1
	return r.next, r.effects
}

type reduction struct {
	next    Session
	cfg     Config
	effects []Effect
	changed bool
}

func (r *reduction) emit(effects ...Effect) {
	r.effects = append(r.effects, effects...)
}

func (r *reduction) setCard(c Card) {
	r.next.Card = c
	r.changed = true
}

func (r *reduction) setPlayback(p PlaybackState, trackID string) {
	if r.next.Playback == p && r.next.CurrentTrackID == trackID {
		return
	}
	r.next.Playback = p
	r.next.CurrentTrackID = trackID
	r.changed = true
}

func (r *reduction) stop() {
	r.emit(StopTrack{})
	r.setPlayback(PlaybackIdle, "")
}

func (r *reduction) play(a route.Attraction) bool {
	ref := r.cfg.trackRef(a)
	if ref == "" {
		return false
	}
	r.next.PlaySeq++
	r.changed = true
	r.emit(PlayTrack{AttractionID: a.ID, Ref: ref, Play: r.next.PlaySeq})
	r.setPlayback(PlaybackPlaying, a.ID)
	return true
}

func (r *reduction) attractionsLoaded(ev AttractionsLoaded) {
	r.next.Attractions = append([]route.Attraction(nil), ev.Attractions...)
	r.changed = true

	shown, ok := r.next.Card.Attraction()
	if !ok {
		return
	}
	if updated, found := route.Find(r.next.Attractions, shown.ID); found {
		if r.next.Card.IsManuallyOpened() {
			r.next.Card = ManualCard(updated)
		} else {
			r.next.Card = AutoCard(updated)
		}
		return
	}
	if !r.next.Card.IsManuallyOpened() {
		r.dismissAuto(shown, "attraction removed")
	}
}

func (r *reduction) trackingStarted() {
	if r.next.Tracking && r.next.LocationError == "" {
		return
	}
	r.next.Tracking = true
	r.next.LocationError = ""
	r.changed = true
}

func (r *reduction) locationUpdated(ev LocationUpdated) {
	fix := ev.Fix
	r.next.LastFix = &fix
	r.next.Tracking = true
	r.next.LocationError = ""
	r.changed = true

	if len(r.next.Attractions) == 0 {
		return
	}

	nearest, ok := r.cfg.Selector.Nearest(fix.Lat, fix.Lon, r.next.Attractions)
	if !ok {
		if shown, open := r.next.Card.Attraction(); open && !r.next.Card.IsManuallyOpened() {
			r.dismissAuto(shown, "out of range")
		}
		return
	}

	if nearest.ID == r.next.Card.AttractionID() {
		return
	}

	r.setCard(AutoCard(nearest))
	r.emit(Announce{Kind: AttractionShown, Attraction: nearest})

	if r.next.AudioGuideEnabled && r.play(nearest) {
		return
	}
	if r.next.Playback != PlaybackIdle || r.next.CurrentTrackID != "" {
		r.stop()
	}
}

func (r *reduction) dismissAuto(shown route.Attraction, reason string) {
	if r.next.Playback != PlaybackIdle || r.next.CurrentTrackID != "" {
		r.stop()
	}
	r.setCard(ClosedCard())
	r.emit(Announce{Kind: AttractionDismissed, Attraction: shown, Reason: reason})
}

func (r *reduction) locationFailed(ev LocationFailed) {
	reason := "location unavailable"
	if ev.Err != nil {
		reason = ev.Err.Error()
	}
	r.next.Tracking = false
	r.next.LocationError = reason
	r.changed = true
	r.emit(Announce{Kind: LocationLost, Reason: reason})
}

func (r *reduction) attractionSelected(ev AttractionSelected) {
	r.setCard(ManualCard(ev.Attraction))
	r.emit(Announce{Kind: AttractionShown, Attraction: ev.Attraction, Manual: true})
}

func (r *reduction) cardDismissed() {
	shown, open := r.next.Card.Attraction()
	r.stop()
	if !open {
		return
	}
	r.setCard(ClosedCard())
	r.emit(Announce{Kind: AttractionDismissed, Attraction: shown, Manual: true, Reason: "dismissed"})
}

func (r *reduction) playRequested() {
	shown, open := r.next.Card.Attraction()
	if !open {
		return
	}
	if r.next.CurrentTrackID == shown.ID {
		switch r.next.Playback {
		case PlaybackPlaying:
			return
		case PlaybackPaused:
			r.setPlayback(PlaybackPlaying, shown.ID)
			r.emit(ResumeTrack{})
			return
		}
	}
	r.play(shown)
}

func (r *reduction) restartRequested() {
	shown, open := r.next.Card.Attraction()
	if !open {
		return
	}
	ref := r.cfg.trackRef(shown)
	if ref == "" {
		return
	}
	r.next.PlaySeq++
	r.changed = true
	r.emit(RestartTrack{AttractionID: shown.ID, Ref: ref, Play: r.next.PlaySeq})
	r.setPlayback(PlaybackPlaying, shown.ID)
}

func (r *reduction) playbackFinished(trackID string, play uint64) {
	if trackID == "" || trackID != r.next.CurrentTrackID || play != r.next.PlaySeq {
		return
	}
	r.setPlayback(PlaybackIdle, "")
}

func (r *reduction) sessionClosed() {
	r.next.Closed = true
	r.next.Tracking = false
	r.next.Playback = PlaybackIdle
	r.next.CurrentTrackID = ""
	r.changed = true
	r.emit(CancelLocation{}, ReleaseEngine{})
}
