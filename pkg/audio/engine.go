// Package audio drives the device that actually makes sound.
package audio

import (
	"context"
	"errors"
	"time"
)

// Signal is an asynchronous notification from an engine
type Signal int

const (
	// SignalReady means the loaded media can start playing
	SignalReady Signal = iota + 1
	// SignalEnded means the media played to its natural end
	SignalEnded
	// SignalError means the media failed to load or decode
	SignalError
)

func (s Signal) String() string {
	switch s {
	case SignalReady:
		return "ready"
	case SignalEnded:
		return "ended"
	case SignalError:
		return "error"
	default:
		return "unknown"
	}
}

// Event carries a signal together with the load it refers to
type Event struct {
	Signal Signal
	// Seq is the value returned by the Load that produced this event
	Seq uint64
	Err error
}

// Listener receives engine events. It may be called from any goroutine
// and must not block.
type Listener func(Event)

var (
	// ErrReleased is returned by engines after Release
	ErrReleased = errors.New("audio engine released")
	// ErrNotLoaded is returned by SeekStart when no media is loaded
	ErrNotLoaded = errors.New("no media loaded")
)

// Engine is a single-track player
type Engine interface {
	// Load replaces the current media with uri and starts buffering it paused.
	// The returned sequence number tags every event about this media.
	Load(ctx context.Context, uri string) (uint64, error)
	// Play starts or continues playback of the loaded media
	Play() error
	// Pause pauses playback, keeping the position
	Pause() error
	// SeekStart moves the loaded media to position zero. Later events carry
	// the returned sequence number, so events from before the rewind are stale.
	// It returns ErrNotLoaded when there is no media to rewind.
	SeekStart() (uint64, error)
	// Stop halts playback and unloads the media
	Stop() error
	// Release frees the device; the engine is unusable afterwards
	Release() error
	// Ready reports whether loaded media can play without further buffering
	Ready() bool
	// Position is the playback position of the loaded media
	Position() time.Duration
	// SetListener installs the event listener
	SetListener(Listener)
}
