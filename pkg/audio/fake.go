package audio

import (
	"context"
	"sync"
	"time"
)

// FakeEngine is a scriptable Engine for tests. Media becomes ready as soon
// as it is loaded unless ManualReady is set; playback ends only when Finish
// is called.
type FakeEngine struct {
	mu sync.Mutex

	// ManualReady defers SignalReady until MakeReady is called
	ManualReady bool
	// LoadErr, when set, is returned by the next Load
	LoadErr error

	listener Listener
	seq      uint64
	uri      string
	loaded   bool
	ready    bool
	playing  bool
	position time.Duration
	released bool
	calls    []string
}

// NewFakeEngine creates a fake engine
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{}
}

func (f *FakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

// Calls returns the engine methods invoked so far
func (f *FakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// URI returns the last loaded media
func (f *FakeEngine) URI() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uri
}

// Seq returns the sequence number current events are tagged with
func (f *FakeEngine) Seq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Playing reports whether the fake is currently playing
func (f *FakeEngine) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// Released reports whether Release was called
func (f *FakeEngine) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *FakeEngine) SetListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *FakeEngine) Load(_ context.Context, uri string) (uint64, error) {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return 0, ErrReleased
	}
	f.record("load " + uri)
	if err := f.LoadErr; err != nil {
		f.LoadErr = nil
		f.mu.Unlock()
		return 0, err
	}
	f.seq++
	f.uri = uri
	f.loaded, f.ready, f.playing = true, !f.ManualReady, false
	f.position = 0
	seq, ready, l := f.seq, f.ready, f.listener
	f.mu.Unlock()

	if ready && l != nil {
		l(Event{Signal: SignalReady, Seq: seq})
	}
	return seq, nil
}

// MakeReady completes buffering of the loaded media
func (f *FakeEngine) MakeReady() {
	f.mu.Lock()
	if !f.loaded || f.ready {
		f.mu.Unlock()
		return
	}
	f.ready = true
	seq, l := f.seq, f.listener
	f.mu.Unlock()

	if l != nil {
		l(Event{Signal: SignalReady, Seq: seq})
	}
}

func (f *FakeEngine) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return ErrReleased
	}
	f.record("play")
	if f.loaded {
		f.playing = true
	}
	return nil
}

func (f *FakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return ErrReleased
	}
	f.record("pause")
	f.playing = false
	return nil
}

func (f *FakeEngine) SeekStart() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return 0, ErrReleased
	}
	if !f.loaded {
		return 0, ErrNotLoaded
	}
	f.record("seek 0")
	f.seq++
	f.position = 0
	return f.seq, nil
}

func (f *FakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return ErrReleased
	}
	f.record("stop")
	f.loaded, f.ready, f.playing = false, false, false
	f.position = 0
	return nil
}

func (f *FakeEngine) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.released {
		f.record("release")
	}
	f.released = true
	f.loaded, f.ready, f.playing = false, false, false
	return nil
}

func (f *FakeEngine) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Advance moves the playback position forward
func (f *FakeEngine) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position += d
}

func (f *FakeEngine) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

// Finish ends the loaded media naturally
func (f *FakeEngine) Finish() {
	f.mu.Lock()
	if !f.loaded {
		f.mu.Unlock()
		return
	}
	f.loaded, f.ready, f.playing = false, false, false
	seq, l := f.seq, f.listener
	f.mu.Unlock()

	if l != nil {
		l(Event{Signal: SignalEnded, Seq: seq})
	}
}

// Fail reports a decode or network error for the loaded media
func (f *FakeEngine) Fail(err error) {
	f.mu.Lock()
	f.loaded, f.ready, f.playing = false, false, false
	seq, l := f.seq, f.listener
	f.mu.Unlock()

	if l != nil {
		l(Event{Signal: SignalError, Seq: seq, Err: err})
	}
}

// EmitStale delivers an event tagged with an old sequence number
func (f *FakeEngine) EmitStale(sig Signal, seq uint64) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l(Event{Signal: sig, Seq: seq})
	}
}
