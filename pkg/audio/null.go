package audio

import (
	"context"
	"sync"
	"time"
)

// NullEngine accepts every command and never makes a sound. Loaded media is
// ready immediately and never ends. Used on headless deployments where the
// listener's own device plays the audio.
type NullEngine struct {
	mu       sync.Mutex
	listener Listener
	seq      uint64
	loaded   bool
	released bool
}

// NewNullEngine creates a null engine
func NewNullEngine() *NullEngine {
	return &NullEngine{}
}

func (n *NullEngine) SetListener(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = l
}

func (n *NullEngine) Load(_ context.Context, _ string) (uint64, error) {
	n.mu.Lock()
	if n.released {
		n.mu.Unlock()
		return 0, ErrReleased
	}
	n.seq++
	n.loaded = true
	seq, l := n.seq, n.listener
	n.mu.Unlock()

	if l != nil {
		l(Event{Signal: SignalReady, Seq: seq})
	}
	return seq, nil
}

func (n *NullEngine) Play() error  { return nil }
func (n *NullEngine) Pause() error { return nil }

func (n *NullEngine) SeekStart() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return 0, ErrReleased
	}
	if !n.loaded {
		return 0, ErrNotLoaded
	}
	n.seq++
	return n.seq, nil
}

func (n *NullEngine) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loaded = false
	return nil
}

func (n *NullEngine) Release() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released = true
	n.loaded = false
	return nil
}

func (n *NullEngine) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loaded
}

func (n *NullEngine) Position() time.Duration { return 0 }
