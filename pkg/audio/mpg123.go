package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/pkg/logger"
)

// Mpg123Engine plays media through mpg123 running in remote-control mode (-R).
// Commands go to its stdin; status lines (@P, @E, @F) come back on stdout.
type Mpg123Engine struct {
	path   string
	logger *logger.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	listener   Listener
	seq        uint64
	loaded     bool
	ready      bool
	playing    bool
	expectStop bool
	position   time.Duration
	released   bool
	exited     chan struct{}
}

// NewMpg123Engine creates an engine that runs the mpg123 binary at path
func NewMpg123Engine(path string, log *logger.Logger) *Mpg123Engine {
	if path == "" {
		path = "mpg123"
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Mpg123Engine{path: path, logger: log.WithComponent("mpg123")}
}

// SetListener installs the event listener
func (e *Mpg123Engine) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

func (e *Mpg123Engine) startLocked() error {
	if e.cmd != nil {
		return nil
	}

	cmd := exec.Command(e.path, "-R")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", e.path, err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.exited = make(chan struct{})
	go e.readStatus(stdout, e.exited)

	e.logger.Info("mpg123 started", zap.Int("pid", cmd.Process.Pid))
	return nil
}

func (e *Mpg123Engine) sendLocked(command string) error {
	if e.released {
		return ErrReleased
	}
	if err := e.startLocked(); err != nil {
		return err
	}
	if _, err := io.WriteString(e.stdin, command+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", command, err)
	}
	return nil
}

// Load loads uri paused
func (e *Mpg123Engine) Load(_ context.Context, uri string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sendLocked("LOADPAUSED " + uri); err != nil {
		return 0, err
	}
	e.seq++
	e.loaded = true
	e.ready = false
	e.playing = false
	e.position = 0
	return e.seq, nil
}

// Play unpauses when paused
func (e *Mpg123Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || e.playing {
		return nil
	}
	// PAUSE toggles in remote-control mode
	if err := e.sendLocked("PAUSE"); err != nil {
		return err
	}
	e.playing = true
	return nil
}

// Pause pauses when playing
func (e *Mpg123Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return nil
	}
	if err := e.sendLocked("PAUSE"); err != nil {
		return err
	}
	e.playing = false
	return nil
}

// SeekStart jumps to the first frame
func (e *Mpg123Engine) SeekStart() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return 0, ErrReleased
	}
	if !e.loaded {
		return 0, ErrNotLoaded
	}
	if err := e.sendLocked("JUMP 0"); err != nil {
		return 0, err
	}
	e.seq++
	e.position = 0
	return e.seq, nil
}

// Stop stops and unloads the current media
func (e *Mpg123Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return nil
	}
	e.expectStop = true
	e.loaded, e.ready, e.playing = false, false, false
	e.position = 0
	return e.sendLocked("STOP")
}

// Release quits mpg123. Safe to call more than once.
func (e *Mpg123Engine) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	cmd, stdin, exited := e.cmd, e.stdin, e.exited
	e.mu.Unlock()

	if cmd == nil {
		return nil
	}

	io.WriteString(stdin, "QUIT\n")
	stdin.Close()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		e.logger.Warn("mpg123 did not quit, killing it")
		cmd.Process.Kill()
	}
	cmd.Wait()
	e.logger.Info("mpg123 released")
	return nil
}

// Ready reports whether the loaded media has been opened
func (e *Mpg123Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Position reports the last position printed by mpg123
func (e *Mpg123Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Mpg123Engine) readStatus(stdout io.Reader, exited chan struct{}) {
	defer close(exited)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if ev, ok := e.handleLine(scanner.Text()); ok {
			e.emit(ev)
		}
	}

	e.mu.Lock()
	released, loaded, seq := e.released, e.loaded, e.seq
	e.cmd = nil
	e.loaded, e.ready, e.playing = false, false, false
	e.mu.Unlock()

	if !released && loaded {
		e.emit(Event{Signal: SignalError, Seq: seq, Err: fmt.Errorf("mpg123 exited unexpectedly")})
	}
}

// handleLine updates engine state from one status line and returns the
// event to publish, if any
func (e *Mpg123Engine) handleLine(line string) (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{}, false
	}

	switch fields[0] {
	case "@P":
		if len(fields) < 2 {
			return Event{}, false
		}
		switch fields[1] {
		case "0":
			if e.expectStop {
				e.expectStop = false
				return Event{}, false
			}
			wasLoaded := e.loaded
			e.loaded, e.ready, e.playing = false, false, false
			if !wasLoaded {
				return Event{}, false
			}
			return Event{Signal: SignalEnded, Seq: e.seq}, true
		case "1":
			if e.loaded && !e.ready {
				e.ready = true
				return Event{Signal: SignalReady, Seq: e.seq}, true
			}
		}
	case "@E":
		msg := strings.TrimSpace(strings.TrimPrefix(line, "@E"))
		e.logger.Warn("mpg123 reported an error", zap.String("message", msg))
		if !e.loaded {
			return Event{}, false
		}
		e.loaded, e.ready, e.playing = false, false, false
		return Event{Signal: SignalError, Seq: e.seq, Err: fmt.Errorf("mpg123: %s", msg)}, true
	case "@F":
		// @F <frame> <frames-left> <seconds> <seconds-left>
		if len(fields) >= 4 {
			if secs, err := strconv.ParseFloat(fields[3], 64); err == nil {
				e.position = time.Duration(secs * float64(time.Second))
			}
		}
	}
	return Event{}, false
}

func (e *Mpg123Engine) emit(ev Event) {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l(ev)
	}
}
