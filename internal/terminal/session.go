package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

// subscriberBacklog is the per-subscriber headroom beyond the replayed
// buffer. A subscriber that falls further behind loses chunks rather than
// stalling the pty reader.
const subscriberBacklog = 64

// Session owns one shell process bound to a pty, its output ring buffer,
// and the fan-out to live stream subscribers. All mutation goes through
// the session mutex; different sessions proceed fully in parallel.
type Session struct {
	ID         string
	Shell      string
	WorkingDir string
	CreatedAt  time.Time

	mu            sync.Mutex
	cols          int
	rows          int
	cmd           *exec.Cmd
	ptmx          *os.File
	buffer        *Buffer
	listeners     map[int]chan Chunk
	nextListener  int
	closed        bool
	killRequested bool
	term          Termination

	finalizeOnce sync.Once
	done         chan struct{}
	onChunk      func(Chunk)
	onTerminate  func(*Session, Termination)
}

// spawn starts a shell process under a pty and begins draining its output.
func spawn(opts CreateOptions, bufferChunks int, onChunk func(Chunk), onTerminate func(*Session, Termination)) (*Session, error) {
	cmd := exec.Command(opts.Shell)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(opts.Rows),
		Cols: uint16(opts.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	s := &Session{
		ID:          opts.ID,
		Shell:       opts.Shell,
		WorkingDir:  opts.WorkingDir,
		CreatedAt:   time.Now(),
		cols:        opts.Cols,
		rows:        opts.Rows,
		cmd:         cmd,
		ptmx:        ptmx,
		buffer:      NewBuffer(bufferChunks),
		listeners:   make(map[int]chan Chunk),
		done:        make(chan struct{}),
		onChunk:     onChunk,
		onTerminate: onTerminate,
	}

	go s.readLoop()
	go s.waitLoop()

	return s, nil
}

// readLoop drains the pty until it closes. Read errors after process
// death (EIO on Linux) are the normal end-of-stream signal.
func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.emit(Chunk{
				Data:      string(buf[:n]),
				Timestamp: time.Now(),
			})
		}
		if err != nil {
			return
		}
	}
}

// waitLoop reaps the process and runs cleanup with the right cause.
func (s *Session) waitLoop() {
	err := s.cmd.Wait()

	exitCode := 0
	if s.cmd.ProcessState != nil {
		exitCode = s.cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	s.mu.Lock()
	cause := CauseExited
	if s.killRequested {
		cause = CauseKilled
	}
	s.mu.Unlock()

	s.finalize(Termination{Cause: cause, ExitCode: exitCode})
}

// emit appends a chunk to the ring buffer and forwards it to every live
// subscriber in emission order. Holding the session mutex for both steps
// is what makes replay-then-follow gapless.
func (s *Session) emit(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.onChunk != nil {
		s.onChunk(c)
	}
	s.buffer.Append(c)
	for _, ch := range s.listeners {
		select {
		case ch <- c:
		default:
			// Slow subscriber: drop for this listener only.
		}
	}
}

// Subscribe replays the buffered chunks and then follows live output.
// The returned channel closes when the session terminates. The cancel
// function detaches this subscriber without affecting the session or
// other subscribers.
func (s *Session) Subscribe() (<-chan Chunk, func()) {
	return s.subscribe(true)
}

// subscribe registers a live listener, optionally preloading the buffered
// backlog. Registration happens under the same lock emit takes, so no
// chunk is lost or duplicated between the replay and the live tail.
func (s *Session) subscribe(replay bool) (<-chan Chunk, func()) {
	s.mu.Lock()

	var snapshot []Chunk
	if replay {
		snapshot = s.buffer.Snapshot()
	}
	ch := make(chan Chunk, len(snapshot)+subscriberBacklog)
	for _, c := range snapshot {
		ch <- c
	}

	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}

	idx := s.nextListener
	s.nextListener++
	s.listeners[idx] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.listeners == nil {
			return // finalize already closed the channel
		}
		if _, ok := s.listeners[idx]; ok {
			delete(s.listeners, idx)
			close(ch)
		}
	}
	return ch, cancel
}

// Replay returns the buffered chunks without following live output.
func (s *Session) Replay() []Chunk {
	return s.buffer.Snapshot()
}

// Write feeds bytes to the process's input stream.
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	_, err := s.ptmx.Write(p)
	return err
}

// Resize changes the terminal geometry.
func (s *Session) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	s.cols = cols
	s.rows = rows
	return nil
}

// Kill terminates the process. Killing an already-dead session is a
// no-op. Cleanup itself happens on the waitLoop path so that explicit
// kill and natural exit converge.
func (s *Session) Kill() {
	s.mu.Lock()
	if s.closed || s.killRequested {
		s.mu.Unlock()
		return
	}
	s.killRequested = true
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		return
	}
	// Sessions without a real process (tests) finalize directly.
	s.finalize(Termination{Cause: CauseKilled})
}

// finalize is the single cleanup path for both termination causes.
func (s *Session) finalize(t Termination) {
	s.finalizeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.term = t
		if s.ptmx != nil {
			_ = s.ptmx.Close()
		}
		listeners := s.listeners
		s.listeners = nil
		s.mu.Unlock()

		for _, ch := range listeners {
			close(ch)
		}
		close(s.done)

		if s.onTerminate != nil {
			s.onTerminate(s, t)
		}
	})
}

// Active reports whether the session's process is still live.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Done is closed when the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Termination returns how the session ended, if it has.
func (s *Session) Termination() (Termination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return Termination{}, false
	}
	return s.term, true
}

// Info returns the public view of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionInfo{
		ID:         s.ID,
		Shell:      s.Shell,
		WorkingDir: s.WorkingDir,
		Cols:       s.cols,
		Rows:       s.rows,
		Active:     !s.closed,
		CreatedAt:  s.CreatedAt,
	}
}
