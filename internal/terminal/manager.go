package terminal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/monitoring"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/shared/id"
)

// Defaults are the session parameters applied when a caller omits them.
type Defaults struct {
	Shell        string
	WorkingDir   string
	Cols         int
	Rows         int
	BufferChunks int
	SettleDelay  time.Duration
}

// StockDefaults returns the documented default policy values.
func StockDefaults() Defaults {
	return Defaults{
		Shell:        "/bin/bash",
		WorkingDir:   "/workspace",
		Cols:         100,
		Rows:         30,
		BufferChunks: DefaultBufferChunks,
		SettleDelay:  time.Second,
	}
}

// Manager orchestrates session lifecycle: create, execute, stream, kill.
type Manager struct {
	registry *Registry
	defaults Defaults
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewManager creates a lifecycle manager over the given registry.
func NewManager(registry *Registry, defaults Defaults, logger *logging.Logger) *Manager {
	if defaults.Shell == "" {
		defaults.Shell = StockDefaults().Shell
	}
	if defaults.WorkingDir == "" {
		defaults.WorkingDir = StockDefaults().WorkingDir
	}
	if defaults.Cols <= 0 {
		defaults.Cols = StockDefaults().Cols
	}
	if defaults.Rows <= 0 {
		defaults.Rows = StockDefaults().Rows
	}
	if defaults.BufferChunks <= 0 {
		defaults.BufferChunks = DefaultBufferChunks
	}
	if defaults.SettleDelay <= 0 {
		defaults.SettleDelay = StockDefaults().SettleDelay
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Manager{
		registry: registry,
		defaults: defaults,
		logger:   logger,
	}
}

// WithMetrics attaches a metrics collector.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Defaults returns the session parameters applied when callers omit them.
func (m *Manager) Defaults() Defaults {
	return m.defaults
}

// CreateSession spawns a new pty-backed shell session. A caller-supplied
// ID that is already live is rejected with ErrAlreadyExists; the existing
// session is left untouched.
func (m *Manager) CreateSession(opts CreateOptions) (SessionInfo, error) {
	if opts.ID == "" {
		opts.ID = id.NewSessionID().String()
	}
	if opts.Shell == "" {
		opts.Shell = m.defaults.Shell
	}
	if opts.WorkingDir == "" {
		opts.WorkingDir = m.defaults.WorkingDir
	}
	if opts.Cols <= 0 {
		opts.Cols = m.defaults.Cols
	}
	if opts.Rows <= 0 {
		opts.Rows = m.defaults.Rows
	}

	if existing, err := m.registry.Get(opts.ID); err == nil && existing.Active() {
		return SessionInfo{}, fmt.Errorf("session %s: %w", opts.ID, ErrAlreadyExists)
	}

	s, err := spawn(opts, m.defaults.BufferChunks, m.onChunk, m.onTerminate)
	if err != nil {
		if m.metrics != nil {
			m.metrics.SpawnFailures.Inc()
		}
		return SessionInfo{}, fmt.Errorf("spawn session %s: %w", opts.ID, err)
	}

	if err := m.registry.Put(s); err != nil {
		// Lost a create race for the same ID; this spawn must not leak.
		s.Kill()
		return SessionInfo{}, fmt.Errorf("session %s: %w", opts.ID, err)
	}

	if m.metrics != nil {
		m.metrics.SessionsCreated.Inc()
		m.metrics.SessionsActive.Set(float64(m.registry.Len()))
	}
	m.logger.Info("Session created",
		zap.String("session_id", s.ID),
		zap.String("shell", s.Shell),
		zap.String("working_dir", s.WorkingDir),
	)

	return s.Info(), nil
}

func (m *Manager) onChunk(Chunk) {
	if m.metrics != nil {
		m.metrics.OutputChunks.Inc()
	}
}

// onTerminate is the single cleanup path shared by natural exit and
// explicit kill: deregister, drop the buffer with the session, notify.
func (m *Manager) onTerminate(s *Session, t Termination) {
	m.registry.Remove(s.ID)

	if m.metrics != nil {
		m.metrics.RecordSessionTerminated(string(t.Cause))
		m.metrics.SessionsActive.Set(float64(m.registry.Len()))
	}
	m.logger.Info("Session terminated",
		zap.String("session_id", s.ID),
		zap.String("cause", string(t.Cause)),
		zap.Int("exit_code", t.ExitCode),
	)
}

// ExecuteCommand writes a command to the session's pty, optionally
// preceded by a cd directive and export statements, then waits the settle
// interval and returns the output accumulated in that window.
//
// A pty is inherently asynchronous: the returned output is a best-effort
// snapshot, not a completion signal. Callers needing real completion
// semantics should stream with follow instead.
func (m *Manager) ExecuteCommand(ctx context.Context, sessionID, command string, opts ExecuteOptions) (string, error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return "", fmt.Errorf("session %s: %w", sessionID, err)
	}

	ch, cancel := s.subscribe(false)
	defer cancel()

	if opts.WorkingDir != "" {
		if err := s.Write([]byte("cd " + opts.WorkingDir + "\n")); err != nil {
			return "", fmt.Errorf("session %s: %w", sessionID, err)
		}
	}
	for key, value := range opts.Env {
		if err := s.Write([]byte(fmt.Sprintf("export %s=%q\n", key, value))); err != nil {
			return "", fmt.Errorf("session %s: %w", sessionID, err)
		}
	}
	if err := s.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("session %s: %w", sessionID, err)
	}

	timer := time.NewTimer(m.defaults.SettleDelay)
	defer timer.Stop()

	var out strings.Builder
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out.String(), nil
			}
			out.WriteString(chunk.Data)
		case <-timer.C:
			return out.String(), nil
		case <-ctx.Done():
			return out.String(), ctx.Err()
		}
	}
}

// GetOutput returns up to maxLines of the most recent output, plus a flag
// indicating that older output has been dropped or trimmed.
func (m *Manager) GetOutput(sessionID string, maxLines int) ([]string, bool, error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if maxLines <= 0 {
		maxLines = m.defaults.BufferChunks
	}

	var joined strings.Builder
	for _, c := range s.Replay() {
		joined.WriteString(c.Data)
	}
	lines := strings.Split(strings.TrimRight(joined.String(), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}

	truncated := s.buffer.Evicted()
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		truncated = true
	}
	return lines, truncated, nil
}

// StreamOutput replays the buffered chunks and, when follow is set, keeps
// forwarding live output until the caller cancels or the session ends.
func (m *Manager) StreamOutput(sessionID string, follow bool) (<-chan Chunk, func(), error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	if !follow {
		snapshot := s.Replay()
		ch := make(chan Chunk, len(snapshot))
		for _, c := range snapshot {
			ch <- c
		}
		close(ch)
		return ch, func() {}, nil
	}

	if m.metrics != nil {
		m.metrics.StreamSubscribers.Inc()
	}
	ch, cancel := s.Subscribe()
	wrapped := func() {
		cancel()
		if m.metrics != nil {
			m.metrics.StreamSubscribers.Dec()
		}
	}
	return ch, wrapped, nil
}

// GetSession returns the public view of one session.
func (m *Manager) GetSession(sessionID string) (SessionInfo, error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return s.Info(), nil
}

// ListSessions returns a snapshot of all live sessions.
func (m *Manager) ListSessions() []SessionInfo {
	sessions := m.registry.Snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Resize changes a session's terminal geometry.
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	return s.Resize(cols, rows)
}

// KillSession terminates a session. The registry entry and buffer are
// released on the shared cleanup path; a kill racing a natural exit is a
// no-op, not an error.
func (m *Manager) KillSession(sessionID string) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.Kill()
	return nil
}
