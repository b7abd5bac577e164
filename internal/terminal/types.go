package terminal

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates an unknown session ID.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyExists indicates a duplicate live session ID on create.
	ErrAlreadyExists = errors.New("session already exists")
	// ErrSessionClosed indicates a write or resize on a terminated session.
	ErrSessionClosed = errors.New("session is closed")
)

// Chunk is one discrete unit of output captured from a session.
type Chunk struct {
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"isError"`
}

// TerminationCause distinguishes a process exiting on its own from an
// explicit kill. Both causes run the same cleanup path.
type TerminationCause string

const (
	CauseExited TerminationCause = "exited"
	CauseKilled TerminationCause = "killed"
)

// Termination describes how a session ended.
type Termination struct {
	Cause    TerminationCause `json:"cause"`
	ExitCode int              `json:"exitCode"`
}

// SessionInfo is the public representation of a session.
type SessionInfo struct {
	ID         string    `json:"sessionId"`
	Shell      string    `json:"shell"`
	WorkingDir string    `json:"workingDirectory"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	Active     bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateOptions are the caller-supplied parameters for a new session.
// Zero values fall back to the manager defaults.
type CreateOptions struct {
	ID         string
	Shell      string
	WorkingDir string
	Env        map[string]string
	Cols       int
	Rows       int
}

// ExecuteOptions are per-execution overrides applied without restarting
// the session's process.
type ExecuteOptions struct {
	WorkingDir string
	Env        map[string]string
}
