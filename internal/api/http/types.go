package http

import (
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/terminal"
)

// CreateSessionRequest is the payload for POST /sessions.
type CreateSessionRequest struct {
	SessionID        string            `json:"sessionId,omitempty"`
	Shell            string            `json:"shell,omitempty"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	Cols             int               `json:"cols,omitempty"`
	Rows             int               `json:"rows,omitempty"`
}

// CreateSessionResponse confirms a spawned session.
type CreateSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ExecuteRequest is the payload for POST /sessions/:id/execute.
type ExecuteRequest struct {
	Command          string            `json:"command" binding:"required"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
}

// ExecuteResponse carries the settle-window output, or the policy
// verdict when the command was not allowed to run. ExitCode is a
// best-effort snapshot value; the shell stays alive across commands,
// so long-running commands should be observed via the stream instead.
type ExecuteResponse struct {
	Success          bool   `json:"success"`
	Output           string `json:"output,omitempty"`
	Error            string `json:"error,omitempty"`
	ExitCode         int    `json:"exitCode"`
	Tier             string `json:"tier,omitempty"`
	RequiresApproval bool   `json:"requiresApproval,omitempty"`
	SessionID        string `json:"sessionId"`
}

// OutputResponse is the payload for GET /sessions/:id/output.
type OutputResponse struct {
	Lines     []string `json:"lines"`
	HasMore   bool     `json:"hasMore"`
	SessionID string   `json:"sessionId"`
}

// ListSessionsResponse is the payload for GET /sessions.
type ListSessionsResponse struct {
	Sessions []terminal.SessionInfo `json:"sessions"`
}

// KillSessionResponse is the payload for DELETE /sessions/:id.
type KillSessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ResizeRequest is the payload for POST /sessions/:id/resize.
type ResizeRequest struct {
	Cols int `json:"cols" binding:"required,gt=0"`
	Rows int `json:"rows" binding:"required,gt=0"`
}

// ValidateRequest is the payload for POST /validate.
type ValidateRequest struct {
	Command          string `json:"command" binding:"required"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
}
