// Package http contains the gin request handlers for the terminal
// service: session lifecycle, command execution gated by the safety
// policy, agent batches, and policy settings management.
package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/agent"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/peers"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/safety"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/terminal"
)

// Handlers bundles the dependencies the HTTP surface needs.
type Handlers struct {
	manager   *terminal.Manager
	gateway   *agent.Gateway
	validator *safety.Validator
	peers     *peers.Set
	logger    *logging.Logger
	started   time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(manager *terminal.Manager, gateway *agent.Gateway, validator *safety.Validator, peerSet *peers.Set, logger *logging.Logger) *Handlers {
	return &Handlers{
		manager:   manager,
		gateway:   gateway,
		validator: validator,
		peers:     peerSet,
		logger:    logger,
		started:   time.Now(),
	}
}

// abortWithError maps domain errors onto HTTP status codes. Callers must
// be able to tell "session not found" (retry with a new ID) apart from an
// internal failure (retrying is pointless).
func (h *Handlers) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, terminal.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, terminal.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, terminal.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, peers.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "terminal-service",
		"version": "1.0.0",
	})
}

// Health reports liveness plus peer reachability. The service stays
// healthy when a peer is down; peers are reported individually.
func (h *Handlers) Health(c *gin.Context) {
	peerStatus := map[string]string{}
	if h.peers != nil {
		for name, err := range h.peers.CheckAll(c.Request.Context()) {
			if err != nil {
				peerStatus[name] = "unreachable"
			} else {
				peerStatus[name] = "ok"
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"sessions":       len(h.manager.ListSessions()),
		"peers":          peerStatus,
	})
}

// CreateSession spawns a new shell session. The working directory is
// checked against the workspace allow-list before anything spawns; a
// session rooted outside the workspace would sidestep every later
// boundary check.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workingDir := req.WorkingDirectory
	if workingDir == "" {
		workingDir = h.manager.Defaults().WorkingDir
	}
	if !h.validator.WithinWorkspace(workingDir) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("working directory %s is outside the allowed workspace", workingDir),
		})
		return
	}

	info, err := h.manager.CreateSession(terminal.CreateOptions{
		ID:         req.SessionID,
		Shell:      req.Shell,
		WorkingDir: workingDir,
		Env:        req.Environment,
		Cols:       req.Cols,
		Rows:       req.Rows,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateSessionResponse{
		Success:   true,
		SessionID: info.ID,
		Message:   "session created",
	})
}

// ExecuteCommand validates and runs one command in an existing session.
// A command the policy refuses to auto-run comes back as a structured
// verdict with HTTP 200, not an error: policy rejection is an answer.
func (h *Handlers) ExecuteCommand(c *gin.Context) {
	sessionID := c.Param("id")

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A request without a working directory runs in the session's own
	// directory, so that is what the boundary check must see.
	info, lookupErr := h.manager.GetSession(sessionID)
	workingDir := req.WorkingDirectory
	if workingDir == "" && lookupErr == nil {
		workingDir = info.WorkingDir
	}

	verdict := h.validator.Validate(req.Command, workingDir)
	if !verdict.Valid || verdict.RequiresApproval {
		c.JSON(http.StatusOK, ExecuteResponse{
			Success:          false,
			Error:            verdict.Reason,
			Tier:             string(verdict.Tier),
			RequiresApproval: verdict.RequiresApproval,
			SessionID:        sessionID,
		})
		return
	}
	if lookupErr != nil {
		h.abortWithError(c, lookupErr)
		return
	}

	out, err := h.manager.ExecuteCommand(c.Request.Context(), sessionID, req.Command, terminal.ExecuteOptions{
		WorkingDir: req.WorkingDirectory,
		Env:        req.Environment,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ExecuteResponse{
		Success:   true,
		Output:    out,
		Tier:      string(verdict.Tier),
		SessionID: sessionID,
	})
}

// GetOutput returns the buffered output tail.
func (h *Handlers) GetOutput(c *gin.Context) {
	sessionID := c.Param("id")

	maxLines := 0
	if raw := c.Query("maxLines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "maxLines must be a non-negative integer"})
			return
		}
		maxLines = parsed
	}

	lines, hasMore, err := h.manager.GetOutput(sessionID, maxLines)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	c.JSON(http.StatusOK, OutputResponse{
		Lines:     lines,
		HasMore:   hasMore,
		SessionID: sessionID,
	})
}

// GetSession returns one session's info.
func (h *Handlers) GetSession(c *gin.Context) {
	info, err := h.manager.GetSession(c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ListSessions returns a snapshot of live sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.manager.ListSessions()
	if sessions == nil {
		sessions = []terminal.SessionInfo{}
	}
	c.JSON(http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

// KillSession terminates a session.
func (h *Handlers) KillSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.manager.KillSession(sessionID); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, KillSessionResponse{
		Success: true,
		Message: "session terminated",
	})
}

// Resize changes a session's terminal geometry.
func (h *Handlers) Resize(c *gin.Context) {
	sessionID := c.Param("id")

	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.Resize(sessionID, req.Cols, req.Rows); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Validate classifies a command without running it.
func (h *Handlers) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.validator.Validate(req.Command, req.WorkingDirectory))
}

// AgentTerminal runs an agent command batch through the gateway.
func (h *Handlers) AgentTerminal(c *gin.Context) {
	var req agent.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" && len(req.Commands) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or commands required"})
		return
	}

	resp, err := h.gateway.Handle(c.Request.Context(), req)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSettings returns the current validation policy.
func (h *Handlers) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.validator.Settings().Current())
}

// UpdateSettings swaps in a new validation policy atomically. In-flight
// validations keep the settings value they started with.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var s safety.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(s.AllowedWorkspacePaths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "allowedWorkspacePaths must not be empty"})
		return
	}

	h.validator.Settings().Update(s)
	h.logger.Info("Validation policy updated",
		zap.Int("safe_commands", len(s.SafeCommands)),
		zap.Int("dangerous_commands", len(s.DangerousCommands)),
		zap.Bool("auto_approve", s.AutoApprove),
	)
	c.JSON(http.StatusOK, s)
}
