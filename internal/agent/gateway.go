// Package agent implements the terminal request flow for autonomous
// agents: extract command candidates from free text, validate every one,
// and execute only what the policy allows, halting the batch at the first
// command that needs a human decision.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/extract"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/monitoring"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/safety"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/terminal"
)

// Command is one command an agent wants to run.
type Command struct {
	Command    string `json:"command"`
	Reasoning  string `json:"reasoning,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`
}

// Request is the batch an agent submits. Commands may arrive already
// extracted, as free text to be parsed, or both.
type Request struct {
	AgentID          string    `json:"agentId"`
	SessionID        string    `json:"sessionId,omitempty"`
	Text             string    `json:"text,omitempty"`
	Commands         []Command `json:"commands,omitempty"`
	Sequential       bool      `json:"sequential"`
	RequiresApproval bool      `json:"requiresApproval"`
}

// Status describes the outcome for one command in the batch.
type Status string

const (
	StatusExecuted        Status = "executed"
	StatusRejected        Status = "rejected"
	StatusPendingApproval Status = "pending_approval"
	StatusSkipped         Status = "skipped"
	StatusFailed          Status = "failed"
)

// CommandResult is the per-command outcome.
type CommandResult struct {
	Command    Command       `json:"command"`
	Validation safety.Result `json:"validation"`
	Status     Status        `json:"status"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Response is the batch outcome. Completed is false when the batch halted
// on a command awaiting approval; PendingIndex then points at it.
type Response struct {
	AgentID      string          `json:"agentId"`
	SessionID    string          `json:"sessionId,omitempty"`
	Results      []CommandResult `json:"results"`
	Completed    bool            `json:"completed"`
	PendingIndex int             `json:"pendingIndex"`
}

// Gateway wires the extraction parser, the validation engine, and the
// session lifecycle manager into the agent-facing flow.
type Gateway struct {
	extractor *extract.Extractor
	validator *safety.Validator
	manager   *terminal.Manager

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates the agent gateway.
func New(extractor *extract.Extractor, validator *safety.Validator, manager *terminal.Manager, logger *logging.Logger) *Gateway {
	return &Gateway{
		extractor: extractor,
		validator: validator,
		manager:   manager,
		logger:    logger,
	}
}

// WithMetrics attaches a metrics collector.
func (g *Gateway) WithMetrics(metrics *monitoring.Metrics) *Gateway {
	g.metrics = metrics
	return g
}

// collect merges explicit commands with candidates parsed from free
// text, preserving order and dropping duplicate command strings.
func (g *Gateway) collect(req Request) []Command {
	var out []Command
	seen := make(map[string]struct{})

	add := func(c Command) {
		c.Command = strings.TrimSpace(c.Command)
		if c.Command == "" {
			return
		}
		if _, dup := seen[c.Command]; dup {
			return
		}
		seen[c.Command] = struct{}{}
		out = append(out, c)
	}

	for _, c := range req.Commands {
		add(c)
	}
	if req.Text != "" {
		for _, cand := range g.extractor.Extract(req.Text) {
			if g.metrics != nil {
				g.metrics.RecordExtraction(string(cand.Source))
			}
			add(Command{
				Command:    cand.Command,
				Reasoning:  cand.Reasoning,
				WorkingDir: cand.WorkingDir,
			})
		}
	}
	return out
}

// Handle runs the agent flow. Every command is validated before anything
// executes; the first command that requires approval halts the batch and
// is surfaced with StatusPendingApproval, the remainder marked skipped.
// Validation is never bypassed: the request-level RequiresApproval flag
// can only add an approval requirement, never remove one.
func (g *Gateway) Handle(ctx context.Context, req Request) (Response, error) {
	commands := g.collect(req)
	resp := Response{
		AgentID:      req.AgentID,
		SessionID:    req.SessionID,
		Results:      make([]CommandResult, len(commands)),
		Completed:    true,
		PendingIndex: -1,
	}
	if len(commands) == 0 {
		return resp, nil
	}

	// Validation pass. Nothing runs until the whole batch has a verdict
	// and a halt point, if any, is known. A command without an explicit
	// working directory runs in the session's default, so that is the
	// directory the boundary check must see.
	halt := -1
	for i, cmd := range commands {
		workingDir := cmd.WorkingDir
		if workingDir == "" {
			workingDir = g.effectiveWorkingDir(req.SessionID)
		}
		verdict := g.validator.Validate(cmd.Command, workingDir)
		if req.RequiresApproval && verdict.Valid {
			verdict.RequiresApproval = true
		}
		if g.metrics != nil {
			g.metrics.RecordValidation(string(verdict.Tier), verdict.RequiresApproval)
		}

		resp.Results[i] = CommandResult{Command: cmd, Validation: verdict}
		switch {
		case verdict.RequiresApproval:
			resp.Results[i].Status = StatusPendingApproval
			if halt < 0 {
				halt = i
			}
		case !verdict.Valid:
			resp.Results[i].Status = StatusRejected
		default:
			resp.Results[i].Status = StatusExecuted // provisional
		}
	}

	if halt >= 0 {
		resp.Completed = false
		resp.PendingIndex = halt
		for i := halt + 1; i < len(resp.Results); i++ {
			if resp.Results[i].Status != StatusRejected {
				resp.Results[i].Status = StatusSkipped
			}
		}
		g.logger.Info("Agent batch halted for approval",
			zap.String("agent_id", req.AgentID),
			zap.Int("pending_index", halt),
			zap.String("command", commands[halt].Command),
		)
	}

	// Execution pass over the commands cleared to run. Anything at or
	// past the halt point already carries a non-executable status.
	var runnable []int
	for i := range resp.Results {
		if resp.Results[i].Status == StatusExecuted {
			runnable = append(runnable, i)
		}
	}
	if len(runnable) == 0 {
		return resp, nil
	}

	sessionID, err := g.ensureSession(req)
	if err != nil {
		return resp, err
	}
	resp.SessionID = sessionID

	if req.Sequential {
		for _, i := range runnable {
			g.run(ctx, sessionID, &resp.Results[i])
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
		}
		return resp, nil
	}

	var wg sync.WaitGroup
	for _, i := range runnable {
		wg.Add(1)
		go func(r *CommandResult) {
			defer wg.Done()
			g.run(ctx, sessionID, r)
		}(&resp.Results[i])
	}
	wg.Wait()
	return resp, ctx.Err()
}

// effectiveWorkingDir is the directory a directive-less command will run
// in: the named session's cwd, or the manager default for a session not
// yet created.
func (g *Gateway) effectiveWorkingDir(sessionID string) string {
	if sessionID != "" {
		if info, err := g.manager.GetSession(sessionID); err == nil {
			return info.WorkingDir
		}
	}
	return g.manager.Defaults().WorkingDir
}

// ensureSession resolves the target session, creating one on demand when
// the request names none. Creation is deferred past validation so a fully
// halted batch never spawns a shell.
func (g *Gateway) ensureSession(req Request) (string, error) {
	if req.SessionID != "" {
		if _, err := g.manager.GetSession(req.SessionID); err != nil {
			return "", err
		}
		return req.SessionID, nil
	}
	info, err := g.manager.CreateSession(terminal.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("create agent session: %w", err)
	}
	return info.ID, nil
}

func (g *Gateway) run(ctx context.Context, sessionID string, r *CommandResult) {
	out, err := g.manager.ExecuteCommand(ctx, sessionID, r.Command.Command, terminal.ExecuteOptions{
		WorkingDir: r.Command.WorkingDir,
	})
	r.Output = out
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = StatusExecuted
}
