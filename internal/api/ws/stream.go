// Package ws serves live terminal output over WebSocket: replay the
// buffered tail, then follow the pty until the client disconnects or the
// session ends.
package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/monitoring"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/terminal"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one streamed output frame.
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      string    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"isError,omitempty"`
}

// Handler upgrades stream requests and pumps session output.
type Handler struct {
	manager *terminal.Manager
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates the streaming handler.
func NewHandler(manager *terminal.Manager, logger *logging.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// WithMetrics attaches a metrics collector.
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// StreamOutput handles GET /sessions/:id/stream. The session is resolved
// before upgrading so unknown IDs still get a plain 404. follow defaults
// to true; follow=false closes the socket after the replay.
func (h *Handler) StreamOutput(c *gin.Context) {
	sessionID := c.Param("id")
	follow := c.DefaultQuery("follow", "true") != "false"

	ch, cancel, err := h.manager.StreamOutput(sessionID, follow)
	if err != nil {
		if errors.Is(err, terminal.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	// A client disconnect must detach this subscriber only; the session
	// and its other subscribers are unaffected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		cancel()
		_ = conn.Close()
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				deadline := time.Now().Add(writeWait)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Message{
				Type:      "output",
				SessionID: sessionID,
				Data:      chunk.Data,
				Timestamp: chunk.Timestamp,
				IsError:   chunk.IsError,
			}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
