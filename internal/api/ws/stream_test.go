package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/terminal"
)

func newStreamServer(t *testing.T) (*httptest.Server, *terminal.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	defaults := terminal.StockDefaults()
	defaults.Shell = "/bin/sh"
	defaults.WorkingDir = t.TempDir()
	defaults.SettleDelay = 500 * time.Millisecond
	manager := terminal.NewManager(terminal.NewRegistry(), defaults, logging.NewDefault())

	r := gin.New()
	h := NewHandler(manager, logging.NewDefault())
	r.GET("/sessions/:id/stream", h.StreamOutput)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, manager
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestStreamUnknownSessionIs404(t *testing.T) {
	srv, _ := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/sessions/sess_ghost/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamReplayWithoutFollow(t *testing.T) {
	srv, manager := newStreamServer(t)

	info, err := manager.CreateSession(terminal.CreateOptions{})
	if err != nil && strings.Contains(err.Error(), "start pty") {
		t.Skipf("pty unavailable: %v", err)
	}
	require.NoError(t, err)
	defer func() { _ = manager.KillSession(info.ID) }()

	_, err = manager.ExecuteCommand(t.Context(), info.ID, "echo stream-marker", terminal.ExecuteOptions{})
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/sessions/"+info.ID+"/stream?follow=false"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var all strings.Builder
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			// Normal closure after the replay drains.
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		assert.Equal(t, "output", msg.Type)
		assert.Equal(t, info.ID, msg.SessionID)
		all.WriteString(msg.Data)
	}
	assert.Contains(t, all.String(), "stream-marker")
}

func TestStreamFollowReceivesLiveOutput(t *testing.T) {
	srv, manager := newStreamServer(t)

	info, err := manager.CreateSession(terminal.CreateOptions{})
	if err != nil && strings.Contains(err.Error(), "start pty") {
		t.Skipf("pty unavailable: %v", err)
	}
	require.NoError(t, err)
	defer func() { _ = manager.KillSession(info.ID) }()

	conn, resp, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/sessions/"+info.ID+"/stream"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	_, err = manager.ExecuteCommand(t.Context(), info.ID, "echo follow-marker", terminal.ExecuteOptions{})
	require.NoError(t, err)

	var all strings.Builder
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		all.WriteString(msg.Data)
		if strings.Contains(all.String(), "follow-marker") {
			break
		}
	}
	assert.Contains(t, all.String(), "follow-marker")
}
