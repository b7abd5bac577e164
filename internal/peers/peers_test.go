package peers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/config"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
)

func healthHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(status)
			return
		}
		http.NotFound(w, r)
	})
}

func TestHealthOK(t *testing.T) {
	srv := httptest.NewServer(healthHandler(http.StatusOK))
	defer srv.Close()

	c := NewClient(PeerCompiler, srv.URL, logging.NewDefault())
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealthServerError(t *testing.T) {
	srv := httptest.NewServer(healthHandler(http.StatusInternalServerError))
	defer srv.Close()

	c := NewClient(PeerCompiler, srv.URL, logging.NewDefault())
	assert.ErrorIs(t, c.Health(context.Background()), ErrUnavailable)
}

func TestHealthConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(healthHandler(http.StatusOK))
	addr := srv.URL
	srv.Close()

	c := NewClient(PeerLLMProxy, addr, logging.NewDefault())
	assert.ErrorIs(t, c.Health(context.Background()), ErrUnavailable)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(healthHandler(http.StatusServiceUnavailable))
	defer srv.Close()

	c := NewClient(PeerCompiler, srv.URL, logging.NewDefault())
	for i := 0; i < 5; i++ {
		require.Error(t, c.Health(context.Background()))
	}

	// Once open, requests are refused without touching the network.
	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/complete", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"done"}`))
	}))
	defer srv.Close()

	c := NewClient(PeerLLMProxy, srv.URL, logging.NewDefault())

	var out struct {
		Text string `json:"text"`
	}
	err := c.PostJSON(context.Background(), "/v1/complete", map[string]string{"prompt": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Text)
}

func TestCheckAllMixedHealth(t *testing.T) {
	healthy := httptest.NewServer(healthHandler(http.StatusOK))
	defer healthy.Close()
	broken := httptest.NewServer(healthHandler(http.StatusInternalServerError))
	defer broken.Close()

	set := NewSet(config.PeersConfig{
		CompilerAddr:    healthy.URL,
		LLMProxyAddr:    broken.URL,
		HealthTimeoutMS: 2000,
	}, logging.NewDefault(), nil)

	report := set.CheckAll(context.Background())
	assert.False(t, report.Healthy())
	assert.NoError(t, report[PeerCompiler])
	assert.ErrorIs(t, report[PeerLLMProxy], ErrUnavailable)
}
