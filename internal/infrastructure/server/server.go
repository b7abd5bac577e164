// Package server wires the terminal service together: configuration,
// logging, metrics, the safety policy, the session manager, peer
// clients, and the gin router with its HTTP and WebSocket surfaces.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/agent"
	apihttp "github.com/GKR5413/AI-Code-Editor-sub002/internal/api/http"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/api/middleware"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/api/ws"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/extract"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/config"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/monitoring"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/peers"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/safety"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/terminal"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	manager *terminal.Manager
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// New creates a server instance from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing terminal service",
		zap.String("port", cfg.Server.Port),
		zap.String("shell", cfg.Terminal.Shell),
		zap.Strings("workspace_roots", cfg.Policy.WorkspaceRoots),
	)

	metrics := monitoring.NewMetrics()

	// Safety policy: stock defaults, optionally overlaid from a YAML file.
	settings := safety.DefaultSettings(cfg.Policy.WorkspaceRoots, cfg.Policy.AutoApprove)
	if cfg.Policy.File != "" {
		loaded, err := safety.LoadFile(cfg.Policy.File, settings)
		if err != nil {
			return nil, fmt.Errorf("load policy file %s: %w", cfg.Policy.File, err)
		}
		settings = loaded
		logger.Info("Loaded policy file", zap.String("path", cfg.Policy.File))
	}
	store := safety.NewStore(settings)
	validator := safety.NewValidator(store)
	extractor := extract.New(append(append([]string(nil), settings.SafeCommands...), settings.DangerousCommands...))

	registry := terminal.NewRegistry()
	manager := terminal.NewManager(registry, terminal.Defaults{
		Shell:        cfg.Terminal.Shell,
		WorkingDir:   cfg.Terminal.WorkingDir,
		Cols:         cfg.Terminal.Cols,
		Rows:         cfg.Terminal.Rows,
		BufferChunks: cfg.Terminal.BufferChunks,
		SettleDelay:  time.Duration(cfg.Terminal.SettleDelayMS) * time.Millisecond,
	}, logger).WithMetrics(metrics)

	gateway := agent.New(extractor, validator, manager, logger).WithMetrics(metrics)
	peerSet := peers.NewSet(cfg.Peers, logger, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(manager, gateway, validator, peerSet, logger)
	wsHandler := ws.NewHandler(manager, logger).WithMetrics(metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Session lifecycle
	router.POST("/sessions", handlers.CreateSession)
	router.GET("/sessions", handlers.ListSessions)
	router.GET("/sessions/:id", handlers.GetSession)
	router.POST("/sessions/:id/execute", handlers.ExecuteCommand)
	router.GET("/sessions/:id/output", handlers.GetOutput)
	router.GET("/sessions/:id/stream", wsHandler.StreamOutput)
	router.POST("/sessions/:id/resize", handlers.Resize)
	router.DELETE("/sessions/:id", handlers.KillSession)

	// Safety policy
	router.POST("/validate", handlers.Validate)
	router.GET("/settings", handlers.GetSettings)
	router.PUT("/settings", handlers.UpdateSettings)

	// Agent flow
	router.POST("/agent/terminal", handlers.AgentTerminal)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized")

	return &Server{
		router:  router,
		manager: manager,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Router exposes the gin engine, used by tests to drive requests
// without a listener.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests, kills every live session, and
// flushes logs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
		}
	}

	for _, info := range s.manager.ListSessions() {
		if err := s.manager.KillSession(info.ID); err != nil {
			s.logger.Warn("Failed to kill session during shutdown",
				zap.String("session_id", info.ID),
				zap.Error(err),
			)
		}
	}

	_ = s.logger.Sync()
	return nil
}
