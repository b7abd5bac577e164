package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Policy    PolicyConfig
	Peers     PeersConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8003"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// TerminalConfig holds terminal session defaults.
type TerminalConfig struct {
	Shell         string `envconfig:"TERMINAL_SHELL" default:"/bin/bash"`
	WorkingDir    string `envconfig:"TERMINAL_WORKDIR" default:"/workspace"`
	Cols          int    `envconfig:"TERMINAL_COLS" default:"100"`
	Rows          int    `envconfig:"TERMINAL_ROWS" default:"30"`
	BufferChunks  int    `envconfig:"TERMINAL_BUFFER_CHUNKS" default:"100"`
	SettleDelayMS int    `envconfig:"TERMINAL_SETTLE_DELAY_MS" default:"1000"`
}

// PolicyConfig holds command safety policy configuration.
type PolicyConfig struct {
	File           string   `envconfig:"POLICY_FILE" default:""`
	WorkspaceRoots []string `envconfig:"POLICY_WORKSPACE_ROOTS" default:"/workspace"`
	AutoApprove    bool     `envconfig:"POLICY_AUTO_APPROVE" default:"false"`
}

// PeersConfig holds addresses of collaborating services.
type PeersConfig struct {
	CompilerAddr    string `envconfig:"COMPILER_ADDR" default:"http://localhost:8001"`
	LLMProxyAddr    string `envconfig:"LLM_PROXY_ADDR" default:"http://localhost:8002"`
	HealthTimeoutMS int    `envconfig:"PEER_HEALTH_TIMEOUT_MS" default:"3000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8003",
			Host: "0.0.0.0",
		},
		Terminal: TerminalConfig{
			Shell:         "/bin/bash",
			WorkingDir:    "/workspace",
			Cols:          100,
			Rows:          30,
			BufferChunks:  100,
			SettleDelayMS: 1000,
		},
		Policy: PolicyConfig{
			WorkspaceRoots: []string{"/workspace"},
			AutoApprove:    false,
		},
		Peers: PeersConfig{
			CompilerAddr:    "http://localhost:8001",
			LLMProxyAddr:    "http://localhost:8002",
			HealthTimeoutMS: 3000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
