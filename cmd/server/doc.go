// Package main is the entry point for the terminal service.
//
// The service creates and multiplexes pty-backed shell sessions for the
// editor UI and autonomous agents, streams their output over WebSocket,
// and gates every command behind the safety validation policy.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8003
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; live sessions are killed
package main
