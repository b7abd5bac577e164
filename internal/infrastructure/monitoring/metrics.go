package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Terminal session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsKilled  *prometheus.CounterVec
	SpawnFailures   prometheus.Counter
	OutputChunks    prometheus.Counter

	// Validation metrics
	Validations *prometheus.CounterVec

	// Extraction metrics
	ExtractedCommands *prometheus.CounterVec

	// Streaming metrics
	StreamSubscribers prometheus.Gauge
	WSConnections     prometheus.Gauge

	// Peer metrics
	PeerHealth *prometheus.GaugeVec
	PeerErrors *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "terminal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_sessions_active",
				Help: "Number of live terminal sessions",
			},
		),
		SessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "terminal_sessions_created_total",
				Help: "Total number of terminal sessions created",
			},
		),
		SessionsKilled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_sessions_terminated_total",
				Help: "Total number of terminal sessions terminated",
			},
			[]string{"cause"},
		),
		SpawnFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "terminal_spawn_failures_total",
				Help: "Total number of pty spawn failures",
			},
		),
		OutputChunks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "terminal_output_chunks_total",
				Help: "Total number of output chunks captured",
			},
		),

		Validations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_validations_total",
				Help: "Command validation results by safety tier",
			},
			[]string{"tier", "requires_approval"},
		),

		ExtractedCommands: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_extracted_commands_total",
				Help: "Commands extracted from agent text by strategy",
			},
			[]string{"source"},
		),

		StreamSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_stream_subscribers",
				Help: "Number of active output stream subscribers",
			},
		),
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		PeerHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "terminal_peer_healthy",
				Help: "Peer service health (1 healthy, 0 unreachable)",
			},
			[]string{"peer"},
		),
		PeerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_peer_errors_total",
				Help: "Total number of peer service call failures",
			},
			[]string{"peer"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordValidation records a command validation outcome
func (m *Metrics) RecordValidation(tier string, requiresApproval bool) {
	approval := "false"
	if requiresApproval {
		approval = "true"
	}
	m.Validations.WithLabelValues(tier, approval).Inc()
}

// RecordExtraction records an extracted command by strategy
func (m *Metrics) RecordExtraction(source string) {
	m.ExtractedCommands.WithLabelValues(source).Inc()
}

// RecordSessionTerminated records a session termination by cause
func (m *Metrics) RecordSessionTerminated(cause string) {
	m.SessionsKilled.WithLabelValues(cause).Inc()
}

// SetPeerHealth records the health of a peer service
func (m *Metrics) SetPeerHealth(peer string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.PeerHealth.WithLabelValues(peer).Set(v)
}

// RecordPeerError records a peer service call failure
func (m *Metrics) RecordPeerError(peer string) {
	m.PeerErrors.WithLabelValues(peer).Inc()
}
