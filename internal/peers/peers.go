// Package peers provides HTTP clients for the collaborating services the
// terminal service depends on: the compiler service and the LLM proxy.
// Each peer gets its own circuit breaker so one flapping dependency does
// not poison calls to the other.
package peers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/config"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/logging"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/monitoring"
	"github.com/GKR5413/AI-Code-Editor-sub002/internal/infrastructure/resilience"
)

// ErrUnavailable marks a peer that cannot currently serve requests,
// whether from a transport failure, a non-2xx health answer, or an open
// circuit breaker.
var ErrUnavailable = errors.New("peer unavailable")

// Peer names used in metrics labels and health reports.
const (
	PeerCompiler = "compiler"
	PeerLLMProxy = "llm-proxy"
)

// Client wraps resty with retries, rate limiting, and a circuit breaker
// for one peer service.
type Client struct {
	name    string
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker

	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu sync.RWMutex
}

// NewClient builds a production-ready client for one peer.
func NewClient(name, baseURL string, logger *logging.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "terminal-service/1.0")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	breaker := resilience.New(name, resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Peer breaker state change",
				zap.String("peer", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		name:    name,
		resty:   restyClient,
		limiter: rate.NewLimiter(rate.Inf, 0),
		breaker: breaker,
		logger:  logger,
	}
}

// WithMetrics attaches a metrics collector.
func (c *Client) WithMetrics(metrics *monitoring.Metrics) *Client {
	c.metrics = metrics
	return c
}

// SetRateLimit caps outbound requests per second to this peer.
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// Name returns the peer's label.
func (c *Client) Name() string { return c.name }

// BreakerState returns the circuit breaker state for this peer.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// request prepares a rate-limited request bound to ctx.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if c.breaker.State() == resilience.StateOpen {
		return nil, fmt.Errorf("%s: circuit open: %w", c.name, ErrUnavailable)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", c.name, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resty.R().SetContext(ctx), nil
}

// Health probes the peer's /health endpoint. Any failure mode maps to
// ErrUnavailable so callers can treat the peer uniformly.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.request(ctx)
	if err != nil {
		c.recordFailure()
		return err
	}

	err = c.breaker.Execute(func() error {
		resp, err := req.Get("/health")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("health status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("%s: %v: %w", c.name, err, ErrUnavailable)
	}

	if c.metrics != nil {
		c.metrics.SetPeerHealth(c.name, true)
	}
	return nil
}

func (c *Client) recordFailure() {
	if c.metrics != nil {
		c.metrics.SetPeerHealth(c.name, false)
		c.metrics.RecordPeerError(c.name)
	}
}

// PostJSON sends a JSON payload to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	req, err := c.request(ctx)
	if err != nil {
		c.recordFailure()
		return err
	}

	err = c.breaker.Execute(func() error {
		resp, err := req.SetBody(body).SetResult(out).Post(path)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	})
	if err != nil {
		c.recordFailure()
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return fmt.Errorf("%s: %w", c.name, ErrUnavailable)
		}
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

// Set bundles the well-known peers.
type Set struct {
	Compiler *Client
	LLMProxy *Client

	healthTimeout time.Duration
}

// NewSet builds clients for every configured peer.
func NewSet(cfg config.PeersConfig, logger *logging.Logger, metrics *monitoring.Metrics) *Set {
	timeout := time.Duration(cfg.HealthTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Set{
		Compiler:      NewClient(PeerCompiler, cfg.CompilerAddr, logger).WithMetrics(metrics),
		LLMProxy:      NewClient(PeerLLMProxy, cfg.LLMProxyAddr, logger).WithMetrics(metrics),
		healthTimeout: timeout,
	}
}

// HealthReport maps peer name to its probe error, nil when healthy.
type HealthReport map[string]error

// Healthy reports whether every peer answered its probe.
func (r HealthReport) Healthy() bool {
	for _, err := range r {
		if err != nil {
			return false
		}
	}
	return true
}

// CheckAll probes every peer concurrently with a bounded per-probe
// timeout, so a hung peer cannot stall the health endpoint.
func (s *Set) CheckAll(ctx context.Context) HealthReport {
	clients := []*Client{s.Compiler, s.LLMProxy}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = make(HealthReport, len(clients))
	)
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, s.healthTimeout)
			defer cancel()

			err := c.Health(probeCtx)
			mu.Lock()
			report[c.name] = err
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return report
}
