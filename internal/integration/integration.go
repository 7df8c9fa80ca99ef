// Package integration implements outbound A2A calls to peer agents
// (orchestrator, miner, log-attacker): health probing, timeouts, retries,
// and graceful degradation (spec.md §4.5).
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dev-nexus/devnexus/internal/metrics"
)

// DefaultTimeout is the per-call outbound timeout (spec.md §4.5/§5).
const DefaultTimeout = 30 * time.Second

// PeerConfig is one peer's connection details. An empty URL means the
// peer is disabled (spec.md §4.5).
type PeerConfig struct {
	Name  string
	URL   string
	Token string
}

// ExecuteResult is the outcome of a skill-style call to a peer.
type ExecuteResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Output  map[string]any `json:"output,omitempty"`
}

// HealthResult is the outcome of a peer health probe.
type HealthResult struct {
	Status      string `json:"status"` // healthy | unhealthy | disabled
	URL         string `json:"url,omitempty"`
	LatencyMs   int64  `json:"response_time_ms,omitempty"`
}

// Client talks to one peer agent over HTTP.
type Client struct {
	cfg        PeerConfig
	httpClient *http.Client
}

// NewClient builds a Client. A disabled (empty-URL) peer still gets a
// Client so callers don't need a separate nil-check path; Execute/Health
// both recognize the disabled case explicitly.
func NewClient(cfg PeerConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Disabled reports whether this peer has no configured URL.
func (c *Client) Disabled() bool { return c.cfg.URL == "" }

// Execute calls the peer's /a2a/execute endpoint with the given skill and
// input. A disabled peer returns {success:false, error:"disabled"}
// without making a network call.
func (c *Client) Execute(ctx context.Context, skillID string, input map[string]any) ExecuteResult {
	if c.Disabled() {
		return ExecuteResult{Success: false, Error: "disabled"}
	}

	body, err := json.Marshal(map[string]any{"skill_id": skillID, "input": input})
	if err != nil {
		return ExecuteResult{Success: false, Error: err.Error()}
	}

	resp, err := c.postWithRetry(ctx, c.cfg.URL+"/a2a/execute", body)
	if err != nil {
		return ExecuteResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ExecuteResult{Success: false, Error: fmt.Sprintf("decoding peer response: %v", err)}
	}

	success, _ := out["success"].(bool)
	result := ExecuteResult{Success: success, Output: out}
	if !success {
		if msg, ok := out["error"].(string); ok {
			result.Error = msg
		}
	}
	return result
}

// Health probes the peer's /health endpoint. A disabled peer returns
// {status:"disabled"} without a network call.
func (c *Client) Health(ctx context.Context) HealthResult {
	if c.Disabled() {
		return HealthResult{Status: "disabled"}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return HealthResult{Status: "unhealthy", URL: c.cfg.URL}
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil || resp.StatusCode != http.StatusOK {
		return HealthResult{Status: "unhealthy", URL: c.cfg.URL, LatencyMs: latency}
	}
	defer resp.Body.Close()
	return HealthResult{Status: "healthy", URL: c.cfg.URL, LatencyMs: latency}
}

// postWithRetry retries once on a transient transport error; it never
// retries a 4xx response (spec.md §4.5).
func (c *Client) postWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	resp, err := c.post(ctx, url, body)
	if err == nil {
		return resp, nil
	}
	if !isTransient(err) {
		return nil, err
	}
	return c.post(ctx, url, body)
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return resp, nil
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Registry holds one Client per named peer and fans health checks out
// concurrently — the shape health_check_external needs when called
// without an `agent` filter.
type Registry struct {
	clients map[string]*Client
	order   []string
}

// NewRegistry builds a peer registry from per-peer configs, preserving
// the given order for deterministic listing.
func NewRegistry(configs []PeerConfig, timeout time.Duration) *Registry {
	r := &Registry{clients: make(map[string]*Client, len(configs))}
	for _, cfg := range configs {
		r.clients[cfg.Name] = NewClient(cfg, timeout)
		r.order = append(r.order, cfg.Name)
	}
	return r
}

// Get returns the named peer's client, or nil if unknown.
func (r *Registry) Get(name string) *Client { return r.clients[name] }

// Names returns peer names in registration order.
func (r *Registry) Names() []string { return r.order }

// HealthAll probes every peer concurrently using an errgroup, the same
// fan-out primitive used elsewhere in the pack for bounded concurrent
// I/O, and returns a map keyed by peer name.
func (r *Registry) HealthAll(ctx context.Context) map[string]HealthResult {
	results := make(map[string]HealthResult, len(r.order))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.order {
		name := name
		g.Go(func() error {
			res := r.clients[name].Health(gctx)
			metrics.PeerHealthChecksTotal.WithLabelValues(name, res.Status).Inc()
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // Health never returns an error; degradation is encoded in HealthResult.Status
	return results
}
