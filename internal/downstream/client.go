// Package downstream holds the HTTP clients for the services the
// dispatcher talks to: text-to-speech rendering, the device directory,
// and the playback gateway. Every call runs through a circuit breaker
// keyed by target name, so one unhealthy service never drags the others
// down with it.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Breaker is the circuit-breaker capability the clients consume.
type Breaker interface {
	Allow(target string) error
	RecordSuccess(target string)
	RecordFailure(target string)
}

// MetricsSink records request metrics. Methods must be non-blocking.
type MetricsSink interface {
	DownstreamRequest(target, outcome string, duration time.Duration)
}

// client is the shared request machinery behind the three typed clients.
type client struct {
	http    *http.Client
	baseURL string
	target  string
	breaker Breaker     // optional, nil = always allowed
	metrics MetricsSink // optional, nil = disabled
	timeout time.Duration
}

func newClient(baseURL, target string, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return client{
		http:    &http.Client{},
		baseURL: baseURL,
		target:  target,
		timeout: timeout,
	}
}

// do sends a JSON request and decodes a JSON response into out (skipped
// when out is nil). Breaker bookkeeping and error wrapping live here so
// the typed clients stay thin.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	if c.breaker != nil {
		if err := c.breaker.Allow(c.target); err != nil {
			c.report("circuit_open", 0)
			return &domain.DownstreamError{Target: c.target, Err: err}
		}
	}

	start := time.Now()
	err := c.send(ctx, method, path, in, out)
	duration := time.Since(start)

	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure(c.target)
		}
		c.report("error", duration)
		return &domain.DownstreamError{Target: c.target, Err: err}
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess(c.target)
	}
	c.report("success", duration)
	return nil
}

func (c *client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *client) report(outcome string, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.DownstreamRequest(c.target, outcome, duration)
	}
}
