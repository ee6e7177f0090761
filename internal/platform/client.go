package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/contest-radar/contest-engine/internal/models"
)

// ClientConfig configures the shared fetch behavior of all adapters
type ClientConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	UserAgent   string
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "contest-engine/1.0"
	}
	return c
}

// Client is the retrying HTTP client shared by platform adapters. Retries are
// sequential with linearly increasing delay; a timed-out request is aborted at
// the transport level and counted as a failed attempt.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a fetch client for platform adapters
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// GetJSON issues a GET request and decodes the JSON response into out,
// retrying on network failure or non-2xx status
func (c *Client) GetJSON(ctx context.Context, platform models.Platform, url string, out interface{}) error {
	return c.doJSON(ctx, platform, http.MethodGet, url, nil, out)
}

// PostJSON issues a POST request with a JSON body and decodes the response,
// retrying on network failure or non-2xx status
func (c *Client) PostJSON(ctx context.Context, platform models.Platform, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.doJSON(ctx, platform, http.MethodPost, url, payload, out)
}

func (c *Client) doJSON(ctx context.Context, platform models.Platform, method, url string, body []byte, out interface{}) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff between attempts.
			delay := c.cfg.RetryDelay * time.Duration(attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}

			slog.Debug("retrying platform request",
				"platform", platform,
				"attempt", attempt,
				"url", url,
			)
		}

		lastErr = c.once(ctx, method, url, body, out)
		if lastErr == nil {
			return nil
		}

		slog.Warn("platform request failed",
			"platform", platform,
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"error", lastErr,
		)
	}

	return fmt.Errorf("%s after %d attempts: %s: %w",
		platform, c.cfg.MaxAttempts, lastErr, ErrPlatformUnavailable)
}

func (c *Client) once(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Probe issues a single request without retries; used by health checks
func (c *Client) Probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
