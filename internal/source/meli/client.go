// Package meli talks to the Mercado Livre API: a retry-aware fetch
// client plus the multi-phase orchestrators that assemble one sync
// run's worth of upstream data.
package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// TokenProvider supplies a currently valid bearer credential.
// Refreshing near-expiry credentials is the provider's concern.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Config holds fetch client configuration.
type Config struct {
	BaseURL        string
	PageSize       int
	Timeout        time.Duration
	MaxConcurrent  int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DateFrom       string
}

// Client is a retry-aware Mercado Livre API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider

	pageSize       int
	maxConcurrent  int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	dateFrom       string

	logger *slog.Logger
}

// NewClient creates a new Mercado Livre client.
func NewClient(cfg Config, tokens TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		tokens:         tokens,
		pageSize:       cfg.PageSize,
		maxConcurrent:  cfg.MaxConcurrent,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		dateFrom:       cfg.DateFrom,
		logger:         logger.With("source", "meli"),
	}
}

// outcome classifies a fetch so callers decide fallbacks explicitly
// instead of every failure collapsing into a silent empty payload.
type outcome int

const (
	outcomeOK     outcome = iota
	outcomeEmpty          // expected absence: 404 on an optional sub-resource
	outcomeFailed         // retries exhausted; the caller picks the fallback
)

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// getJSON performs a GET with the retry policy: transient statuses and
// transport errors back off (doubling, capped) up to maxAttempts.
// The returned error carries the last failure cause; an outcomeFailed
// with a non-nil error is still a decided result, not a panic path.
func (c *Client) getJSON(ctx context.Context, token, path string, params url.Values, headers map[string]string, allow404 bool, out any) (outcome, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res, err := c.doRequest(ctx, token, reqURL, headers, allow404, out)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"path", path,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return outcomeFailed, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return outcomeFailed, fmt.Errorf("after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) doRequest(ctx context.Context, token, reqURL string, headers map[string]string, allow404 bool, out any) (outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return outcomeFailed, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outcomeFailed, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && allow404 {
		return outcomeEmpty, nil
	}
	if resp.StatusCode != http.StatusOK {
		return outcomeFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out == nil {
		return outcomeOK, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return outcomeFailed, fmt.Errorf("decode response: %w", err)
	}
	return outcomeOK, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}
