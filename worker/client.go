// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stagelink/stagelink/lib/clock"
)

// Client is an HTTP client with bounded automatic retry. 5xx responses
// and connection-level failures retry with exponential backoff up to
// the configured attempt budget; 4xx responses are returned
// immediately since retrying them cannot help.
//
// Request bodies are passed as byte slices (not readers) so each
// attempt sends a fresh copy.
type Client struct {
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	clock      clock.Clock
	logger     *slog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Timeout bounds each individual attempt. Defaults to 5 seconds
	// if zero.
	Timeout time.Duration

	// RetryAttempts is the maximum number of attempts per call.
	// Defaults to 3 if zero.
	RetryAttempts int

	// RetryBackoff is the delay before the second attempt; it doubles
	// per retry. Defaults to 1 second if zero.
	RetryBackoff time.Duration

	// Clock drives the backoff sleeps. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewClient creates a retrying HTTP client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		panic("worker.Client: Logger is required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	attempts := config.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}
	backoff := config.RetryBackoff
	if backoff == 0 {
		backoff = time.Second
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		attempts:   attempts,
		backoff:    backoff,
		clock:      clk,
		logger:     config.Logger,
	}
}

// Do performs an HTTP request with retry. body may be nil for
// body-less requests. The response body is fully read and returned;
// the caller does not need to close anything.
//
// A response arriving with any status below 500 ends the retry loop —
// classifying it is the caller's job. After the attempt budget is
// exhausted, the last response (or the last transport error) is
// returned.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) (int, []byte, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-c.clock.After(backoff):
			}
			backoff *= 2
		}

		status, responseBody, err := c.doOnce(ctx, method, url, body, header)
		if err != nil {
			lastErr = err
			c.logger.Warn("request failed",
				"method", method,
				"url", url,
				"attempt", attempt,
				"error", err,
			)
			continue
		}
		if status >= 500 && attempt < c.attempts {
			c.logger.Warn("server error, retrying",
				"method", method,
				"url", url,
				"status", status,
				"attempt", attempt,
			)
			lastErr = fmt.Errorf("server returned %d", status)
			continue
		}
		return status, responseBody, nil
	}

	return 0, nil, fmt.Errorf("%s %s: %d attempts failed: %w", method, url, c.attempts, lastErr)
}

// doOnce performs a single attempt.
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, header http.Header) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}
	if body != nil && request.Header.Get("Content-Type") == "" {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return response.StatusCode, responseBody, nil
}
