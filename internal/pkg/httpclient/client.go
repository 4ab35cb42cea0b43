// Package httpclient provides a shared HTTP client with rate limiting and
// retry logic for external API calls.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/citrus-finance/citrus-oracle/internal/pkg/retry"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	RateLimit      rate.Limit
	RateBurst      int
}

// DefaultConfig returns sensible defaults for the HTTP client.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		RateLimit:      rate.Limit(5),
		RateBurst:      1,
	}
}

// ErrorParser parses API-specific error responses. It returns an error if the
// body contains an API error, or nil otherwise.
type ErrorParser func(statusCode int, body []byte) error

// Client wraps an HTTP client with retry logic and rate limiting.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig retry.Config
	logger      *slog.Logger
	errorParser ErrorParser
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(cfg Config, logger *slog.Logger, errorParser ErrorParser) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if errorParser == nil {
		errorParser = func(_ int, _ []byte) error { return nil }
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		retryConfig: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			BackoffFactor:  cfg.BackoffFactor,
		},
		logger:      logger,
		errorParser: errorParser,
	}
}

// GetJSON performs an HTTP GET with rate limiting and retries, decoding the
// JSON response into result.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, result any) error {
	cfg := c.retryConfig
	cfg.IsRetryable = func(err error) bool {
		var nonRetryable *NonRetryableError
		return !errors.As(err, &nonRetryable)
	}
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", cfg.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	return retry.DoVoid(ctx, cfg, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return WrapNonRetryable(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, url, headers, result)
	})
}

func (c *Client) doSingleRequest(ctx context.Context, url string, headers map[string]string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapNonRetryable(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (HTTP 429)")
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if apiErr := c.errorParser(resp.StatusCode, body); apiErr != nil {
			return WrapNonRetryable(apiErr)
		}
		return WrapNonRetryable(fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body)))
	}

	// API errors can hide inside 200 responses; the parser decides whether
	// they are retryable.
	if apiErr := c.errorParser(resp.StatusCode, body); apiErr != nil {
		return apiErr
	}

	if err := json.Unmarshal(body, result); err != nil {
		return WrapNonRetryable(fmt.Errorf("parsing response: %w", err))
	}

	return nil
}

// NonRetryableError wraps errors that should not be retried.
type NonRetryableError struct {
	err error
}

func (e *NonRetryableError) Error() string {
	return e.err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.err
}

// WrapNonRetryable wraps an error to indicate it should not be retried.
func WrapNonRetryable(err error) error {
	return &NonRetryableError{err: err}
}
