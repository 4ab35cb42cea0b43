// Package coingecko implements the ReferencePriceProvider interface using
// CoinGecko's API. The snapshot worker uses it to sanity-check on-chain
// resolution results against an independent market quote.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/citrus-finance/citrus-oracle/internal/pkg/httpclient"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.ReferencePriceProvider.
var _ outbound.ReferencePriceProvider = (*Client)(nil)

// ClientConfig holds configuration for the CoinGecko client.
type ClientConfig struct {
	// APIKey is the CoinGecko Pro API key.
	APIKey string

	// BaseURL is the CoinGecko API base URL.
	// Defaults to https://pro-api.coingecko.com/api/v3
	BaseURL string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// RateLimitPerMin is the rate limit in requests per minute.
	// Defaults to 450 to stay safely under CoinGecko Pro's 500/min limit.
	RateLimitPerMin int

	// Logger is the structured logger for the client.
	Logger *slog.Logger
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://pro-api.coingecko.com/api/v3",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		BackoffFactor:   2.0,
		RateLimitPerMin: 450,
		Logger:          slog.Default(),
	}
}

// Client implements ReferencePriceProvider using CoinGecko's API.
type Client struct {
	config ClientConfig
	http   *httpclient.Client
	logger *slog.Logger
}

// NewClient creates a new CoinGecko API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}

	applyDefaults(&config, ClientConfigDefaults())

	logger := config.Logger.With("component", "coingecko-client")

	// API errors arrive as {"error": "..."} bodies and should not be retried.
	errorParser := func(statusCode int, body []byte) error {
		var apiErr coinGeckoError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("API error (HTTP %d): %s", statusCode, apiErr.Error)
		}
		return nil
	}

	httpCfg := httpclient.Config{
		Timeout:        config.Timeout,
		MaxRetries:     config.MaxRetries,
		InitialBackoff: config.InitialBackoff,
		MaxBackoff:     config.MaxBackoff,
		BackoffFactor:  config.BackoffFactor,
		RateLimit:      rate.Limit(float64(config.RateLimitPerMin) / 60.0),
		RateBurst:      1,
	}

	return &Client{
		config: config,
		http:   httpclient.NewClient(httpCfg, logger, errorParser),
		logger: logger,
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "coingecko"
}

// CurrentPrices fetches current USD prices for the given asset IDs.
// Uses the /simple/price endpoint which supports up to 250 coins per request.
func (c *Client) CurrentPrices(ctx context.Context, assetIDs []string) ([]outbound.ReferencePrice, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	results := make([]outbound.ReferencePrice, 0, len(assetIDs))
	batchSize := 250

	for i := 0; i < len(assetIDs); i += batchSize {
		end := min(i+batchSize, len(assetIDs))

		batchResults, err := c.currentPricesBatch(ctx, assetIDs[i:end])
		if err != nil {
			return nil, fmt.Errorf("fetching prices for batch starting at %d: %w", i, err)
		}
		results = append(results, batchResults...)
	}

	return results, nil
}

func (c *Client) currentPricesBatch(ctx context.Context, assetIDs []string) ([]outbound.ReferencePrice, error) {
	params := url.Values{
		"ids":           {strings.Join(assetIDs, ",")},
		"vs_currencies": {"usd"},
	}
	fullURL := fmt.Sprintf("%s/simple/price?%s", c.config.BaseURL, params.Encode())

	headers := map[string]string{
		"x-cg-pro-api-key": c.config.APIKey,
	}

	var response simplePriceResponse
	if err := c.http.GetJSON(ctx, fullURL, headers, &response); err != nil {
		return nil, err
	}

	results := make([]outbound.ReferencePrice, 0, len(response))
	for assetID, data := range response {
		results = append(results, outbound.ReferencePrice{
			AssetID:  assetID,
			PriceUSD: data.USD,
		})
	}

	return results, nil
}
