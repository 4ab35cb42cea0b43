// Package redis provides a Redis implementation of the PriceCache port.
//
// Prices are stored under prefix:price:asset with a short TTL and the whole
// key space is flushed when a new chain head arrives, so cached quotes never
// outlive the block they were resolved at.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that PriceCache implements outbound.PriceCache
var _ outbound.PriceCache = (*PriceCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached prices live before expiring. The flush on each
	// new head usually fires first; the TTL is the backstop when the head
	// subscription is down.
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       30 * time.Second,
		KeyPrefix: "citrus",
	}
}

// PriceCache is a Redis implementation of the outbound.PriceCache port.
type PriceCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewPriceCache creates a new Redis price cache.
func NewPriceCache(cfg Config, logger *slog.Logger) (*PriceCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-cache")

	return &PriceCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Ping checks the Redis connection.
func (c *PriceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *PriceCache) Close() error {
	return c.client.Close()
}

func (c *PriceCache) key(asset common.Address) string {
	return fmt.Sprintf("%s:price:%s", c.keyPrefix, asset.Hex())
}

// GetPrice returns the cached price for the asset, or (nil, nil) on a miss.
func (c *PriceCache) GetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	data, err := c.client.Get(ctx, c.key(asset)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached price: %w", err)
	}
	price, ok := new(big.Int).SetString(data, 10)
	if !ok {
		// A corrupt entry is treated as a miss, not an error.
		c.logger.Warn("dropping corrupt cache entry", "asset", asset.Hex(), "value", data)
		return nil, nil
	}
	return price, nil
}

// SetPrice stores the price for the asset with the configured TTL.
func (c *PriceCache) SetPrice(ctx context.Context, asset common.Address, price *big.Int) error {
	if err := c.client.Set(ctx, c.key(asset), price.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache price: %w", err)
	}
	return nil
}

// Flush drops every cached price under the configured prefix. Called on each
// new chain head.
func (c *PriceCache) Flush(ctx context.Context) error {
	pattern := fmt.Sprintf("%s:price:*", c.keyPrefix)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to flush price cache: %w", err)
	}
	return nil
}
