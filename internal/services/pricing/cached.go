package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/ports/inbound"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that CachedPrices implements inbound.PriceService
var _ inbound.PriceService = (*CachedPrices)(nil)

// CachedPrices is a read-through cache in front of a price service. Cache
// trouble never fails a query: a cache read error is a miss, a cache write
// error keeps the resolved price. Only Price is cached; UnderlyingPrice
// delegates directly because its rescaling is cheap once Price is cached.
type CachedPrices struct {
	next   inbound.PriceService
	cache  outbound.PriceCache
	logger *slog.Logger
}

// NewCachedPrices wraps a price service with a cache.
func NewCachedPrices(next inbound.PriceService, cache outbound.PriceCache, logger *slog.Logger) (*CachedPrices, error) {
	if next == nil {
		return nil, fmt.Errorf("price service cannot be nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedPrices{
		next:   next,
		cache:  cache,
		logger: logger.With("component", "cached-prices"),
	}, nil
}

// Price returns the cached price when present, resolving and caching on a
// miss.
func (c *CachedPrices) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	cached, err := c.cache.GetPrice(ctx, asset)
	if err != nil {
		c.logger.Warn("cache read failed", "asset", asset.Hex(), "error", err)
	} else if cached != nil {
		return cached, nil
	}

	price, err := c.next.Price(ctx, asset)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetPrice(ctx, asset, price); err != nil {
		c.logger.Warn("cache write failed", "asset", asset.Hex(), "error", err)
	}
	return price, nil
}

// UnderlyingPrice delegates to the wrapped service.
func (c *CachedPrices) UnderlyingPrice(ctx context.Context, market common.Address) (*big.Int, error) {
	return c.next.UnderlyingPrice(ctx, market)
}

// BaseCurrency delegates to the wrapped service.
func (c *CachedPrices) BaseCurrency() common.Address {
	return c.next.BaseCurrency()
}
