package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that PriceCache implements outbound.PriceCache
var _ outbound.PriceCache = (*PriceCache)(nil)

// PriceCache is an in-memory price cache without expiry; Flush is the only
// way entries leave it, matching how the service flushes per block.
type PriceCache struct {
	mu     sync.Mutex
	prices map[common.Address]*big.Int
}

// NewPriceCache creates an empty in-memory price cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[common.Address]*big.Int)}
}

func (c *PriceCache) GetPrice(_ context.Context, asset common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.prices[asset]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(price), nil
}

func (c *PriceCache) SetPrice(_ context.Context, asset common.Address, price *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[asset] = new(big.Int).Set(price)
	return nil
}

func (c *PriceCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = make(map[common.Address]*big.Int)
	return nil
}

func (c *PriceCache) Close() error { return nil }
