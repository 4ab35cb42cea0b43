package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceCache is a short-lived read-through cache in front of price resolution.
// Entries expire on their own TTL and are flushed wholesale on each new chain
// head, so a cached quote is never older than one block.
type PriceCache interface {
	// GetPrice returns the cached price for the asset, or (nil, nil) on a miss.
	GetPrice(ctx context.Context, asset common.Address) (*big.Int, error)

	// SetPrice stores the price for the asset.
	SetPrice(ctx context.Context, asset common.Address, price *big.Int) error

	// Flush drops every cached price.
	Flush(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}
