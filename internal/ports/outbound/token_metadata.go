package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TokenMetadata reads token-level metadata from the chain. The pricing core
// never stores decimals or market composition itself; it asks on demand.
type TokenMetadata interface {
	// Underlying returns the asset a wrapped market token represents.
	Underlying(ctx context.Context, market common.Address) (common.Address, error)

	// Decimals returns the token's declared decimal count.
	Decimals(ctx context.Context, asset common.Address) (uint8, error)
}
