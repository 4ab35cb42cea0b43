// Package outbound contains the secondary/outbound ports: interfaces the
// application core depends on, implemented by adapters (chain clients,
// repositories, caches, sinks).
package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Resolver answers price queries for assets. All prices are scaled by 1e18
// and expressed in the resolver's base currency; the base currency itself
// always resolves to exactly 1e18.
type Resolver interface {
	// Price returns the 1e18-scaled price of the asset in the base currency.
	// Fails with entity.ErrNotFound when no route exists for the asset.
	Price(ctx context.Context, asset common.Address) (*big.Int, error)

	// BaseCurrency returns the asset all prices are denominated in.
	BaseCurrency() common.Address
}

// PriceSource produces prices for individual assets on behalf of a resolver.
//
// The resolver argument is the resolving context of the current call: a source
// that needs another asset's price to denominate its own answer (a feed quoted
// in ETH, say) asks the resolver rather than holding a reference to whichever
// registry it happens to be registered with. The same source instance can
// therefore serve multiple registries.
type PriceSource interface {
	// Price returns the 1e18-scaled price of the asset in the source's base
	// currency. Fails with entity.ErrNotFound when the source has no
	// configuration for the asset; validation failures surface as
	// entity.ErrStalePrice, entity.ErrIncompleteRound or entity.ErrInvalidPrice.
	Price(ctx context.Context, resolver Resolver, asset common.Address) (*big.Int, error)

	// BaseCurrency returns the asset this source denominates prices in.
	// Checked against the registry's base currency when the source is
	// installed as a default.
	BaseCurrency() common.Address
}
