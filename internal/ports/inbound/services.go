// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceService answers price queries. Prices are scaled by 1e18 and
// denominated in the deployment's base currency.
type PriceService interface {
	// Price returns the price of an asset.
	Price(ctx context.Context, asset common.Address) (*big.Int, error)

	// UnderlyingPrice returns the price of a market's underlying asset,
	// rescaled so that multiplying by a raw token amount yields a
	// 1e18-scaled value.
	UnderlyingPrice(ctx context.Context, market common.Address) (*big.Int, error)

	// BaseCurrency returns the asset prices are denominated in.
	BaseCurrency() common.Address
}

// AdminService applies configuration changes on behalf of a caller principal.
// Sources are referenced by their configured names; the implementation maps
// names to instances. Every method authorizes the caller before touching
// state and fails with entity.ErrUnauthorized when the caller lacks the role.
type AdminService interface {
	// SetSources routes each asset to the correspondingly named source.
	SetSources(ctx context.Context, caller common.Address, assets []common.Address, sourceNames []string) error

	// ClearSources removes the routing entries for the given assets.
	// Callable by the admin or the guardian.
	ClearSources(ctx context.Context, caller common.Address, assets []common.Address) error

	// SetDefaultSource installs the named source as the fallback. An empty
	// name clears the default; callFirst makes the default take precedence
	// over per-asset routes.
	SetDefaultSource(ctx context.Context, caller common.Address, sourceName string, callFirst bool) error

	// SetFeeds assigns aggregator feeds inside the named feed-backed source.
	// All feeds in one call share the quote currency.
	SetFeeds(ctx context.Context, caller common.Address, sourceName string, assets, feeds []common.Address, quoteCurrency common.Address) error

	// SetAdmin hands the admin role to a new principal.
	SetAdmin(ctx context.Context, caller, newAdmin common.Address) error

	// SetGuardian hands the guardian role to a new principal.
	SetGuardian(ctx context.Context, caller, newGuardian common.Address) error
}

// HealthChecker defines the interface for services that can report readiness
// and liveness. This enables health checking during rolling deployments,
// ensuring new instances are serving before old ones are terminated.
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	// Used by ECS/Kubernetes readiness probes during rolling deployments.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	// Used by ECS/Kubernetes liveness probes to detect stuck services.
	IsHealthy() bool
}
