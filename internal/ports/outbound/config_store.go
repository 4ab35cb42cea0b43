package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
)

// ConfigStore persists registry configuration so a deployment survives
// restarts. Mutators write through entry by entry; a write failure aborts the
// remaining entries of a batch but keeps the ones already applied.
type ConfigStore interface {
	// LoadConfig returns the full persisted configuration of the deployment.
	LoadConfig(ctx context.Context) (*entity.DeploymentConfig, error)

	// SaveSettings replaces the singleton control row (base currency, roles,
	// default source, call-first flag).
	SaveSettings(ctx context.Context, settings entity.RegistrySettings) error

	// SaveSourceBinding upserts one asset's routing entry.
	SaveSourceBinding(ctx context.Context, binding entity.SourceBinding) error

	// DeleteSourceBinding removes one asset's routing entry.
	DeleteSourceBinding(ctx context.Context, asset common.Address) error

	// SaveFeedBinding upserts one asset's feed entry for a named source.
	SaveFeedBinding(ctx context.Context, binding entity.FeedBinding) error

	// LoadAssetReferences returns the off-chain reference IDs used for price
	// cross-checks.
	LoadAssetReferences(ctx context.Context) ([]entity.AssetReference, error)
}
