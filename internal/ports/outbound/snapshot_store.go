package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
)

// SnapshotStore persists per-block price snapshots.
type SnapshotStore interface {
	// SaveSnapshots upserts a batch of snapshots in one round trip.
	SaveSnapshots(ctx context.Context, snapshots []*entity.PriceSnapshot) error

	// LatestPrices returns the most recently stored price per asset, used to
	// seed change detection after a restart.
	LatestPrices(ctx context.Context) (map[common.Address]*big.Int, error)
}
