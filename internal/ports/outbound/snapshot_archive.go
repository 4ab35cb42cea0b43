package outbound

import (
	"context"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
)

// SnapshotArchive persists an immutable per-block record of resolved prices
// to long-term storage, alongside the queryable SnapshotStore.
type SnapshotArchive interface {
	// ArchiveBlock writes the block's snapshots if no archive exists for the
	// block yet. Returns false when the block was already archived.
	ArchiveBlock(ctx context.Context, blockNumber int64, snapshots []*entity.PriceSnapshot) (bool, error)
}
