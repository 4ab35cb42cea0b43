package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that SnapshotStore implements outbound.SnapshotStore
var _ outbound.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore keeps price snapshots in memory, ordered by arrival.
type SnapshotStore struct {
	mu        sync.Mutex
	snapshots []*entity.PriceSnapshot
}

// NewSnapshotStore creates an empty in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) SaveSnapshots(_ context.Context, snapshots []*entity.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshots...)
	return nil
}

func (s *SnapshotStore) LatestPrices(_ context.Context) (map[common.Address]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latestBlock := make(map[common.Address]int64)
	prices := make(map[common.Address]*big.Int)
	for _, snap := range s.snapshots {
		if block, ok := latestBlock[snap.Asset]; ok && block > snap.BlockNumber {
			continue
		}
		latestBlock[snap.Asset] = snap.BlockNumber
		prices[snap.Asset] = new(big.Int).Set(snap.Price)
	}
	return prices, nil
}

// Snapshots returns a copy of everything stored so far.
func (s *SnapshotStore) Snapshots() []*entity.PriceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.PriceSnapshot(nil), s.snapshots...)
}
