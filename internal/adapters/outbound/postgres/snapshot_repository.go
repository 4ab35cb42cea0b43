package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that SnapshotRepository implements outbound.SnapshotStore
var _ outbound.SnapshotStore = (*SnapshotRepository)(nil)

// SnapshotRepository persists per-block price snapshots. Prices are stored
// as NUMERIC(78,0), wide enough for any uint256 value.
type SnapshotRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository.
func NewSnapshotRepository(pool *pgxpool.Pool, logger *slog.Logger) (*SnapshotRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotRepository{
		pool:   pool,
		logger: logger.With("component", "snapshot-repository"),
	}, nil
}

// SaveSnapshots inserts a batch of snapshots in a single multi-row INSERT.
// Re-delivered blocks are idempotent: conflicting (asset, block) rows are
// left untouched.
func (r *SnapshotRepository) SaveSnapshots(ctx context.Context, snapshots []*entity.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO price_snapshot (asset, block_number, price, resolved_at)
		VALUES `)

	args := make([]any, 0, len(snapshots)*4)
	for i, s := range snapshots {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, s.Asset.Bytes(), s.BlockNumber, s.Price.String(), s.ResolvedAt)
	}
	sb.WriteString(" ON CONFLICT (asset, block_number) DO NOTHING")

	tag, err := r.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("inserting %d snapshots: %w", len(snapshots), err)
	}

	if tag.RowsAffected() < int64(len(snapshots)) {
		r.logger.Debug("some snapshots already existed",
			"attempted", len(snapshots),
			"inserted", tag.RowsAffected())
	}
	return nil
}

// LatestPrices returns the most recently snapshotted price for every asset.
func (r *SnapshotRepository) LatestPrices(ctx context.Context) (map[common.Address]*big.Int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (asset) asset, price
		FROM price_snapshot
		ORDER BY asset, block_number DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying latest prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[common.Address]*big.Int)
	for rows.Next() {
		var asset []byte
		var price string
		if err := rows.Scan(&asset, &price); err != nil {
			return nil, fmt.Errorf("scanning latest price: %w", err)
		}
		v, ok := new(big.Int).SetString(price, 10)
		if !ok {
			return nil, fmt.Errorf("invalid stored price %q for asset %s", price, common.BytesToAddress(asset).Hex())
		}
		prices[common.BytesToAddress(asset)] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating latest prices: %w", err)
	}
	return prices, nil
}

// PricesAtBlock returns all snapshotted prices for one block, used by
// historical queries.
func (r *SnapshotRepository) PricesAtBlock(ctx context.Context, blockNumber int64) (map[common.Address]*big.Int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT asset, price
		FROM price_snapshot
		WHERE block_number = $1
	`, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("querying prices at block %d: %w", blockNumber, err)
	}
	defer rows.Close()

	prices := make(map[common.Address]*big.Int)
	for rows.Next() {
		var asset []byte
		var price string
		if err := rows.Scan(&asset, &price); err != nil {
			return nil, fmt.Errorf("scanning price at block %d: %w", blockNumber, err)
		}
		v, ok := new(big.Int).SetString(price, 10)
		if !ok {
			return nil, fmt.Errorf("invalid stored price %q at block %d", price, blockNumber)
		}
		prices[common.BytesToAddress(asset)] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prices at block %d: %w", blockNumber, err)
	}
	return prices, nil
}
