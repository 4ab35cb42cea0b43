package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RoundData is the raw result of a latestRoundData call on a
// Chainlink-compatible aggregator. Values are returned exactly as the
// contract reports them; validation is the caller's concern.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// FeedReader reads Chainlink-compatible price feed aggregators.
type FeedReader interface {
	// LatestRoundData returns the most recent round of the feed.
	LatestRoundData(ctx context.Context, feed common.Address) (*RoundData, error)

	// Decimals returns the feed's declared answer precision.
	Decimals(ctx context.Context, feed common.Address) (uint8, error)
}
