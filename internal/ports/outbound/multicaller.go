package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Multicaller batches multiple contract reads into one request, either through
// the Multicall3 contract or as a raw JSON-RPC batch. A nil blockNumber means
// the latest block.
type Multicaller interface {
	Execute(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error)
	Address() common.Address
}

// Call is one contract read within a batch.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is the outcome of one call within a batch.
type Result struct {
	Success    bool
	ReturnData []byte
}
