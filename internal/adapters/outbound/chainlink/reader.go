// Package chainlink reads Chainlink-compatible aggregator feeds through a
// batching multicaller, so feed reads share the transport with every other
// contract read the service makes.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/pkg/blockchain/abis"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that Reader implements outbound.FeedReader
var _ outbound.FeedReader = (*Reader)(nil)

// Reader implements outbound.FeedReader over a Multicaller. Feed decimals
// never change after deployment, so they are memoized per feed address.
type Reader struct {
	multicaller outbound.Multicaller
	feedABI     *abi.ABI

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// NewReader creates a feed reader.
func NewReader(multicaller outbound.Multicaller) (*Reader, error) {
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	feedABI, err := abis.GetAggregatorV3ABI()
	if err != nil {
		return nil, fmt.Errorf("loading AggregatorV3 ABI: %w", err)
	}
	return &Reader{
		multicaller: multicaller,
		feedABI:     feedABI,
		decimals:    make(map[common.Address]uint8),
	}, nil
}

// LatestRoundData returns the most recent round of the feed, exactly as the
// contract reports it.
func (r *Reader) LatestRoundData(ctx context.Context, feed common.Address) (*outbound.RoundData, error) {
	data, err := r.call(ctx, feed, "latestRoundData")
	if err != nil {
		return nil, err
	}

	unpacked, err := r.feedABI.Methods["latestRoundData"].Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpacking latestRoundData from feed %s: %w", feed.Hex(), err)
	}
	if len(unpacked) != 5 {
		return nil, fmt.Errorf("unexpected latestRoundData arity from feed %s: %d", feed.Hex(), len(unpacked))
	}

	round := &outbound.RoundData{}
	fields := []**big.Int{&round.RoundID, &round.Answer, &round.StartedAt, &round.UpdatedAt, &round.AnsweredInRound}
	for i, field := range fields {
		v, ok := unpacked[i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected latestRoundData field %d type %T from feed %s", i, unpacked[i], feed.Hex())
		}
		*field = v
	}
	return round, nil
}

// Decimals returns the feed's declared answer precision, cached after the
// first read.
func (r *Reader) Decimals(ctx context.Context, feed common.Address) (uint8, error) {
	r.mu.RLock()
	cached, ok := r.decimals[feed]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := r.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}

	unpacked, err := r.feedABI.Methods["decimals"].Outputs.Unpack(data)
	if err != nil {
		return 0, fmt.Errorf("unpacking decimals from feed %s: %w", feed.Hex(), err)
	}
	decimals, ok := unpacked[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T from feed %s", unpacked[0], feed.Hex())
	}

	r.mu.Lock()
	r.decimals[feed] = decimals
	r.mu.Unlock()
	return decimals, nil
}

func (r *Reader) call(ctx context.Context, feed common.Address, method string) ([]byte, error) {
	callData, err := r.feedABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	results, err := r.multicaller.Execute(ctx, []outbound.Call{{
		Target:   feed,
		CallData: callData,
	}}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s on feed %s: %w", method, feed.Hex(), err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		return nil, fmt.Errorf("%s reverted on feed %s", method, feed.Hex())
	}
	return results[0].ReturnData, nil
}
