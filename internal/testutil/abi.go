// Package testutil provides shared helpers for tests: ABI packers for
// simulated contract return data and hand-rolled mocks for the outbound ports.
package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/pkg/blockchain/abis"
)

// PackLatestRoundData ABI-encodes latestRoundData() return data.
func PackLatestRoundData(t *testing.T, roundID, answer, startedAt, updatedAt, answeredInRound *big.Int) []byte {
	t.Helper()
	feedABI, err := abis.GetAggregatorV3ABI()
	if err != nil {
		t.Fatalf("loading AggregatorV3 ABI: %v", err)
	}
	data, err := feedABI.Methods["latestRoundData"].Outputs.Pack(roundID, answer, startedAt, updatedAt, answeredInRound)
	if err != nil {
		t.Fatalf("packing latestRoundData: %v", err)
	}
	return data
}

// PackDecimals ABI-encodes decimals() return data (uint8).
func PackDecimals(t *testing.T, decimals uint8) []byte {
	t.Helper()
	feedABI, err := abis.GetAggregatorV3ABI()
	if err != nil {
		t.Fatalf("loading AggregatorV3 ABI: %v", err)
	}
	data, err := feedABI.Methods["decimals"].Outputs.Pack(decimals)
	if err != nil {
		t.Fatalf("packing decimals: %v", err)
	}
	return data
}

// PackUnderlying ABI-encodes underlying() return data (address).
func PackUnderlying(t *testing.T, underlying common.Address) []byte {
	t.Helper()
	marketABI, err := abis.GetMarketABI()
	if err != nil {
		t.Fatalf("loading market ABI: %v", err)
	}
	data, err := marketABI.Methods["underlying"].Outputs.Pack(underlying)
	if err != nil {
		t.Fatalf("packing underlying: %v", err)
	}
	return data
}
