// Package erc20 reads token metadata from the chain through a batching
// multicaller: decimal precision from the token itself, and the wrapped
// asset behind a money-market token.
package erc20

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/pkg/blockchain/abis"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that Metadata implements outbound.TokenMetadata
var _ outbound.TokenMetadata = (*Metadata)(nil)

// Metadata implements outbound.TokenMetadata over a Multicaller. Decimals and
// underlying assets are immutable on-chain, so both are memoized.
type Metadata struct {
	multicaller outbound.Multicaller
	erc20ABI    *abi.ABI
	marketABI   *abi.ABI

	mu         sync.RWMutex
	decimals   map[common.Address]uint8
	underlying map[common.Address]common.Address
}

// NewMetadata creates a token metadata reader.
func NewMetadata(multicaller outbound.Multicaller) (*Metadata, error) {
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	erc20ABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("loading ERC20 ABI: %w", err)
	}
	marketABI, err := abis.GetMarketABI()
	if err != nil {
		return nil, fmt.Errorf("loading market ABI: %w", err)
	}
	return &Metadata{
		multicaller: multicaller,
		erc20ABI:    erc20ABI,
		marketABI:   marketABI,
		decimals:    make(map[common.Address]uint8),
		underlying:  make(map[common.Address]common.Address),
	}, nil
}

// Underlying returns the asset a wrapped market token represents.
func (m *Metadata) Underlying(ctx context.Context, market common.Address) (common.Address, error) {
	m.mu.RLock()
	cached, ok := m.underlying[market]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := m.call(ctx, m.marketABI, market, "underlying")
	if err != nil {
		return common.Address{}, err
	}

	unpacked, err := m.marketABI.Methods["underlying"].Outputs.Unpack(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpacking underlying of market %s: %w", market.Hex(), err)
	}
	underlying, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected underlying type %T from market %s", unpacked[0], market.Hex())
	}

	m.mu.Lock()
	m.underlying[market] = underlying
	m.mu.Unlock()
	return underlying, nil
}

// Decimals returns the token's declared decimal count.
func (m *Metadata) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	m.mu.RLock()
	cached, ok := m.decimals[asset]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := m.call(ctx, m.erc20ABI, asset, "decimals")
	if err != nil {
		return 0, err
	}

	unpacked, err := m.erc20ABI.Methods["decimals"].Outputs.Unpack(data)
	if err != nil {
		return 0, fmt.Errorf("unpacking decimals of %s: %w", asset.Hex(), err)
	}
	decimals, ok := unpacked[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T from token %s", unpacked[0], asset.Hex())
	}

	m.mu.Lock()
	m.decimals[asset] = decimals
	m.mu.Unlock()
	return decimals, nil
}

func (m *Metadata) call(ctx context.Context, contractABI *abi.ABI, target common.Address, method string) ([]byte, error) {
	callData, err := contractABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	results, err := m.multicaller.Execute(ctx, []outbound.Call{{
		Target:   target,
		CallData: callData,
	}}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", method, target.Hex(), err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		return nil, fmt.Errorf("%s reverted on %s", method, target.Hex())
	}
	return results[0].ReturnData, nil
}
