// Package blockchain holds chain-level constants shared by adapters.
package blockchain

import "github.com/ethereum/go-ethereum/common"

const (
	// Multicall3Address is the canonical Multicall3 deployment, identical on
	// all major EVM chains.
	Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

	// USDAddress is the conventional placeholder identifying USD as an asset:
	// its ISO 4217 numeric code (840 = 0x348), as used by Aave and Chainlink
	// denomination registries.
	USDAddress = "0x0000000000000000000000000000000000000348"
)

var (
	Multicall3 = common.HexToAddress(Multicall3Address)
	USD        = common.HexToAddress(USDAddress)

	// Well-known mainnet tokens, used as quote currencies by ETH- and
	// BTC-denominated feeds.
	WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	WBTC = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)
