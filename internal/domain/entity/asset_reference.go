package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetReference links an on-chain asset to its identifier on an off-chain
// price source, used to cross-check resolved prices against market data.
type AssetReference struct {
	Asset       common.Address
	CoinGeckoID string
}

// NewAssetReference creates a new AssetReference entity with validation.
func NewAssetReference(asset common.Address, coinGeckoID string) (*AssetReference, error) {
	r := &AssetReference{
		Asset:       asset,
		CoinGeckoID: coinGeckoID,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *AssetReference) validate() error {
	if r.Asset == (common.Address{}) {
		return fmt.Errorf("asset must not be zero")
	}
	if r.CoinGeckoID == "" {
		return fmt.Errorf("coinGeckoID must not be empty")
	}
	return nil
}
