package entity

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceSnapshot stores one resolved asset price at a specific block.
// Price is scaled by 1e18 regardless of the asset's own decimals.
type PriceSnapshot struct {
	Asset       common.Address
	BlockNumber int64
	Price       *big.Int
	ResolvedAt  time.Time
}

// NewPriceSnapshot creates a new PriceSnapshot entity with validation.
func NewPriceSnapshot(asset common.Address, blockNumber int64, price *big.Int, resolvedAt time.Time) (*PriceSnapshot, error) {
	s := &PriceSnapshot{
		Asset:       asset,
		BlockNumber: blockNumber,
		Price:       price,
		ResolvedAt:  resolvedAt,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PriceSnapshot) validate() error {
	if s.Asset == (common.Address{}) {
		return fmt.Errorf("asset must not be zero")
	}
	if s.BlockNumber <= 0 {
		return fmt.Errorf("blockNumber must be positive, got %d", s.BlockNumber)
	}
	if s.Price == nil {
		return fmt.Errorf("price must not be nil")
	}
	if s.Price.Sign() < 0 {
		return fmt.Errorf("price must be non-negative, got %s", s.Price.String())
	}
	if s.ResolvedAt.IsZero() {
		return fmt.Errorf("resolvedAt must not be zero")
	}
	return nil
}
