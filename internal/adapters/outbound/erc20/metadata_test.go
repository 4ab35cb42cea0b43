package erc20

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
	"github.com/citrus-finance/citrus-oracle/internal/testutil"
)

var (
	marketAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	tokenAddr  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func TestUnderlyingDecodesAndCaches(t *testing.T) {
	mc := testutil.NewMockMulticaller()
	mc.ExecuteFn = func(_ context.Context, calls []outbound.Call, _ *big.Int) ([]outbound.Result, error) {
		if calls[0].Target != marketAddr {
			t.Fatalf("call target = %s, want market", calls[0].Target.Hex())
		}
		return []outbound.Result{{
			Success:    true,
			ReturnData: testutil.PackUnderlying(t, tokenAddr),
		}}, nil
	}

	meta, err := NewMetadata(mc)
	if err != nil {
		t.Fatalf("NewMetadata: %v", err)
	}

	for i := 0; i < 2; i++ {
		underlying, err := meta.Underlying(context.Background(), marketAddr)
		if err != nil {
			t.Fatalf("Underlying: %v", err)
		}
		if underlying != tokenAddr {
			t.Errorf("underlying = %s, want %s", underlying.Hex(), tokenAddr.Hex())
		}
	}
	if mc.CallCount != 1 {
		t.Errorf("multicaller invoked %d times, want 1 (cached)", mc.CallCount)
	}
}

func TestDecimalsDecodesAndCaches(t *testing.T) {
	mc := testutil.NewMockMulticaller()
	mc.ExecuteFn = func(_ context.Context, _ []outbound.Call, _ *big.Int) ([]outbound.Result, error) {
		return []outbound.Result{{
			Success:    true,
			ReturnData: testutil.PackDecimals(t, 18),
		}}, nil
	}

	meta, err := NewMetadata(mc)
	if err != nil {
		t.Fatalf("NewMetadata: %v", err)
	}

	for i := 0; i < 2; i++ {
		decimals, err := meta.Decimals(context.Background(), tokenAddr)
		if err != nil {
			t.Fatalf("Decimals: %v", err)
		}
		if decimals != 18 {
			t.Errorf("decimals = %d, want 18", decimals)
		}
	}
	if mc.CallCount != 1 {
		t.Errorf("multicaller invoked %d times, want 1 (cached)", mc.CallCount)
	}
}

func TestUnderlyingRevertFails(t *testing.T) {
	mc := testutil.NewMockMulticaller()
	mc.ExecuteFn = func(_ context.Context, _ []outbound.Call, _ *big.Int) ([]outbound.Result, error) {
		return []outbound.Result{{Success: false}}, nil
	}

	meta, err := NewMetadata(mc)
	if err != nil {
		t.Fatalf("NewMetadata: %v", err)
	}

	if _, err := meta.Underlying(context.Background(), marketAddr); err == nil {
		t.Fatal("expected error for reverted call, got nil")
	}
}
