//go:build integration

package redis

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	wbtcAddr = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// setupRedis creates a Redis container and returns a connected PriceCache.
func setupRedis(t *testing.T, ttl time.Duration) *PriceCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cache, err := NewPriceCache(Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		TTL:       ttl,
		KeyPrefix: "test",
	}, nil)
	if err != nil {
		t.Fatalf("failed to create price cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	for i := 0; i < 30; i++ {
		if err := cache.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	return cache
}

func wad(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}

func TestPriceCache_RoundTrip(t *testing.T) {
	cache := setupRedis(t, time.Hour)
	ctx := context.Background()

	if err := cache.SetPrice(ctx, wbtcAddr, wad(61000)); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}

	price, err := cache.GetPrice(ctx, wbtcAddr)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price == nil || price.Cmp(wad(61000)) != 0 {
		t.Errorf("price = %v, want %s", price, wad(61000))
	}
}

func TestPriceCache_MissReturnsNil(t *testing.T) {
	cache := setupRedis(t, time.Hour)

	price, err := cache.GetPrice(context.Background(), wethAddr)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price != nil {
		t.Errorf("expected nil on a miss, got %s", price)
	}
}

func TestPriceCache_PreservesFullPrecision(t *testing.T) {
	cache := setupRedis(t, time.Hour)
	ctx := context.Background()

	// Max uint256: the cache must not truncate prices of any magnitude.
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := cache.SetPrice(ctx, wbtcAddr, max); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}

	price, err := cache.GetPrice(ctx, wbtcAddr)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price == nil || price.Cmp(max) != 0 {
		t.Errorf("price = %v, want %s", price, max)
	}
}

func TestPriceCache_FlushDropsAllPrices(t *testing.T) {
	cache := setupRedis(t, time.Hour)
	ctx := context.Background()

	if err := cache.SetPrice(ctx, wbtcAddr, wad(61000)); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if err := cache.SetPrice(ctx, wethAddr, wad(3000)); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}

	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	for _, asset := range []common.Address{wbtcAddr, wethAddr} {
		price, err := cache.GetPrice(ctx, asset)
		if err != nil {
			t.Fatalf("GetPrice: %v", err)
		}
		if price != nil {
			t.Errorf("asset %s still cached after flush: %s", asset.Hex(), price)
		}
	}
}

func TestPriceCache_FlushOnEmptyCacheIsNoOp(t *testing.T) {
	cache := setupRedis(t, time.Hour)

	if err := cache.Flush(context.Background()); err != nil {
		t.Errorf("Flush on empty cache: %v", err)
	}
}

func TestPriceCache_TTLExpiration(t *testing.T) {
	cache := setupRedis(t, time.Second)
	ctx := context.Background()

	if err := cache.SetPrice(ctx, wbtcAddr, wad(61000)); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}

	time.Sleep(2 * time.Second)

	price, err := cache.GetPrice(ctx, wbtcAddr)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price != nil {
		t.Errorf("expected expired entry, got %s", price)
	}
}
