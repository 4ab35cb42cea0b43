package snapshot_worker

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/memory"
	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

var (
	wbtcAddr = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockConsumer struct {
	mu                 sync.Mutex
	receiveEventsFn    func(ctx context.Context, maxMessages int) ([]outbound.BlockEventMessage, error)
	deleteMessageCalls int
}

func (m *mockConsumer) ReceiveBlockEvents(ctx context.Context, maxMessages int) ([]outbound.BlockEventMessage, error) {
	if m.receiveEventsFn != nil {
		return m.receiveEventsFn(ctx, maxMessages)
	}
	return nil, nil
}

func (m *mockConsumer) DeleteMessage(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteMessageCalls++
	return nil
}

func (m *mockConsumer) Close() error { return nil }

type mockResolver struct {
	priceFn func(ctx context.Context, asset common.Address) (*big.Int, error)
}

func (m *mockResolver) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	return m.priceFn(ctx, asset)
}

func (m *mockResolver) UnderlyingPrice(context.Context, common.Address) (*big.Int, error) {
	return nil, errors.New("not used")
}

func (m *mockResolver) BaseCurrency() common.Address { return common.Address{} }

type mockConfigs struct {
	loadConfigFn func(ctx context.Context) (*entity.DeploymentConfig, error)
}

func (m *mockConfigs) LoadConfig(ctx context.Context) (*entity.DeploymentConfig, error) {
	return m.loadConfigFn(ctx)
}

func (m *mockConfigs) SaveSettings(context.Context, entity.RegistrySettings) error { return nil }
func (m *mockConfigs) SaveSourceBinding(context.Context, entity.SourceBinding) error {
	return nil
}
func (m *mockConfigs) DeleteSourceBinding(context.Context, common.Address) error { return nil }
func (m *mockConfigs) SaveFeedBinding(context.Context, entity.FeedBinding) error { return nil }
func (m *mockConfigs) LoadAssetReferences(context.Context) ([]entity.AssetReference, error) {
	return nil, nil
}

type mockSnapshots struct {
	saveFn       func(ctx context.Context, snapshots []*entity.PriceSnapshot) error
	latest       map[common.Address]*big.Int
	saveCalls    int
	lastSnapshot []*entity.PriceSnapshot
}

func (m *mockSnapshots) SaveSnapshots(ctx context.Context, snapshots []*entity.PriceSnapshot) error {
	m.saveCalls++
	m.lastSnapshot = snapshots
	if m.saveFn != nil {
		return m.saveFn(ctx, snapshots)
	}
	return nil
}

func (m *mockSnapshots) LatestPrices(context.Context) (map[common.Address]*big.Int, error) {
	return m.latest, nil
}

type mockArchive struct {
	archiveFn    func(ctx context.Context, blockNumber int64, snapshots []*entity.PriceSnapshot) (bool, error)
	archiveCalls int
	lastArchived []*entity.PriceSnapshot
}

func (m *mockArchive) ArchiveBlock(ctx context.Context, blockNumber int64, snapshots []*entity.PriceSnapshot) (bool, error) {
	m.archiveCalls++
	m.lastArchived = snapshots
	if m.archiveFn != nil {
		return m.archiveFn(ctx, blockNumber, snapshots)
	}
	return true, nil
}

type mockReferences struct {
	currentPricesFn func(ctx context.Context, assetIDs []string) ([]outbound.ReferencePrice, error)
	lastIDs         []string
}

func (m *mockReferences) Name() string { return "mock-references" }

func (m *mockReferences) CurrentPrices(ctx context.Context, assetIDs []string) ([]outbound.ReferencePrice, error) {
	m.lastIDs = assetIDs
	if m.currentPricesFn != nil {
		return m.currentPricesFn(ctx, assetIDs)
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func twoAssetConfig() *entity.DeploymentConfig {
	return &entity.DeploymentConfig{
		Bindings: []entity.SourceBinding{
			{Asset: wbtcAddr, Source: "chainlink"},
			{Asset: wethAddr, Source: "chainlink"},
		},
		References: []entity.AssetReference{
			{Asset: wbtcAddr, CoinGeckoID: "wrapped-bitcoin"},
		},
	}
}

func wad(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}

// startedService builds a service over the mocks and runs initialize.
func startedService(t *testing.T, deps Deps) *Service {
	t.Helper()
	svc, err := NewService(Config{}, deps)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return svc
}

func blockEventMessage(id string, blockNumber int64) outbound.BlockEventMessage {
	return outbound.BlockEventMessage{
		MessageID:     id,
		ReceiptHandle: "receipt-" + id,
		Event: outbound.BlockEvent{
			ChainID:        1,
			BlockNumber:    blockNumber,
			BlockHash:      "0xabc",
			BlockTimestamp: 1700000000,
		},
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewService_RequiresCollaborators(t *testing.T) {
	consumer := &mockConsumer{}
	resolver := &mockResolver{}
	configs := &mockConfigs{}
	snapshots := &mockSnapshots{}

	tests := []struct {
		name string
		deps Deps
	}{
		{"nil consumer", Deps{Resolver: resolver, Configs: configs, Snapshots: snapshots}},
		{"nil resolver", Deps{Consumer: consumer, Configs: configs, Snapshots: snapshots}},
		{"nil configs", Deps{Consumer: consumer, Resolver: resolver, Snapshots: snapshots}},
		{"nil snapshots", Deps{Consumer: consumer, Resolver: resolver, Configs: configs}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(Config{}, tt.deps); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestInitialize_RequiresRoutedAssets(t *testing.T) {
	svc, err := NewService(Config{}, Deps{
		Consumer:  &mockConsumer{},
		Resolver:  &mockResolver{},
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return &entity.DeploymentConfig{}, nil }},
		Snapshots: &mockSnapshots{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.initialize(context.Background()); err == nil {
		t.Error("expected error for empty binding set")
	}
}

func TestProcessBlock_StoresOnlyChangedPrices(t *testing.T) {
	snapshots := &mockSnapshots{
		latest: map[common.Address]*big.Int{
			wbtcAddr: wad(60000),
			wethAddr: wad(3000),
		},
	}
	resolver := &mockResolver{
		priceFn: func(_ context.Context, asset common.Address) (*big.Int, error) {
			if asset == wbtcAddr {
				return wad(61000), nil // changed
			}
			return wad(3000), nil // unchanged
		},
	}
	svc := startedService(t, Deps{
		Consumer:  &mockConsumer{},
		Resolver:  resolver,
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots: snapshots,
	})

	err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 100})
	if err != nil {
		t.Fatalf("processBlock: %v", err)
	}

	if snapshots.saveCalls != 1 {
		t.Fatalf("saveCalls = %d, want 1", snapshots.saveCalls)
	}
	if len(snapshots.lastSnapshot) != 1 {
		t.Fatalf("stored %d snapshots, want 1", len(snapshots.lastSnapshot))
	}
	stored := snapshots.lastSnapshot[0]
	if stored.Asset != wbtcAddr {
		t.Errorf("stored asset = %s, want %s", stored.Asset.Hex(), wbtcAddr.Hex())
	}
	if stored.Price.Cmp(wad(61000)) != 0 {
		t.Errorf("stored price = %s, want %s", stored.Price, wad(61000))
	}
	if stored.BlockNumber != 100 {
		t.Errorf("stored block = %d, want 100", stored.BlockNumber)
	}
}

func TestProcessBlock_SecondBlockWithSamePricesStoresNothing(t *testing.T) {
	snapshots := &mockSnapshots{}
	resolver := &mockResolver{
		priceFn: func(context.Context, common.Address) (*big.Int, error) {
			return wad(3000), nil
		},
	}
	svc := startedService(t, Deps{
		Consumer:  &mockConsumer{},
		Resolver:  resolver,
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots: snapshots,
	})

	if err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 100}); err != nil {
		t.Fatalf("first block: %v", err)
	}
	if err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 101}); err != nil {
		t.Fatalf("second block: %v", err)
	}

	if snapshots.saveCalls != 1 {
		t.Errorf("saveCalls = %d, want 1 (second block unchanged)", snapshots.saveCalls)
	}
}

func TestRestart_SeedsChangeDetectionFromStore(t *testing.T) {
	store := memory.NewSnapshotStore()
	resolver := &mockResolver{
		priceFn: func(_ context.Context, asset common.Address) (*big.Int, error) {
			if asset == wbtcAddr {
				return wad(61000), nil
			}
			return wad(3000), nil
		},
	}
	deps := Deps{
		Consumer:  &mockConsumer{},
		Resolver:  resolver,
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots: store,
	}

	svc := startedService(t, deps)
	if err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 100}); err != nil {
		t.Fatalf("processBlock: %v", err)
	}
	if got := len(store.Snapshots()); got != 2 {
		t.Fatalf("stored %d snapshots on a cold start, want 2", got)
	}

	// A fresh worker over the same store must not re-store unchanged prices.
	restarted := startedService(t, deps)
	if err := restarted.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 101}); err != nil {
		t.Fatalf("processBlock after restart: %v", err)
	}
	if got := len(store.Snapshots()); got != 2 {
		t.Errorf("stored %d snapshots after restart, want 2 (prices unchanged)", got)
	}
}

func TestProcessBlock_SkipsFailedResolutions(t *testing.T) {
	snapshots := &mockSnapshots{}
	resolver := &mockResolver{
		priceFn: func(_ context.Context, asset common.Address) (*big.Int, error) {
			if asset == wbtcAddr {
				return nil, entity.ErrStalePrice
			}
			return wad(3000), nil
		},
	}
	svc := startedService(t, Deps{
		Consumer:  &mockConsumer{},
		Resolver:  resolver,
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots: snapshots,
	})

	if err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 100}); err != nil {
		t.Fatalf("processBlock: %v", err)
	}

	if len(snapshots.lastSnapshot) != 1 {
		t.Fatalf("stored %d snapshots, want 1", len(snapshots.lastSnapshot))
	}
	if snapshots.lastSnapshot[0].Asset != wethAddr {
		t.Errorf("stored asset = %s, want the resolvable one", snapshots.lastSnapshot[0].Asset.Hex())
	}
}

func TestProcessBlock_ArchivesFullResolvedSet(t *testing.T) {
	archive := &mockArchive{}
	snapshots := &mockSnapshots{
		latest: map[common.Address]*big.Int{wethAddr: wad(3000)},
	}
	resolver := &mockResolver{
		priceFn: func(_ context.Context, asset common.Address) (*big.Int, error) {
			if asset == wbtcAddr {
				return wad(61000), nil
			}
			return wad(3000), nil
		},
	}
	svc := startedService(t, Deps{
		Consumer:  &mockConsumer{},
		Resolver:  resolver,
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots: snapshots,
		Archive:   archive,
	})

	if err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 100}); err != nil {
		t.Fatalf("processBlock: %v", err)
	}

	// The archive gets every resolved price, not just the changed ones.
	if archive.archiveCalls != 1 {
		t.Fatalf("archiveCalls = %d, want 1", archive.archiveCalls)
	}
	if len(archive.lastArchived) != 2 {
		t.Errorf("archived %d snapshots, want 2", len(archive.lastArchived))
	}
	if len(snapshots.lastSnapshot) != 1 {
		t.Errorf("stored %d snapshots, want 1", len(snapshots.lastSnapshot))
	}
}

func TestProcessBlock_CrossChecksChangedAssets(t *testing.T) {
	refs := &mockReferences{
		currentPricesFn: func(_ context.Context, ids []string) ([]outbound.ReferencePrice, error) {
			return []outbound.ReferencePrice{{AssetID: "wrapped-bitcoin", PriceUSD: 61000}}, nil
		},
	}
	resolver := &mockResolver{
		priceFn: func(context.Context, common.Address) (*big.Int, error) {
			return wad(61000), nil
		},
	}
	svc := startedService(t, Deps{
		Consumer:   &mockConsumer{},
		Resolver:   resolver,
		Configs:    &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots:  &mockSnapshots{},
		References: refs,
	})

	if err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 100}); err != nil {
		t.Fatalf("processBlock: %v", err)
	}

	// Only WBTC has a reference ID configured.
	if len(refs.lastIDs) != 1 || refs.lastIDs[0] != "wrapped-bitcoin" {
		t.Errorf("cross-checked ids = %v, want [wrapped-bitcoin]", refs.lastIDs)
	}
}

func TestProcessBlock_ReferenceFailureIsNotFatal(t *testing.T) {
	refs := &mockReferences{
		currentPricesFn: func(context.Context, []string) ([]outbound.ReferencePrice, error) {
			return nil, errors.New("rate limited")
		},
	}
	resolver := &mockResolver{
		priceFn: func(context.Context, common.Address) (*big.Int, error) {
			return wad(61000), nil
		},
	}
	svc := startedService(t, Deps{
		Consumer:   &mockConsumer{},
		Resolver:   resolver,
		Configs:    &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots:  &mockSnapshots{},
		References: refs,
	})

	if err := svc.processBlock(context.Background(), outbound.BlockEvent{BlockNumber: 100}); err != nil {
		t.Errorf("processBlock: %v", err)
	}
}

func TestProcessMessages_DeletesProcessedMessages(t *testing.T) {
	consumer := &mockConsumer{}
	consumer.receiveEventsFn = func(context.Context, int) ([]outbound.BlockEventMessage, error) {
		return []outbound.BlockEventMessage{blockEventMessage("m1", 100)}, nil
	}
	resolver := &mockResolver{
		priceFn: func(context.Context, common.Address) (*big.Int, error) {
			return wad(1), nil
		},
	}
	svc := startedService(t, Deps{
		Consumer:  consumer,
		Resolver:  resolver,
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots: &mockSnapshots{},
	})

	if err := svc.processMessages(context.Background()); err != nil {
		t.Fatalf("processMessages: %v", err)
	}
	if consumer.deleteMessageCalls != 1 {
		t.Errorf("deleteMessageCalls = %d, want 1", consumer.deleteMessageCalls)
	}
}

func TestProcessMessages_KeepsFailedMessages(t *testing.T) {
	consumer := &mockConsumer{}
	consumer.receiveEventsFn = func(context.Context, int) ([]outbound.BlockEventMessage, error) {
		return []outbound.BlockEventMessage{blockEventMessage("m1", 100)}, nil
	}
	resolver := &mockResolver{
		priceFn: func(context.Context, common.Address) (*big.Int, error) {
			return wad(1), nil
		},
	}
	snapshots := &mockSnapshots{
		saveFn: func(context.Context, []*entity.PriceSnapshot) error {
			return errors.New("db unavailable")
		},
	}
	svc := startedService(t, Deps{
		Consumer:  consumer,
		Resolver:  resolver,
		Configs:   &mockConfigs{loadConfigFn: func(context.Context) (*entity.DeploymentConfig, error) { return twoAssetConfig(), nil }},
		Snapshots: snapshots,
	})

	if err := svc.processMessages(context.Background()); err == nil {
		t.Fatal("expected error when storing fails")
	}
	if consumer.deleteMessageCalls != 0 {
		t.Errorf("deleteMessageCalls = %d, want 0 (message should be retried)", consumer.deleteMessageCalls)
	}
}

