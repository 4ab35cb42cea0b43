// Package snapshot_worker provides an SQS consumer that resolves registry
// prices for each new block and stores the changed ones in the database.
// The set of tracked assets is loaded from the config store — no hardcoded
// asset configuration.
package snapshot_worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/inbound"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Config holds configuration for the snapshot worker.
type Config struct {
	MaxMessages  int
	PollInterval time.Duration

	// DeviationThreshold is the relative deviation against the off-chain
	// reference price above which a warning is logged. 0.05 means 5%.
	DeviationThreshold float64

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		MaxMessages:        10,
		PollInterval:       100 * time.Millisecond,
		DeviationThreshold: 0.05,
		Logger:             slog.Default(),
	}
}

// Deps bundles the collaborators the worker is wired with.
// Archive and References are optional.
type Deps struct {
	// Consumer delivers decoded block events.
	Consumer outbound.BlockEventConsumer

	// Resolver answers price queries; normally the assembled registry.
	Resolver inbound.PriceService

	// Configs names the assets to track (the registry's source bindings)
	// and their off-chain reference IDs.
	Configs outbound.ConfigStore

	// Snapshots persists per-block price changes.
	Snapshots outbound.SnapshotStore

	// Archive receives the full per-block snapshot. Optional.
	Archive outbound.SnapshotArchive

	// References provides off-chain quotes for the cross-check. Only
	// meaningful for deployments whose base currency tracks the reference
	// provider's quote unit; others configure no asset references. Optional.
	References outbound.ReferencePriceProvider
}

// Service processes SQS block events and snapshots registry prices for each
// block.
type Service struct {
	config Config
	deps   Deps

	assets     []common.Address
	refIDs     map[common.Address]string
	priceCache map[common.Address]*big.Int

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewService creates a new snapshot worker service.
func NewService(config Config, deps Deps) (*Service, error) {
	if deps.Consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if deps.Configs == nil {
		return nil, fmt.Errorf("config store cannot be nil")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}

	defaults := configDefaults()
	if config.MaxMessages == 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.DeviationThreshold == 0 {
		config.DeviationThreshold = defaults.DeviationThreshold
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config: config,
		deps:   deps,
		logger: config.Logger.With("component", "snapshot-worker"),
	}, nil
}

// Start initializes the service and begins processing SQS messages.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.initialize(s.ctx); err != nil {
		return fmt.Errorf("initializing: %w", err)
	}

	go s.processLoop()

	s.logger.Info("snapshot worker started", "assets", len(s.assets))
	return nil
}

// Stop stops the service.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("snapshot worker stopped")
	return nil
}

// initialize loads the tracked asset set from the registry configuration and
// seeds the change-detection cache from the last stored prices.
func (s *Service) initialize(ctx context.Context) error {
	cfg, err := s.deps.Configs.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading registry configuration: %w", err)
	}

	seen := make(map[common.Address]bool)
	for _, binding := range cfg.Bindings {
		if seen[binding.Asset] {
			continue
		}
		seen[binding.Asset] = true
		s.assets = append(s.assets, binding.Asset)
	}
	if len(s.assets) == 0 {
		return fmt.Errorf("no routed assets to track")
	}

	s.refIDs = make(map[common.Address]string, len(cfg.References))
	for _, ref := range cfg.References {
		s.refIDs[ref.Asset] = ref.CoinGeckoID
	}

	cached, err := s.deps.Snapshots.LatestPrices(ctx)
	if err != nil {
		return fmt.Errorf("loading latest prices: %w", err)
	}
	s.priceCache = cached
	if s.priceCache == nil {
		s.priceCache = make(map[common.Address]*big.Int)
	}

	s.logger.Info("initialized",
		"assets", len(s.assets),
		"references", len(s.refIDs),
		"cachedPrices", len(cached))
	return nil
}

func (s *Service) processLoop() {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.processMessages(s.ctx); err != nil {
				s.logger.Error("error processing messages", "error", err)
			}
		}
	}
}

func (s *Service) processMessages(ctx context.Context) error {
	messages, err := s.deps.Consumer.ReceiveBlockEvents(ctx, s.config.MaxMessages)
	if err != nil {
		return fmt.Errorf("receiving block events: %w", err)
	}

	if len(messages) == 0 {
		return nil
	}

	s.logger.Debug("received block events", "count", len(messages))

	var errs []error
	for _, msg := range messages {
		if err := s.processBlock(ctx, msg.Event); err != nil {
			s.logger.Error("failed to process block",
				"block", msg.Event.BlockNumber, "error", err)
			errs = append(errs, err)
			continue
		}

		if deleteErr := s.deps.Consumer.DeleteMessage(ctx, msg.ReceiptHandle); deleteErr != nil {
			s.logger.Error("failed to delete message", "error", deleteErr)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Service) processBlock(ctx context.Context, event outbound.BlockEvent) error {
	resolved := s.resolveAll(ctx, event)
	if len(resolved) == 0 {
		s.logger.Warn("no asset resolved", "block", event.BlockNumber)
		return nil
	}

	changed := s.detectChanges(resolved)
	if len(changed) > 0 {
		if err := s.deps.Snapshots.SaveSnapshots(ctx, changed); err != nil {
			return fmt.Errorf("storing snapshots at block %d: %w", event.BlockNumber, err)
		}
		for _, snap := range changed {
			s.priceCache[snap.Asset] = snap.Price
		}
		s.logger.Info("stored snapshots",
			"block", event.BlockNumber,
			"changed", len(changed),
			"resolved", len(resolved))
	} else {
		s.logger.Debug("no price changes", "block", event.BlockNumber)
	}

	if s.deps.Archive != nil {
		written, err := s.deps.Archive.ArchiveBlock(ctx, event.BlockNumber, resolved)
		if err != nil {
			return fmt.Errorf("archiving block %d: %w", event.BlockNumber, err)
		}
		if !written {
			s.logger.Debug("block already archived", "block", event.BlockNumber)
		}
	}

	s.crossCheck(ctx, event.BlockNumber, changed)
	return nil
}

// resolveAll resolves every tracked asset through the registry. A failing
// asset never aborts the rest of the block.
func (s *Service) resolveAll(ctx context.Context, event outbound.BlockEvent) []*entity.PriceSnapshot {
	resolvedAt := time.Now().UTC()

	resolved := make([]*entity.PriceSnapshot, 0, len(s.assets))
	for _, asset := range s.assets {
		price, err := s.deps.Resolver.Price(ctx, asset)
		if err != nil {
			s.logger.Warn("failed to resolve asset",
				"asset", asset.Hex(),
				"block", event.BlockNumber,
				"error", err)
			continue
		}

		snap, err := entity.NewPriceSnapshot(asset, event.BlockNumber, price, resolvedAt)
		if err != nil {
			s.logger.Error("invalid snapshot", "asset", asset.Hex(), "error", err)
			continue
		}
		resolved = append(resolved, snap)
	}
	return resolved
}

func (s *Service) detectChanges(resolved []*entity.PriceSnapshot) []*entity.PriceSnapshot {
	var changed []*entity.PriceSnapshot
	for _, snap := range resolved {
		if cached, ok := s.priceCache[snap.Asset]; ok && cached.Cmp(snap.Price) == 0 {
			continue
		}
		changed = append(changed, snap)
	}
	return changed
}

// crossCheck compares changed prices against the off-chain reference
// provider. Deviations only warn: the registry's resolution is authoritative
// and the reference exists to catch misconfigured feeds.
func (s *Service) crossCheck(ctx context.Context, blockNumber int64, changed []*entity.PriceSnapshot) {
	if s.deps.References == nil || len(changed) == 0 {
		return
	}

	byRefID := make(map[string]*entity.PriceSnapshot)
	var ids []string
	for _, snap := range changed {
		id, ok := s.refIDs[snap.Asset]
		if !ok {
			continue
		}
		byRefID[id] = snap
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}

	quotes, err := s.deps.References.CurrentPrices(ctx, ids)
	if err != nil {
		s.logger.Warn("reference price fetch failed",
			"provider", s.deps.References.Name(), "error", err)
		return
	}

	for _, quote := range quotes {
		snap, ok := byRefID[quote.AssetID]
		if !ok || quote.PriceUSD <= 0 {
			continue
		}

		resolved, _ := new(big.Float).Quo(
			new(big.Float).SetInt(snap.Price),
			big.NewFloat(1e18),
		).Float64()
		deviation := math.Abs(resolved-quote.PriceUSD) / quote.PriceUSD

		if deviation > s.config.DeviationThreshold {
			s.logger.Warn("resolved price deviates from reference",
				"asset", snap.Asset.Hex(),
				"block", blockNumber,
				"resolved", resolved,
				"reference", quote.PriceUSD,
				"provider", s.deps.References.Name(),
				"deviation", deviation)
		}
	}
}
