package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/wad"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that ChainlinkSource implements outbound.PriceSource
var _ outbound.PriceSource = (*ChainlinkSource)(nil)

// ChainlinkSource prices assets from Chainlink-compatible aggregator feeds.
// Feeds may denominate their answers in any asset the resolving registry can
// price (ETH-quoted feeds on a USD registry, say): answers are rebased
// through the resolver at call time, never through a stored back-reference.
type ChainlinkSource struct {
	name         string
	baseCurrency common.Address

	mu     sync.RWMutex
	admin  common.Address
	feeds  map[common.Address]common.Address
	quotes map[common.Address]common.Address

	reader outbound.FeedReader
	events outbound.EventSink
	store  outbound.ConfigStore
	logger *slog.Logger
}

// ChainlinkConfig holds construction parameters for a ChainlinkSource.
type ChainlinkConfig struct {
	// Name identifies this source in events, persistence and admin calls.
	Name string

	// BaseCurrency is the asset this source's configuration is curated for,
	// checked when the source is installed as a registry default.
	BaseCurrency common.Address

	// Admin is the principal allowed to assign feeds.
	Admin common.Address

	Logger *slog.Logger
}

// NewChainlinkSource creates a feed-backed source. events and store may be
// nil; the feed reader is required.
func NewChainlinkSource(cfg ChainlinkConfig, reader outbound.FeedReader, events outbound.EventSink, store outbound.ConfigStore) (*ChainlinkSource, error) {
	if reader == nil {
		return nil, fmt.Errorf("feed reader cannot be nil")
	}
	if cfg.BaseCurrency == (common.Address{}) {
		return nil, fmt.Errorf("%w: base currency must not be zero", entity.ErrInvalidArgument)
	}
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("%w: admin must not be zero", entity.ErrInvalidArgument)
	}
	if cfg.Name == "" {
		cfg.Name = string(entity.SourceKindChainlink)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ChainlinkSource{
		name:         cfg.Name,
		baseCurrency: cfg.BaseCurrency,
		admin:        cfg.Admin,
		feeds:        make(map[common.Address]common.Address),
		quotes:       make(map[common.Address]common.Address),
		reader:       reader,
		events:       events,
		store:        store,
		logger:       cfg.Logger.With("component", "chainlink-source", "source", cfg.Name),
	}, nil
}

// String returns the configured source name.
func (s *ChainlinkSource) String() string {
	return s.name
}

// BaseCurrency returns the asset this source denominates prices in.
func (s *ChainlinkSource) BaseCurrency() common.Address {
	return s.baseCurrency
}

// SetFeeds assigns an aggregator feed to each asset. Admin only. All entries
// of one call share the quote currency. Entries are independent: a
// persistence failure aborts the remaining entries but keeps the ones
// already applied.
func (s *ChainlinkSource) SetFeeds(ctx context.Context, caller common.Address, assets, feeds []common.Address, quoteCurrency common.Address) error {
	if len(assets) == 0 || len(assets) != len(feeds) {
		return fmt.Errorf("%w: got %d assets and %d feeds", entity.ErrInvalidArgument, len(assets), len(feeds))
	}
	if quoteCurrency == (common.Address{}) {
		return fmt.Errorf("%w: quote currency must not be zero", entity.ErrInvalidArgument)
	}
	for i, feed := range feeds {
		if feed == (common.Address{}) {
			return fmt.Errorf("%w: zero feed for asset %s", entity.ErrInvalidArgument, assets[i].Hex())
		}
	}

	s.mu.Lock()
	if caller != s.admin {
		s.mu.Unlock()
		return fmt.Errorf("%w: caller %s is not the source admin", entity.ErrUnauthorized, caller.Hex())
	}

	var events []outbound.Event
	var applyErr error
	applied := 0
	for i, asset := range assets {
		old := s.feeds[asset]
		if s.store != nil {
			binding := entity.FeedBinding{
				Source:        s.name,
				Asset:         asset,
				Feed:          feeds[i],
				QuoteCurrency: quoteCurrency,
			}
			if err := s.store.SaveFeedBinding(ctx, binding); err != nil {
				applyErr = fmt.Errorf("persisting feed for %s: %w", asset.Hex(), err)
				break
			}
		}
		s.feeds[asset] = feeds[i]
		s.quotes[asset] = quoteCurrency
		applied++
		events = append(events, outbound.FeedChange{
			Source:        s.name,
			Asset:         asset,
			OldFeed:       old,
			NewFeed:       feeds[i],
			QuoteCurrency: quoteCurrency,
			ChangedAt:     time.Now().UTC(),
		})
	}
	s.mu.Unlock()

	publishEvents(ctx, s.events, s.logger, events)
	if applyErr != nil {
		return applyErr
	}

	s.logger.Info("feeds set",
		"caller", caller.Hex(), "count", applied, "quoteCurrency", quoteCurrency.Hex())
	return nil
}

// Price reads the asset's feed, validates the round, and rebases the answer
// into the resolver's base currency via the feed's quote currency. Validation
// failures are terminal: a rejected round never falls back to anything.
func (s *ChainlinkSource) Price(ctx context.Context, resolver outbound.Resolver, asset common.Address) (*big.Int, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver cannot be nil", entity.ErrInvalidArgument)
	}

	s.mu.RLock()
	feed, ok := s.feeds[asset]
	quote := s.quotes[asset]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no feed for asset %s", entity.ErrNotFound, asset.Hex())
	}

	round, err := s.reader.LatestRoundData(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading feed %s: %w", feed.Hex(), err)
	}
	if err := validateRound(round); err != nil {
		s.logger.Warn("feed round rejected",
			"asset", asset.Hex(), "feed", feed.Hex(), "error", err)
		return nil, fmt.Errorf("feed %s: %w", feed.Hex(), err)
	}

	quotePrice, err := resolver.Price(ctx, quote)
	if err != nil {
		return nil, fmt.Errorf("pricing quote currency %s: %w", quote.Hex(), err)
	}

	decimals, err := s.reader.Decimals(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading decimals of feed %s: %w", feed.Hex(), err)
	}

	normalized := wad.FromDecimals(round.Answer, decimals)
	return wad.Mul(normalized, quotePrice), nil
}

// validateRound rejects answers that cannot be trusted: stale carry-overs,
// unfinished rounds, and non-positive quotes.
func validateRound(round *outbound.RoundData) error {
	if round.AnsweredInRound.Cmp(round.RoundID) < 0 {
		return fmt.Errorf("%w: answered in round %s, reported round %s",
			entity.ErrStalePrice, round.AnsweredInRound, round.RoundID)
	}
	if round.UpdatedAt.Sign() == 0 {
		return entity.ErrIncompleteRound
	}
	if round.Answer.Sign() <= 0 {
		return fmt.Errorf("%w: answer %s", entity.ErrInvalidPrice, round.Answer)
	}
	return nil
}

// seedFeed installs a feed mapping without authorization or persistence,
// used when loading already-persisted configuration.
func (s *ChainlinkSource) seedFeed(asset, feed, quoteCurrency common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[asset] = feed
	s.quotes[asset] = quoteCurrency
}
