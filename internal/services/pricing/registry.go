// Package pricing implements price resolution for the protocol: a routing
// registry in front of pluggable price sources, and a feed-backed source
// reading Chainlink-compatible aggregators. All prices are 1e18-scaled and
// denominated in the registry's base currency.
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
	"github.com/citrus-finance/citrus-oracle/internal/ports/inbound"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time checks that Registry implements the resolver and service ports
var (
	_ outbound.Resolver    = (*Registry)(nil)
	_ inbound.PriceService = (*Registry)(nil)
)

// Registry routes price queries to configured sources. Routing is decided by
// configuration presence alone: once a source is chosen, its failure is the
// caller's failure. There is no fallback-on-error and no retry.
type Registry struct {
	baseCurrency common.Address

	mu        sync.RWMutex
	sources   map[common.Address]outbound.PriceSource
	def       outbound.PriceSource
	callFirst bool
	admin     common.Address
	guardian  common.Address

	metadata outbound.TokenMetadata
	events   outbound.EventSink
	store    outbound.ConfigStore
	logger   *slog.Logger
}

// RegistryConfig holds construction parameters for a Registry.
type RegistryConfig struct {
	// BaseCurrency is the asset all prices are denominated in. It always
	// resolves to exactly 1e18.
	BaseCurrency common.Address

	// Admin is the principal allowed to change configuration.
	Admin common.Address

	// Guardian may additionally clear per-asset routes (circuit breaker).
	// Optional.
	Guardian common.Address

	// DefaultSource answers queries for assets without an explicit route.
	// Optional; must denominate in BaseCurrency.
	DefaultSource outbound.PriceSource

	// DefaultCallFirst makes the default source take precedence over
	// explicit per-asset routes.
	DefaultCallFirst bool

	Logger *slog.Logger
}

// NewRegistry creates a registry. The optional collaborators may be nil:
// metadata is needed only for UnderlyingPrice, events only when audit is
// wired, store only when configuration should survive restarts.
func NewRegistry(cfg RegistryConfig, metadata outbound.TokenMetadata, events outbound.EventSink, store outbound.ConfigStore) (*Registry, error) {
	if cfg.BaseCurrency == (common.Address{}) {
		return nil, fmt.Errorf("%w: base currency must not be zero", entity.ErrInvalidArgument)
	}
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("%w: admin must not be zero", entity.ErrInvalidArgument)
	}
	if cfg.DefaultSource != nil && cfg.DefaultSource.BaseCurrency() != cfg.BaseCurrency {
		return nil, fmt.Errorf("%w: default source denominates in %s, registry in %s",
			entity.ErrInvalidArgument, cfg.DefaultSource.BaseCurrency().Hex(), cfg.BaseCurrency.Hex())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Registry{
		baseCurrency: cfg.BaseCurrency,
		sources:      make(map[common.Address]outbound.PriceSource),
		def:          cfg.DefaultSource,
		callFirst:    cfg.DefaultCallFirst,
		admin:        cfg.Admin,
		guardian:     cfg.Guardian,
		metadata:     metadata,
		events:       events,
		store:        store,
		logger:       cfg.Logger.With("component", "price-registry"),
	}, nil
}

// BaseCurrency returns the asset prices are denominated in.
func (r *Registry) BaseCurrency() common.Address {
	return r.baseCurrency
}

// Price resolves the 1e18-scaled price of an asset. The base currency is
// always worth exactly 1e18. Otherwise the call-first default, the explicit
// per-asset route and the default source are consulted in that order, and the
// first configured one decides the outcome.
func (r *Registry) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	if asset == r.baseCurrency {
		return wad.One(), nil
	}

	r.mu.RLock()
	explicit := r.sources[asset]
	def, callFirst := r.def, r.callFirst
	r.mu.RUnlock()

	// The chosen source may re-enter Price through the resolver argument
	// (quote currency rebasing), so the lock is already released here.
	var src outbound.PriceSource
	switch {
	case callFirst && def != nil:
		src = def
	case explicit != nil:
		src = explicit
	case def != nil:
		src = def
	default:
		return nil, fmt.Errorf("%w: no price source for asset %s", entity.ErrNotFound, asset.Hex())
	}

	price, err := src.Price(ctx, r, asset)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", asset.Hex(), err)
	}

	r.logger.Debug("price resolved", "asset", asset.Hex(), "source", sourceName(src))
	return price, nil
}

// UnderlyingPrice resolves the price of a market's underlying asset, rescaled
// so that multiplying by a raw token amount yields a 1e18-scaled value: the
// 18-decimal price is scaled up by 10^(18-decimals), or truncating-divided by
// 10^(decimals-18) for assets with more than 18 decimals.
func (r *Registry) UnderlyingPrice(ctx context.Context, market common.Address) (*big.Int, error) {
	if r.metadata == nil {
		return nil, fmt.Errorf("token metadata is not configured")
	}

	underlying, err := r.metadata.Underlying(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("resolving underlying of market %s: %w", market.Hex(), err)
	}

	price, err := r.Price(ctx, underlying)
	if err != nil {
		return nil, err
	}

	decimals, err := r.metadata.Decimals(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("reading decimals of %s: %w", underlying.Hex(), err)
	}

	return wad.FromDecimals(price, decimals), nil
}

// SetSources routes each asset to the corresponding source. Admin only.
// Entries are independent: a persistence failure aborts the remaining
// entries but keeps the ones already applied.
func (r *Registry) SetSources(ctx context.Context, caller common.Address, assets []common.Address, sources []outbound.PriceSource) error {
	if len(assets) == 0 || len(assets) != len(sources) {
		return fmt.Errorf("%w: got %d assets and %d sources", entity.ErrInvalidArgument, len(assets), len(sources))
	}
	for i, src := range sources {
		if src == nil {
			return fmt.Errorf("%w: nil source for asset %s", entity.ErrInvalidArgument, assets[i].Hex())
		}
	}

	r.mu.Lock()
	if caller != r.admin {
		r.mu.Unlock()
		return fmt.Errorf("%w: caller %s is not the admin", entity.ErrUnauthorized, caller.Hex())
	}

	var events []outbound.Event
	var applyErr error
	applied := 0
	for i, asset := range assets {
		old := r.sources[asset]
		if r.store != nil {
			binding := entity.SourceBinding{Asset: asset, Source: sourceName(sources[i])}
			if err := r.store.SaveSourceBinding(ctx, binding); err != nil {
				applyErr = fmt.Errorf("persisting route for %s: %w", asset.Hex(), err)
				break
			}
		}
		r.sources[asset] = sources[i]
		applied++
		events = append(events, outbound.SourceChange{
			Asset:     asset,
			OldSource: sourceName(old),
			NewSource: sourceName(sources[i]),
			ChangedAt: time.Now().UTC(),
		})
	}
	r.mu.Unlock()

	publishEvents(ctx, r.events, r.logger, events)
	if applyErr != nil {
		return applyErr
	}

	r.logger.Info("sources set", "caller", caller.Hex(), "count", applied)
	return nil
}

// ClearSources removes the routing entries for the given assets, sending them
// back to the default source (or to "no route"). Callable by the admin or the
// guardian, so a compromised feed can be cut off quickly.
func (r *Registry) ClearSources(ctx context.Context, caller common.Address, assets []common.Address) error {
	if len(assets) == 0 {
		return fmt.Errorf("%w: no assets given", entity.ErrInvalidArgument)
	}

	r.mu.Lock()
	if caller != r.admin && (r.guardian == (common.Address{}) || caller != r.guardian) {
		r.mu.Unlock()
		return fmt.Errorf("%w: caller %s is neither admin nor guardian", entity.ErrUnauthorized, caller.Hex())
	}

	var events []outbound.Event
	var applyErr error
	applied := 0
	for _, asset := range assets {
		old := r.sources[asset]
		if r.store != nil {
			if err := r.store.DeleteSourceBinding(ctx, asset); err != nil {
				applyErr = fmt.Errorf("deleting route for %s: %w", asset.Hex(), err)
				break
			}
		}
		delete(r.sources, asset)
		applied++
		events = append(events, outbound.SourceChange{
			Asset:     asset,
			OldSource: sourceName(old),
			ChangedAt: time.Now().UTC(),
		})
	}
	r.mu.Unlock()

	publishEvents(ctx, r.events, r.logger, events)
	if applyErr != nil {
		return applyErr
	}

	r.logger.Info("sources cleared", "caller", caller.Hex(), "count", applied)
	return nil
}

// SetDefaultSource replaces the fallback source and its call-first flag
// atomically. Admin only. A nil source clears the default; a non-nil source
// must denominate in the registry's base currency.
func (r *Registry) SetDefaultSource(ctx context.Context, caller common.Address, source outbound.PriceSource, callFirst bool) error {
	if source != nil && source.BaseCurrency() != r.baseCurrency {
		return fmt.Errorf("%w: default source denominates in %s, registry in %s",
			entity.ErrInvalidArgument, source.BaseCurrency().Hex(), r.baseCurrency.Hex())
	}

	r.mu.Lock()
	if caller != r.admin {
		r.mu.Unlock()
		return fmt.Errorf("%w: caller %s is not the admin", entity.ErrUnauthorized, caller.Hex())
	}

	oldDef, oldCallFirst := r.def, r.callFirst
	if r.store != nil {
		settings := r.settingsLocked()
		settings.DefaultSource = sourceName(source)
		settings.CallFirst = callFirst
		if err := r.store.SaveSettings(ctx, settings); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("persisting default source: %w", err)
		}
	}
	r.def = source
	r.callFirst = callFirst
	r.mu.Unlock()

	event := outbound.DefaultSourceChange{
		OldSource:    sourceName(oldDef),
		NewSource:    sourceName(source),
		OldCallFirst: oldCallFirst,
		NewCallFirst: callFirst,
		ChangedAt:    time.Now().UTC(),
	}
	publishEvents(ctx, r.events, r.logger, []outbound.Event{event})

	r.logger.Info("default source set",
		"caller", caller.Hex(), "source", sourceName(source), "callFirst", callFirst)
	return nil
}

// SetAdmin hands the admin role to a new principal. Admin only.
func (r *Registry) SetAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	if newAdmin == (common.Address{}) {
		return fmt.Errorf("%w: admin must not be zero", entity.ErrInvalidArgument)
	}
	return r.setRole(ctx, caller, "admin", newAdmin)
}

// SetGuardian hands the guardian role to a new principal. Admin only.
// The zero address disables the guardian.
func (r *Registry) SetGuardian(ctx context.Context, caller, newGuardian common.Address) error {
	return r.setRole(ctx, caller, "guardian", newGuardian)
}

func (r *Registry) setRole(ctx context.Context, caller common.Address, role string, holder common.Address) error {
	r.mu.Lock()
	if caller != r.admin {
		r.mu.Unlock()
		return fmt.Errorf("%w: caller %s is not the admin", entity.ErrUnauthorized, caller.Hex())
	}

	var old common.Address
	settings := r.settingsLocked()
	switch role {
	case "admin":
		old, settings.Admin = r.admin, holder
	case "guardian":
		old, settings.Guardian = r.guardian, holder
	}
	if r.store != nil {
		if err := r.store.SaveSettings(ctx, settings); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("persisting %s change: %w", role, err)
		}
	}
	switch role {
	case "admin":
		r.admin = holder
	case "guardian":
		r.guardian = holder
	}
	r.mu.Unlock()

	event := outbound.RoleChange{
		Role:      role,
		OldHolder: old,
		NewHolder: holder,
		ChangedAt: time.Now().UTC(),
	}
	publishEvents(ctx, r.events, r.logger, []outbound.Event{event})

	r.logger.Info("role changed", "role", role, "old", old.Hex(), "new", holder.Hex())
	return nil
}

// AsSource adapts the registry for registration inside another registry.
// The wrapper resolves against its own registry and ignores the outer
// resolving context: nested feeds must rebase against the registry that
// knows their quote currencies.
func (r *Registry) AsSource() outbound.PriceSource {
	return registrySource{r}
}

// seedSource installs a routing entry without authorization or persistence,
// used when loading already-persisted configuration.
func (r *Registry) seedSource(asset common.Address, src outbound.PriceSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[asset] = src
}

// settingsLocked renders the current control row. Callers hold mu.
func (r *Registry) settingsLocked() entity.RegistrySettings {
	return entity.RegistrySettings{
		BaseCurrency:  r.baseCurrency,
		Admin:         r.admin,
		Guardian:      r.guardian,
		DefaultSource: sourceName(r.def),
		CallFirst:     r.callFirst,
	}
}

var _ outbound.PriceSource = registrySource{}

type registrySource struct {
	r *Registry
}

func (s registrySource) Price(ctx context.Context, _ outbound.Resolver, asset common.Address) (*big.Int, error) {
	return s.r.Price(ctx, asset)
}

func (s registrySource) BaseCurrency() common.Address {
	return s.r.baseCurrency
}

func (s registrySource) String() string {
	return "registry:" + s.r.baseCurrency.Hex()
}

// sourceName renders a source for events and persistence. Sources that want a
// stable name implement fmt.Stringer; anything else falls back to its Go type.
func sourceName(s outbound.PriceSource) string {
	if s == nil {
		return ""
	}
	if str, ok := s.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T", s)
}

// publishEvents delivers change events to the sink. Audit is a collaborator,
// not a precondition: failures are logged and swallowed.
func publishEvents(ctx context.Context, sink outbound.EventSink, logger *slog.Logger, events []outbound.Event) {
	if sink == nil {
		return
	}
	for _, ev := range events {
		if err := sink.Publish(ctx, ev); err != nil {
			logger.Warn("failed to publish change event",
				"type", ev.EventType(), "subject", ev.Subject(), "error", err)
		}
	}
}
