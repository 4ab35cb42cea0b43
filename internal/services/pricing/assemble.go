package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/inbound"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that Deployment implements inbound.AdminService
var _ inbound.AdminService = (*Deployment)(nil)

// Deployment is a fully assembled pricing system: the registry plus its
// named sources. It exposes the admin use cases with sources addressed by
// name, as inbound adapters see them.
type Deployment struct {
	Registry *Registry

	sources     map[string]outbound.PriceSource
	feedSources map[string]*ChainlinkSource
}

// AssembleDeps bundles the collaborators a deployment is wired with.
// Events and Metadata may be nil.
type AssembleDeps struct {
	Store    outbound.ConfigStore
	Reader   outbound.FeedReader
	Metadata outbound.TokenMetadata
	Events   outbound.EventSink
	Logger   *slog.Logger
}

// Assemble loads the persisted configuration and wires a deployment from it.
// Mutations on the result write back through the store.
func Assemble(ctx context.Context, deps AssembleDeps) (*Deployment, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("config store cannot be nil")
	}

	cfg, err := deps.Store.LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	return assembleFromConfig(cfg, deps)
}

func assembleFromConfig(cfg *entity.DeploymentConfig, deps AssembleDeps) (*Deployment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	sources := make(map[string]outbound.PriceSource, len(cfg.Sources))
	feedSources := make(map[string]*ChainlinkSource, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		switch sc.Kind {
		case entity.SourceKindChainlink:
			src, err := NewChainlinkSource(ChainlinkConfig{
				Name:         sc.Name,
				BaseCurrency: sc.BaseCurrency,
				Admin:        sc.Admin,
				Logger:       deps.Logger,
			}, deps.Reader, deps.Events, deps.Store)
			if err != nil {
				return nil, fmt.Errorf("building source %s: %w", sc.Name, err)
			}
			sources[sc.Name] = src
			feedSources[sc.Name] = src
		default:
			return nil, fmt.Errorf("%w: source kind %q", entity.ErrInvalidArgument, sc.Kind)
		}
	}

	for _, fb := range cfg.Feeds {
		feedSources[fb.Source].seedFeed(fb.Asset, fb.Feed, fb.QuoteCurrency)
	}

	var def outbound.PriceSource
	if cfg.Settings.DefaultSource != "" {
		def = sources[cfg.Settings.DefaultSource]
	}

	registry, err := NewRegistry(RegistryConfig{
		BaseCurrency:     cfg.Settings.BaseCurrency,
		Admin:            cfg.Settings.Admin,
		Guardian:         cfg.Settings.Guardian,
		DefaultSource:    def,
		DefaultCallFirst: cfg.Settings.CallFirst,
		Logger:           deps.Logger,
	}, deps.Metadata, deps.Events, deps.Store)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	for _, b := range cfg.Bindings {
		registry.seedSource(b.Asset, sources[b.Source])
	}

	deps.Logger.Info("pricing deployment assembled",
		"sources", len(sources),
		"routes", len(cfg.Bindings),
		"feeds", len(cfg.Feeds),
		"defaultSource", cfg.Settings.DefaultSource,
		"callFirst", cfg.Settings.CallFirst)

	return &Deployment{
		Registry:    registry,
		sources:     sources,
		feedSources: feedSources,
	}, nil
}

// Source returns the named source, or nil.
func (d *Deployment) Source(name string) outbound.PriceSource {
	return d.sources[name]
}

// SetSources implements inbound.AdminService by resolving source names to
// instances before delegating to the registry.
func (d *Deployment) SetSources(ctx context.Context, caller common.Address, assets []common.Address, sourceNames []string) error {
	if len(sourceNames) != len(assets) {
		return fmt.Errorf("%w: got %d assets and %d source names",
			entity.ErrInvalidArgument, len(assets), len(sourceNames))
	}
	sources := make([]outbound.PriceSource, len(sourceNames))
	for i, name := range sourceNames {
		src, ok := d.sources[name]
		if !ok {
			return fmt.Errorf("%w: unknown source %q", entity.ErrInvalidArgument, name)
		}
		sources[i] = src
	}
	return d.Registry.SetSources(ctx, caller, assets, sources)
}

// ClearSources implements inbound.AdminService.
func (d *Deployment) ClearSources(ctx context.Context, caller common.Address, assets []common.Address) error {
	return d.Registry.ClearSources(ctx, caller, assets)
}

// SetDefaultSource implements inbound.AdminService. An empty name clears the
// default.
func (d *Deployment) SetDefaultSource(ctx context.Context, caller common.Address, sourceName string, callFirst bool) error {
	var src outbound.PriceSource
	if sourceName != "" {
		named, ok := d.sources[sourceName]
		if !ok {
			return fmt.Errorf("%w: unknown source %q", entity.ErrInvalidArgument, sourceName)
		}
		src = named
	}
	return d.Registry.SetDefaultSource(ctx, caller, src, callFirst)
}

// SetFeeds implements inbound.AdminService for feed-backed sources.
func (d *Deployment) SetFeeds(ctx context.Context, caller common.Address, sourceName string, assets, feeds []common.Address, quoteCurrency common.Address) error {
	src, ok := d.feedSources[sourceName]
	if !ok {
		return fmt.Errorf("%w: %q is not a feed-backed source", entity.ErrInvalidArgument, sourceName)
	}
	return src.SetFeeds(ctx, caller, assets, feeds, quoteCurrency)
}

// SetAdmin implements inbound.AdminService.
func (d *Deployment) SetAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	return d.Registry.SetAdmin(ctx, caller, newAdmin)
}

// SetGuardian implements inbound.AdminService.
func (d *Deployment) SetGuardian(ctx context.Context, caller, newGuardian common.Address) error {
	return d.Registry.SetGuardian(ctx, caller, newGuardian)
}
