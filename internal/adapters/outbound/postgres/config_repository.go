package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that ConfigRepository implements outbound.ConfigStore
var _ outbound.ConfigStore = (*ConfigRepository)(nil)

// ConfigRepository persists the deployment configuration: the singleton
// control row, configured sources, per-asset routing, feed bindings and
// off-chain reference IDs.
type ConfigRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConfigRepository creates a new PostgreSQL configuration repository.
func NewConfigRepository(pool *pgxpool.Pool, logger *slog.Logger) (*ConfigRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigRepository{
		pool:   pool,
		logger: logger.With("component", "config-repository"),
	}, nil
}

// LoadConfig returns the full persisted configuration of the deployment.
func (r *ConfigRepository) LoadConfig(ctx context.Context) (*entity.DeploymentConfig, error) {
	cfg := &entity.DeploymentConfig{}

	var base, admin, guardian []byte
	var defaultSource *string
	err := r.pool.QueryRow(ctx, `
		SELECT base_currency, admin, guardian, default_source, call_first
		FROM registry_settings
		WHERE id = 1
	`).Scan(&base, &admin, &guardian, &defaultSource, &cfg.Settings.CallFirst)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("registry settings not found: run migrations and seed the control row")
	}
	if err != nil {
		return nil, fmt.Errorf("querying registry settings: %w", err)
	}
	cfg.Settings.BaseCurrency = common.BytesToAddress(base)
	cfg.Settings.Admin = common.BytesToAddress(admin)
	cfg.Settings.Guardian = common.BytesToAddress(guardian)
	if defaultSource != nil {
		cfg.Settings.DefaultSource = *defaultSource
	}

	if cfg.Sources, err = r.loadSources(ctx); err != nil {
		return nil, err
	}
	if cfg.Bindings, err = r.loadBindings(ctx); err != nil {
		return nil, err
	}
	if cfg.Feeds, err = r.loadFeeds(ctx); err != nil {
		return nil, err
	}
	if cfg.References, err = r.LoadAssetReferences(ctx); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (r *ConfigRepository) loadSources(ctx context.Context) ([]entity.SourceConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, kind, base_currency, admin
		FROM price_source
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []entity.SourceConfig
	for rows.Next() {
		var sc entity.SourceConfig
		var kind string
		var base, admin []byte
		if err := rows.Scan(&sc.Name, &kind, &base, &admin); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sc.Kind = entity.SourceKind(kind)
		sc.BaseCurrency = common.BytesToAddress(base)
		sc.Admin = common.BytesToAddress(admin)
		sources = append(sources, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

func (r *ConfigRepository) loadBindings(ctx context.Context) ([]entity.SourceBinding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT asset, source
		FROM source_binding
		ORDER BY asset
	`)
	if err != nil {
		return nil, fmt.Errorf("querying source bindings: %w", err)
	}
	defer rows.Close()

	var bindings []entity.SourceBinding
	for rows.Next() {
		var b entity.SourceBinding
		var asset []byte
		if err := rows.Scan(&asset, &b.Source); err != nil {
			return nil, fmt.Errorf("scanning source binding: %w", err)
		}
		b.Asset = common.BytesToAddress(asset)
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source bindings: %w", err)
	}
	return bindings, nil
}

func (r *ConfigRepository) loadFeeds(ctx context.Context) ([]entity.FeedBinding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source, asset, feed, quote_currency
		FROM feed_binding
		ORDER BY source, asset
	`)
	if err != nil {
		return nil, fmt.Errorf("querying feed bindings: %w", err)
	}
	defer rows.Close()

	var feeds []entity.FeedBinding
	for rows.Next() {
		var f entity.FeedBinding
		var asset, feed, quote []byte
		if err := rows.Scan(&f.Source, &asset, &feed, &quote); err != nil {
			return nil, fmt.Errorf("scanning feed binding: %w", err)
		}
		f.Asset = common.BytesToAddress(asset)
		f.Feed = common.BytesToAddress(feed)
		f.QuoteCurrency = common.BytesToAddress(quote)
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feed bindings: %w", err)
	}
	return feeds, nil
}

// SaveSettings replaces the singleton control row.
func (r *ConfigRepository) SaveSettings(ctx context.Context, settings entity.RegistrySettings) error {
	var defaultSource *string
	if settings.DefaultSource != "" {
		defaultSource = &settings.DefaultSource
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO registry_settings (id, base_currency, admin, guardian, default_source, call_first, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			base_currency = EXCLUDED.base_currency,
			admin = EXCLUDED.admin,
			guardian = EXCLUDED.guardian,
			default_source = EXCLUDED.default_source,
			call_first = EXCLUDED.call_first,
			updated_at = now()
	`, settings.BaseCurrency.Bytes(), settings.Admin.Bytes(), settings.Guardian.Bytes(),
		defaultSource, settings.CallFirst)
	if err != nil {
		return fmt.Errorf("saving registry settings: %w", err)
	}
	return nil
}

// SaveSourceBinding upserts one asset's routing entry.
func (r *ConfigRepository) SaveSourceBinding(ctx context.Context, binding entity.SourceBinding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO source_binding (asset, source, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (asset) DO UPDATE SET
			source = EXCLUDED.source,
			updated_at = now()
	`, binding.Asset.Bytes(), binding.Source)
	if err != nil {
		return fmt.Errorf("saving source binding for %s: %w", binding.Asset.Hex(), err)
	}
	return nil
}

// DeleteSourceBinding removes one asset's routing entry.
func (r *ConfigRepository) DeleteSourceBinding(ctx context.Context, asset common.Address) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM source_binding WHERE asset = $1
	`, asset.Bytes())
	if err != nil {
		return fmt.Errorf("deleting source binding for %s: %w", asset.Hex(), err)
	}
	return nil
}

// SaveFeedBinding upserts one asset's feed entry for a named source.
func (r *ConfigRepository) SaveFeedBinding(ctx context.Context, binding entity.FeedBinding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feed_binding (source, asset, feed, quote_currency, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (source, asset) DO UPDATE SET
			feed = EXCLUDED.feed,
			quote_currency = EXCLUDED.quote_currency,
			updated_at = now()
	`, binding.Source, binding.Asset.Bytes(), binding.Feed.Bytes(), binding.QuoteCurrency.Bytes())
	if err != nil {
		return fmt.Errorf("saving feed binding for %s: %w", binding.Asset.Hex(), err)
	}
	return nil
}

// LoadAssetReferences returns the off-chain reference IDs used for price
// cross-checks.
func (r *ConfigRepository) LoadAssetReferences(ctx context.Context) ([]entity.AssetReference, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT asset, coingecko_id
		FROM asset_reference
		ORDER BY asset
	`)
	if err != nil {
		return nil, fmt.Errorf("querying asset references: %w", err)
	}
	defer rows.Close()

	var refs []entity.AssetReference
	for rows.Next() {
		var ref entity.AssetReference
		var asset []byte
		if err := rows.Scan(&asset, &ref.CoinGeckoID); err != nil {
			return nil, fmt.Errorf("scanning asset reference: %w", err)
		}
		ref.Asset = common.BytesToAddress(asset)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating asset references: %w", err)
	}
	return refs, nil
}

// SaveSource upserts a configured source instance. Used by seeding tools,
// not by the runtime mutators.
func (r *ConfigRepository) SaveSource(ctx context.Context, source entity.SourceConfig) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO price_source (name, kind, base_currency, admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			base_currency = EXCLUDED.base_currency,
			admin = EXCLUDED.admin
	`, source.Name, source.Kind.String(), source.BaseCurrency.Bytes(), source.Admin.Bytes())
	if err != nil {
		return fmt.Errorf("saving source %s: %w", source.Name, err)
	}
	return nil
}

// SaveAssetReference upserts one asset's off-chain reference ID.
func (r *ConfigRepository) SaveAssetReference(ctx context.Context, ref entity.AssetReference) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO asset_reference (asset, coingecko_id)
		VALUES ($1, $2)
		ON CONFLICT (asset) DO UPDATE SET coingecko_id = EXCLUDED.coingecko_id
	`, ref.Asset.Bytes(), ref.CoinGeckoID)
	if err != nil {
		return fmt.Errorf("saving asset reference for %s: %w", ref.Asset.Hex(), err)
	}
	return nil
}
