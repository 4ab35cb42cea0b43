// Package memory provides in-memory implementations of the outbound ports,
// used in tests and local runs without external infrastructure.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that ConfigStore implements outbound.ConfigStore
var _ outbound.ConfigStore = (*ConfigStore)(nil)

// ConfigStore keeps the deployment configuration in memory.
type ConfigStore struct {
	mu         sync.Mutex
	settings   entity.RegistrySettings
	sources    []entity.SourceConfig
	bindings   map[common.Address]entity.SourceBinding
	feeds      map[feedKey]entity.FeedBinding
	references []entity.AssetReference
}

type feedKey struct {
	source string
	asset  common.Address
}

// NewConfigStore creates a store seeded with the given configuration.
func NewConfigStore(cfg entity.DeploymentConfig) *ConfigStore {
	s := &ConfigStore{
		settings:   cfg.Settings,
		sources:    append([]entity.SourceConfig(nil), cfg.Sources...),
		bindings:   make(map[common.Address]entity.SourceBinding),
		feeds:      make(map[feedKey]entity.FeedBinding),
		references: append([]entity.AssetReference(nil), cfg.References...),
	}
	for _, b := range cfg.Bindings {
		s.bindings[b.Asset] = b
	}
	for _, f := range cfg.Feeds {
		s.feeds[feedKey{f.Source, f.Asset}] = f
	}
	return s
}

func (s *ConfigStore) LoadConfig(_ context.Context) (*entity.DeploymentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := &entity.DeploymentConfig{
		Settings:   s.settings,
		Sources:    append([]entity.SourceConfig(nil), s.sources...),
		References: append([]entity.AssetReference(nil), s.references...),
	}
	for _, b := range s.bindings {
		cfg.Bindings = append(cfg.Bindings, b)
	}
	for _, f := range s.feeds {
		cfg.Feeds = append(cfg.Feeds, f)
	}
	return cfg, nil
}

func (s *ConfigStore) SaveSettings(_ context.Context, settings entity.RegistrySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *ConfigStore) SaveSourceBinding(_ context.Context, binding entity.SourceBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[binding.Asset] = binding
	return nil
}

func (s *ConfigStore) DeleteSourceBinding(_ context.Context, asset common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, asset)
	return nil
}

func (s *ConfigStore) SaveFeedBinding(_ context.Context, binding entity.FeedBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[feedKey{binding.Source, binding.Asset}] = binding
	return nil
}

func (s *ConfigStore) LoadAssetReferences(_ context.Context) ([]entity.AssetReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.AssetReference(nil), s.references...), nil
}
