// Package entity contains the domain entities of the pricing system:
// persisted registry configuration, price snapshots, and the error taxonomy.
package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SourceKind identifies the concrete implementation behind a configured price source.
type SourceKind string

const (
	// SourceKindChainlink is a feed-backed source reading Chainlink-compatible aggregators.
	SourceKindChainlink SourceKind = "chainlink"
)

// validSourceKinds contains all source kinds the assembler knows how to build.
var validSourceKinds = map[SourceKind]bool{
	SourceKindChainlink: true,
}

// IsValid returns true if the SourceKind is a known valid kind.
func (k SourceKind) IsValid() bool {
	return validSourceKinds[k]
}

// String returns the string representation of the SourceKind.
func (k SourceKind) String() string {
	return string(k)
}

// SourceConfig describes one configured price source instance.
type SourceConfig struct {
	Name         string
	Kind         SourceKind
	BaseCurrency common.Address
	Admin        common.Address
}

func (c *SourceConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("source name must not be empty")
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("unknown source kind %q for source %s", c.Kind, c.Name)
	}
	if c.BaseCurrency == (common.Address{}) {
		return fmt.Errorf("base currency must not be zero for source %s", c.Name)
	}
	return nil
}

// SourceBinding routes one asset to a named source.
type SourceBinding struct {
	Asset  common.Address
	Source string
}

func (b *SourceBinding) validate() error {
	if b.Asset == (common.Address{}) {
		return fmt.Errorf("binding asset must not be zero")
	}
	if b.Source == "" {
		return fmt.Errorf("binding source must not be empty for asset %s", b.Asset.Hex())
	}
	return nil
}

// FeedBinding maps an asset to its aggregator feed within one feed-backed source.
// QuoteCurrency is the asset the feed denominates its answers in.
type FeedBinding struct {
	Source        string
	Asset         common.Address
	Feed          common.Address
	QuoteCurrency common.Address
}

func (b *FeedBinding) validate() error {
	if b.Source == "" {
		return fmt.Errorf("feed binding source must not be empty for asset %s", b.Asset.Hex())
	}
	if b.Asset == (common.Address{}) {
		return fmt.Errorf("feed binding asset must not be zero")
	}
	if b.Feed == (common.Address{}) {
		return fmt.Errorf("feed address must not be zero for asset %s", b.Asset.Hex())
	}
	if b.QuoteCurrency == (common.Address{}) {
		return fmt.Errorf("quote currency must not be zero for asset %s", b.Asset.Hex())
	}
	return nil
}

// RegistrySettings is the singleton control row of a deployment.
// DefaultSource names an entry in Sources; empty means no default is configured.
type RegistrySettings struct {
	BaseCurrency  common.Address
	Admin         common.Address
	Guardian      common.Address
	DefaultSource string
	CallFirst     bool
}

func (s *RegistrySettings) validate() error {
	if s.BaseCurrency == (common.Address{}) {
		return fmt.Errorf("base currency must not be zero")
	}
	if s.Admin == (common.Address{}) {
		return fmt.Errorf("admin must not be zero")
	}
	return nil
}

// DeploymentConfig aggregates everything needed to assemble a resolving
// registry: the control row, the source instances, per-asset routing, feed
// bindings, and the off-chain reference IDs used for cross-checks.
type DeploymentConfig struct {
	Settings   RegistrySettings
	Sources    []SourceConfig
	Bindings   []SourceBinding
	Feeds      []FeedBinding
	References []AssetReference
}

// Validate checks internal consistency: settings are complete, every source is
// well formed, and every binding or feed references a configured source.
func (c *DeploymentConfig) Validate() error {
	if err := c.Settings.validate(); err != nil {
		return err
	}

	names := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		if err := c.Sources[i].validate(); err != nil {
			return err
		}
		if names[c.Sources[i].Name] {
			return fmt.Errorf("duplicate source name %q", c.Sources[i].Name)
		}
		names[c.Sources[i].Name] = true
	}

	if c.Settings.DefaultSource != "" && !names[c.Settings.DefaultSource] {
		return fmt.Errorf("default source %q is not a configured source", c.Settings.DefaultSource)
	}

	for i := range c.Bindings {
		if err := c.Bindings[i].validate(); err != nil {
			return err
		}
		if !names[c.Bindings[i].Source] {
			return fmt.Errorf("binding for asset %s references unknown source %q",
				c.Bindings[i].Asset.Hex(), c.Bindings[i].Source)
		}
	}

	for i := range c.Feeds {
		if err := c.Feeds[i].validate(); err != nil {
			return err
		}
		if !names[c.Feeds[i].Source] {
			return fmt.Errorf("feed for asset %s references unknown source %q",
				c.Feeds[i].Asset.Hex(), c.Feeds[i].Source)
		}
	}

	return nil
}
