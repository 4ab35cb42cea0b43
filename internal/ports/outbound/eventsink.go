package outbound

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType represents the type of configuration change event.
type EventType string

// Event type constants.
const (
	EventTypeSourceChange        EventType = "source_change"
	EventTypeDefaultSourceChange EventType = "default_source_change"
	EventTypeFeedChange          EventType = "feed_change"
	EventTypeRoleChange          EventType = "role_change"
)

// Event is the interface that all configuration change events implement.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType
	// Subject returns what the event is about: an asset address in hex for
	// routing and feed changes, a role name for role changes.
	Subject() string
}

// SourceChange is published for each per-asset routing assignment or clear.
// Empty OldSource means the asset had no explicit source before; empty
// NewSource means the route was cleared.
type SourceChange struct {
	Asset     common.Address `json:"asset"`
	OldSource string         `json:"oldSource,omitempty"`
	NewSource string         `json:"newSource,omitempty"`
	ChangedAt time.Time      `json:"changedAt"`
}

func (e SourceChange) EventType() EventType { return EventTypeSourceChange }
func (e SourceChange) Subject() string      { return e.Asset.Hex() }

// DefaultSourceChange is published when the fallback source or its
// call-first flag changes. Empty source names mean "no default".
type DefaultSourceChange struct {
	OldSource    string    `json:"oldSource,omitempty"`
	NewSource    string    `json:"newSource,omitempty"`
	OldCallFirst bool      `json:"oldCallFirst"`
	NewCallFirst bool      `json:"newCallFirst"`
	ChangedAt    time.Time `json:"changedAt"`
}

func (e DefaultSourceChange) EventType() EventType { return EventTypeDefaultSourceChange }
func (e DefaultSourceChange) Subject() string      { return "default" }

// FeedChange is published for each per-asset feed assignment inside a
// feed-backed source.
type FeedChange struct {
	Source        string         `json:"source"`
	Asset         common.Address `json:"asset"`
	OldFeed       common.Address `json:"oldFeed"`
	NewFeed       common.Address `json:"newFeed"`
	QuoteCurrency common.Address `json:"quoteCurrency"`
	ChangedAt     time.Time      `json:"changedAt"`
}

func (e FeedChange) EventType() EventType { return EventTypeFeedChange }
func (e FeedChange) Subject() string      { return e.Asset.Hex() }

// RoleChange is published when the admin or guardian principal is replaced.
type RoleChange struct {
	Role      string         `json:"role"`
	OldHolder common.Address `json:"oldHolder"`
	NewHolder common.Address `json:"newHolder"`
	ChangedAt time.Time      `json:"changedAt"`
}

func (e RoleChange) EventType() EventType { return EventTypeRoleChange }
func (e RoleChange) Subject() string      { return e.Role }

// EventSink defines the interface for publishing configuration change events.
// Publishing is an audit concern: the pricing core treats sink failures as
// log-worthy, not as mutation failures.
type EventSink interface {
	// Publish publishes a configuration change event.
	Publish(ctx context.Context, event Event) error

	// Close closes the sink and releases any resources.
	Close() error
}
