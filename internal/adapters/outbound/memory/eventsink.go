package memory

import (
	"context"
	"sync"

	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink records published events in memory.
type EventSink struct {
	mu     sync.Mutex
	events []outbound.Event
}

// NewEventSink creates an empty in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{}
}

func (s *EventSink) Publish(_ context.Context, event outbound.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (s *EventSink) Events() []outbound.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbound.Event(nil), s.events...)
}

func (s *EventSink) Close() error { return nil }
