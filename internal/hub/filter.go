package hub

import (
	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/domain/ports"
	"github.com/brianly1003/notilink/internal/sync"
)

// FilteredSubscriber wraps a subscriber and filters events by type and by
// link connection ID. An empty filter forwards everything. Events without a
// connection ID (global events) always pass the connection filter.
type FilteredSubscriber struct {
	inner       ports.Subscriber
	types       map[events.EventType]bool
	connections map[string]bool
	mu          sync.RWMutex
}

// NewFilteredSubscriber creates a new filtered subscriber wrapping the given subscriber.
func NewFilteredSubscriber(inner ports.Subscriber) *FilteredSubscriber {
	return &FilteredSubscriber{
		inner:       inner,
		types:       make(map[events.EventType]bool),
		connections: make(map[string]bool),
	}
}

// ID returns the subscriber's unique identifier.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send sends an event to the subscriber if it passes the filter.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if !f.shouldForward(event) {
		return nil // Silently skip events that don't match filter
	}
	return f.inner.Send(event)
}

// Close closes the subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns a channel that's closed when the subscriber is done.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

// SubscribeType adds an event type to the filter.
func (f *FilteredSubscriber) SubscribeType(eventType events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[eventType] = true
}

// UnsubscribeType removes an event type from the filter.
func (f *FilteredSubscriber) UnsubscribeType(eventType events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.types, eventType)
}

// SubscribeConnection adds a link connection to the filter.
// Events for this connection will be forwarded to the subscriber.
func (f *FilteredSubscriber) SubscribeConnection(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connections[connectionID] = true
}

// UnsubscribeConnection removes a link connection from the filter.
func (f *FilteredSubscriber) UnsubscribeConnection(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connections, connectionID)
}

// SubscribeAll clears the filter, forwarding all events (default behavior).
func (f *FilteredSubscriber) SubscribeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = make(map[events.EventType]bool)
	f.connections = make(map[string]bool)
}

// IsFiltering returns true if the subscriber has any filter set.
func (f *FilteredSubscriber) IsFiltering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.types) > 0 || len(f.connections) > 0
}

// shouldForward determines if an event should be forwarded to the subscriber.
func (f *FilteredSubscriber) shouldForward(event events.Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.types) > 0 && !f.types[event.Type()] {
		return false
	}

	if len(f.connections) > 0 {
		// Global events (no connection ID) are always forwarded
		connectionID := event.GetConnectionID()
		if connectionID != "" && !f.connections[connectionID] {
			return false
		}
	}

	return true
}
