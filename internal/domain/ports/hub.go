// Package ports defines the interfaces (ports) for the hexagonal architecture.
package ports

import (
	"github.com/brianly1003/notilink/internal/domain/events"
)

// EventSink is the publish-only side of the event hub. The pairing listener
// and the per-link pumps hold a sink; they never see subscribers.
type EventSink interface {
	// Publish hands an event to the hub for fan-out. Must not block.
	Publish(event events.Event)
}

// Subscriber is one consumer of the event stream. WebSocket feed clients and
// the filtered wrappers around them implement this.
type Subscriber interface {
	// ID returns a unique identifier for this subscriber.
	ID() string

	// Send delivers one event. An error means the subscriber is closed or
	// has fallen behind; the hub detaches it on the first failure.
	Send(event events.Event) error

	// Close releases the subscriber. Must be idempotent.
	Close() error

	// Done is closed once the subscriber will accept no further events.
	Done() <-chan struct{}
}

// EventHub is the full hub surface: a sink plus subscriber management.
type EventHub interface {
	EventSink

	// Subscribe attaches sub until it is unsubscribed, a Send fails, or
	// its Done channel closes.
	Subscribe(sub Subscriber)

	// Unsubscribe detaches and closes the subscriber with the given ID.
	Unsubscribe(id string)

	// SubscriberCount reports the number of attached subscribers.
	SubscriberCount() int
}
