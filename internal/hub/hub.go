// Package hub fans events out from the pairing listener, the per-link pumps
// and the service core to every attached feed subscriber.
package hub

import (
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/domain/ports"
	"github.com/brianly1003/notilink/internal/sync"
)

// queueSize bounds the publish queue. Publishers never block: once the queue
// is full events are counted and discarded.
const queueSize = 256

// Hub distributes published events to every attached subscriber. Attach and
// detach take effect immediately; delivery runs on a single dispatch
// goroutine so subscribers observe events in publish order. A subscriber is
// detached when Unsubscribe is called, when a Send fails, or when its Done
// channel closes.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]ports.Subscriber
	running     bool
	dropped     uint64

	queue chan events.Event
	done  chan struct{}
}

// New creates a stopped hub. Call Start before publishing.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		queue:       make(chan events.Event, queueSize),
		done:        make(chan struct{}),
	}
}

// Start launches the dispatch goroutine. Starting twice is a no-op.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	h.running = true
	go h.dispatch()
	log.Debug().Msg("event hub started")
	return nil
}

// Stop ends dispatch and closes every subscriber. Stopping twice is a no-op;
// a stopped hub cannot be restarted.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	subs := h.subscribers
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	close(h.done)
	for _, sub := range subs {
		_ = sub.Close()
	}
	log.Debug().Msg("event hub stopped")
	return nil
}

// Publish enqueues an event for fan-out. It never blocks: when the queue is
// full the event is dropped and counted.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.queue <- event:
		log.Trace().
			Str("event_type", string(event.Type())).
			Msg("event queued")
	default:
		h.mu.Lock()
		h.dropped++
		total := h.dropped
		h.mu.Unlock()
		log.Warn().
			Str("event_type", string(event.Type())).
			Uint64("dropped_total", total).
			Msg("event dropped: queue full")
	}
}

// Subscribe attaches sub. Subscribing on a stopped hub closes sub
// immediately.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		_ = sub.Close()
		return
	}
	h.subscribers[sub.ID()] = sub
	h.mu.Unlock()
	log.Debug().Str("subscriber_id", sub.ID()).Msg("subscriber attached")

	// Reap the subscriber once it closes on its own, e.g. a websocket
	// client whose write pump died.
	go func() {
		select {
		case <-sub.Done():
			h.detach(sub.ID())
		case <-h.done:
		}
	}()
}

// Unsubscribe detaches and closes the subscriber with the given ID. Unknown
// IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.detach(id)
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many events were discarded because the queue was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) dispatch() {
	for {
		select {
		case <-h.done:
			return
		case event := <-h.queue:
			h.deliver(event)
		}
	}
}

// deliver sends one event to every subscriber, then detaches those whose
// Send failed.
func (h *Hub) deliver(event events.Event) {
	h.mu.RLock()
	targets := make([]ports.Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var failed []string
	for _, sub := range targets {
		if err := sub.Send(event); err != nil {
			log.Warn().
				Str("subscriber_id", sub.ID()).
				Str("event_type", string(event.Type())).
				Err(err).
				Msg("detaching subscriber after failed send")
			failed = append(failed, sub.ID())
		}
	}
	for _, id := range failed {
		h.detach(id)
	}
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		_ = sub.Close()
		log.Debug().Str("subscriber_id", id).Msg("subscriber detached")
	}
}

var _ ports.EventHub = (*Hub)(nil)
