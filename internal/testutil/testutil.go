// Package testutil provides shared test doubles and helpers for notilink
// tests: an event-recording subscriber and hub, a free-port finder and a
// condition poller.
package testutil

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/domain/ports"
)

// MockSubscriber implements ports.Subscriber and records every event it is
// sent, standing in for a websocket feed client.
type MockSubscriber struct {
	id      string
	mu      sync.Mutex
	events  []events.Event
	closed  bool
	sendErr error
	done    chan struct{}
}

// NewMockSubscriber creates a recording subscriber with the given ID.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the subscriber ID.
func (m *MockSubscriber) ID() string {
	return m.id
}

// Send records the event, or returns the configured error without recording.
func (m *MockSubscriber) Send(e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.events = append(m.events, e)
	return nil
}

// Close marks the subscriber as closed and fires Done. Idempotent.
func (m *MockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Done returns a channel that's closed when the subscriber is closed.
func (m *MockSubscriber) Done() <-chan struct{} {
	return m.done
}

// Events returns a copy of all recorded events in arrival order.
func (m *MockSubscriber) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

// EventsOfType returns the recorded events of the given type.
func (m *MockSubscriber) EventsOfType(t events.EventType) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []events.Event
	for _, e := range m.events {
		if e.Type() == t {
			result = append(result, e)
		}
	}
	return result
}

// EventCount returns the number of recorded events.
func (m *MockSubscriber) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// IsClosed reports whether Close was called.
func (m *MockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetSendError makes every subsequent Send fail with err, simulating a feed
// client that has fallen behind or hung up.
func (m *MockSubscriber) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

var _ ports.Subscriber = (*MockSubscriber)(nil)

// MockEventHub implements ports.EventHub and records published events instead
// of fanning them out. It lets listener and pump tests assert on the exact
// event stream a component emits.
type MockEventHub struct {
	mu          sync.Mutex
	events      []events.Event
	subscribers []ports.Subscriber
}

// NewMockEventHub creates an empty recording hub.
func NewMockEventHub() *MockEventHub {
	return &MockEventHub{}
}

// Publish records the event.
func (m *MockEventHub) Publish(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Subscribe records the subscriber.
func (m *MockEventHub) Subscribe(sub ports.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

// Unsubscribe removes a recorded subscriber by ID.
func (m *MockEventHub) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub.ID() == id {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of recorded subscribers.
func (m *MockEventHub) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// PublishedEvents returns a copy of all published events in publish order.
func (m *MockEventHub) PublishedEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

// EventsOfType returns the published events of the given type.
func (m *MockEventHub) EventsOfType(t events.EventType) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []events.Event
	for _, e := range m.events {
		if e.Type() == t {
			result = append(result, e)
		}
	}
	return result
}

var _ ports.EventHub = (*MockEventHub)(nil)

// FreePort returns a TCP port that was free at the time of the call.
// It binds to port 0 on the loopback interface and releases the socket.
func FreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s: condition not met within %v", msg, timeout)
}
