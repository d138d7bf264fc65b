package ws

import (
	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/domain/events"
)

// ClientSubscriber adapts a feed client to the hub's subscriber contract.
type ClientSubscriber struct {
	client *Client
}

// NewClientSubscriber creates a subscriber from a feed client.
func NewClientSubscriber(client *Client) *ClientSubscriber {
	return &ClientSubscriber{client: client}
}

// ID returns the subscriber's unique identifier.
func (s *ClientSubscriber) ID() string {
	return s.client.ID()
}

// Send serializes the event and queues it on the client.
func (s *ClientSubscriber) Send(event events.Event) error {
	if s.client.IsClosed() {
		return domain.ErrSubscriberClosed
	}

	data, err := event.ToJSON()
	if err != nil {
		return err
	}

	s.client.Send(data)
	return nil
}

// Close closes the underlying client.
func (s *ClientSubscriber) Close() error {
	s.client.Close()
	return nil
}

// Done returns a channel that's closed when the client is done.
func (s *ClientSubscriber) Done() <-chan struct{} {
	return s.client.done
}
