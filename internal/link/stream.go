package link

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/domain/ports"
)

// Pump drains notification frames from an authorized link and republishes
// them on the event hub, tagged with the link's connection ID. One pump per
// link, started after the handshake succeeds.
type Pump struct {
	client *Client
	hub    ports.EventSink
	done   chan struct{}
}

// NewPump wraps an authorized client. Call Run on a worker goroutine.
func NewPump(client *Client, sink ports.EventSink) *Pump {
	return &Pump{
		client: client,
		hub:    sink,
		done:   make(chan struct{}),
	}
}

// Run reads frames until the link drops or Stop closes it, then publishes a
// link_disconnected event and returns. Notification frames arrive at
// arbitrary intervals, so stream reads carry no deadline; Stop closes the
// socket to unblock the read.
func (p *Pump) Run() {
	defer close(p.done)

	connectionID := p.client.ConnectionID()
	_ = p.client.conn.SetReadDeadline(noDeadline)

	scanner := bufio.NewScanner(p.client.reader)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame events.NotificationPayload
		if err := json.Unmarshal(line, &frame); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", connectionID).
				Msg("dropping malformed notification frame")
			continue
		}

		log.Debug().
			Str("connection_id", connectionID).
			Str("change", frame.Change).
			Int64("seq", frame.Seq).
			Msg("notification frame")
		p.publish(events.NewNotificationEvent(connectionID, frame))
	}

	reason := "stream closed"
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		reason = err.Error()
		log.Warn().
			Err(err).
			Str("connection_id", connectionID).
			Msg("notification stream failed")
	} else {
		log.Info().Str("connection_id", connectionID).Msg("notification stream ended")
	}

	p.publish(events.NewLinkDisconnectedEvent(connectionID, reason))
}

// Stop closes the underlying link, unblocking Run. Idempotent.
func (p *Pump) Stop() {
	_ = p.client.Close()
}

// Done is closed once Run has exited.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

func (p *Pump) publish(event events.Event) {
	if p.hub != nil {
		p.hub.Publish(event)
	}
}
