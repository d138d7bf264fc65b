// Package ws implements the WebSocket event feed. Connected clients, which
// are desktop UIs, scripts or the embedded shell rather than devices, receive
// every hub event as a JSON text frame. The feed is one-way: inbound frames
// are drained only so control handling and close detection keep working.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/sync"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 15 * time.Second

	// pongWait is the time allowed to read the next pong message. Generous
	// so a laptop lid-flap or a phone on flaky Wi-Fi does not drop the feed.
	pongWait = 90 * time.Second

	// pingPeriod is the ping interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. The feed is outbound-only, so
	// anything beyond a trivial frame is a misbehaving client.
	maxMessageSize = 4 * 1024

	// sendBufferSize is the per-client send queue, sized for the event
	// burst that follows a device reconnect.
	sendBufferSize = 1024

	// heartbeatInterval is the application-level heartbeat cadence.
	heartbeatInterval = 30 * time.Second
)

// Client represents one WebSocket feed connection.
//
// Send is safe from any goroutine; messages a slow client cannot keep up
// with are dropped rather than blocking the hub. Close is idempotent.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	onClose func(id string)

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection. onClose runs once when the
// connection goes away, whichever side initiated it.
func NewClient(conn *websocket.Conn, onClose func(id string)) *Client {
	return &Client{
		id:      uuid.New().String(),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Start starts the client's read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Send queues a message for delivery.
func (c *Client) Send(message []byte) {
	if c.IsClosed() {
		return
	}

	select {
	case c.send <- message:
	default:
		// Channel full, client is too slow.
		log.Warn().Str("client_id", c.id).Msg("feed client send queue full, dropping message")
	}
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the client down.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
}

// readPump drains inbound frames until the connection errors or closes.
// Feed clients have nothing to say; reads exist for pong handling and close
// detection.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c.id)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump moves messages from the send queue to the connection. Each
// message goes out as its own text frame so concatenated JSON never reaches
// the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message, ok := <-c.send:
			if !ok {
				return
			}

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("feed write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("feed ping error")
				return
			}
		}
	}
}
