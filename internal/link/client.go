package link

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/sync"
)

// Client is one outward TCP link to a device's socket endpoint. Handshake
// operations are serialized per instance; run them from one goroutine or let
// the mutex order them.
type Client struct {
	conn         net.Conn
	reader       *bufio.Reader
	connectionID string
	endpoint     string
	timeouts     Timeouts

	// mu serializes handshake operations and is held across their reads.
	// closed has its own guard so Close can interrupt a blocked read.
	mu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

// Connect dials the device endpoint ("host:port") with the stock timeouts.
func Connect(endpoint, connectionID string) (*Client, error) {
	return ConnectWithTimeouts(endpoint, connectionID, DefaultTimeouts())
}

// ConnectWithTimeouts dials the device endpoint. The dial is bounded by
// timeouts.Connect; read and write deadlines are applied per operation
// afterwards.
func ConnectWithTimeouts(endpoint, connectionID string, timeouts Timeouts) (*Client, error) {
	return ConnectContext(context.Background(), endpoint, connectionID, timeouts)
}

// ConnectContext is ConnectWithTimeouts with the dial additionally cancelable
// through ctx. Cancellation after the dial does not affect the client.
func ConnectContext(ctx context.Context, endpoint, connectionID string, timeouts Timeouts) (*Client, error) {
	log.Info().
		Str("endpoint", endpoint).
		Str("connection_id", connectionID).
		Msg("connecting to device")

	dialer := net.Dialer{Timeout: timeouts.Connect}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, domain.NewLinkError("connect", err, endpoint)
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("connection_id", connectionID).
		Msg("device link established")

	return &Client{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		connectionID: connectionID,
		endpoint:     endpoint,
		timeouts:     timeouts,
	}, nil
}

// ConnectionID returns the caller-chosen identifier for this link.
func (c *Client) ConnectionID() string {
	return c.connectionID
}

// Endpoint returns the "host:port" the link was dialed to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// RequestToken asks the device to issue an authorization token. When the
// device gates issuance on user approval it replies pending first, then sends
// the actual decision on the same connection once the user acts; both reads
// share the same per-read deadline, so an approver slower than readTimeout
// fails the request.
func (c *Client) RequestToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	requestID := newRequestID()
	if err := c.sendJSON(AuthRequest{
		Action:    ActionRequestToken,
		RequestID: requestID,
	}); err != nil {
		return "", domain.NewLinkError("request_token", err, "")
	}

	response, err := c.readResponse()
	if err != nil {
		return "", domain.NewLinkError("request_token", err, "")
	}

	log.Debug().
		Str("connection_id", c.connectionID).
		Bool("success", response.Success).
		Bool("pending", response.Pending).
		Bool("rejected", response.Rejected).
		Msg("token request response")

	if response.Pending {
		log.Info().
			Str("connection_id", c.connectionID).
			Str("request_id", requestID).
			Msg("waiting for user authorization on device")

		decision, err := c.readResponse()
		if err != nil {
			return "", domain.NewLinkError("request_token", err, "")
		}
		if decision.Rejected {
			return "", domain.NewLinkError("request_token", domain.ErrAuthRejected, decision.Message)
		}
		if decision.Token == "" {
			return "", domain.NewLinkError("request_token", domain.ErrNoToken, decision.Message)
		}

		log.Info().
			Str("connection_id", c.connectionID).
			Int("token_len", len(decision.Token)).
			Msg("authorization granted")
		return decision.Token, nil
	}

	if response.Rejected {
		return "", domain.NewLinkError("request_token", domain.ErrAuthRejected, response.Message)
	}
	if response.Token == "" {
		return "", domain.NewLinkError("request_token", domain.ErrNoToken, response.Message)
	}
	return response.Token, nil
}

// Login presents an existing token. A success=false reply carries the
// device's reason in message.
func (c *Client) Login(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sendJSON(AuthRequest{
		Action:    ActionLogin,
		RequestID: newRequestID(),
		Token:     token,
	}); err != nil {
		return domain.NewLinkError("login", err, "")
	}

	response, err := c.readResponse()
	if err != nil {
		return domain.NewLinkError("login", err, "")
	}

	if !response.Success {
		return domain.NewLinkError("login", domain.ErrLoginFailed, response.Message)
	}

	log.Info().Str("connection_id", c.connectionID).Msg("login successful")
	return nil
}

// Close releases the socket. Safe to call more than once and concurrently
// with a blocked read, which it unblocks.
func (c *Client) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	return c.conn.Close()
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

func (c *Client) sendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.Write))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return err
	}

	log.Debug().Str("connection_id", c.connectionID).RawJSON("frame", data).Msg("sent")
	return nil
}

func (c *Client) readResponse() (*AuthResponse, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeouts.Read))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}

	var response AuthResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &response); err != nil {
		return nil, err
	}
	return &response, nil
}
