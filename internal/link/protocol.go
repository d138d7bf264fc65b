// Package link implements the outbound side of device connectivity: a
// line-delimited JSON client that dials a device's socket endpoint, performs
// the token handshake, and streams notification frames back into the event
// hub. Active clients are tracked by the Registry under caller-chosen
// connection IDs.
package link

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Stock socket timeouts mirror what the mobile side expects: a slow dial is
// a dead device, but an authorization response may wait on a human approver.
const (
	connectTimeout = 10 * time.Second
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Timeouts bundles the socket deadlines applied to one link.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// DefaultTimeouts returns the stock deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: connectTimeout,
		Read:    readTimeout,
		Write:   writeTimeout,
	}
}

// maxFrameBytes caps a single inbound line.
const maxFrameBytes = 1 << 20

// noDeadline clears a previously applied socket deadline.
var noDeadline = time.Time{}

// AuthRequest is the first frame sent on a new link. Action is either
// "request_token" (ask the device to issue a token, usually gated on user
// approval) or "login" (present a previously issued token).
type AuthRequest struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId"`
	Token     string `json:"token,omitempty"`
}

// AuthResponse is the device's reply to an AuthRequest. Pending means the
// request was forwarded to a human approver and a second response follows on
// the same connection once they decide.
type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Token     string `json:"token,omitempty"`
	Rejected  bool   `json:"rejected,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

const (
	ActionRequestToken = "request_token"
	ActionLogin        = "login"
)

// newRequestID builds the correlation ID carried by auth frames. The device
// echoes it back but never parses it; a millisecond timestamp plus a short
// random suffix is unique enough for log correlation.
func newRequestID() string {
	return fmt.Sprintf("socket_%d_%d", time.Now().UnixMilli(), rand.IntN(10000))
}
