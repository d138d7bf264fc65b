// Package devicesim emulates the companion device end of the wire protocols:
// an auth socket server that issues or checks tokens the way the mobile app
// does, an approval queue standing in for the device UI, and a pairer that
// performs the device side of the pairing handshake. It backs the simulate
// command and end-to-end tests; nothing in the service path depends on it.
package devicesim

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/link"
	"github.com/brianly1003/notilink/internal/sync"
)

// decisionTimeout bounds how long a pending token request waits for the
// simulated user. It stays under the desktop's per-read deadline so the
// rejection reaches the peer before its socket gives up.
const decisionTimeout = 25 * time.Second

const writeDeadline = 10 * time.Second

// Server is the device-side auth socket endpoint. Desktops dial it, send
// request_token or login frames and, once authorized, receive any
// notification frames the simulator emits.
type Server struct {
	issuer    *TokenIssuer
	approvals *ApprovalManager

	mu         sync.Mutex
	ln         net.Listener
	running    bool
	conns      map[net.Conn]bool
	authorized map[net.Conn]bool
	seq        int64
}

// NewServer creates a device auth server.
func NewServer(issuer *TokenIssuer, approvals *ApprovalManager) *Server {
	return &Server{
		issuer:     issuer,
		approvals:  approvals,
		conns:      make(map[net.Conn]bool),
		authorized: make(map[net.Conn]bool),
	}
}

// Start binds addr ("host:port", port 0 for an OS pick) and begins accepting.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running = true

	go s.acceptLoop(ln)

	log.Info().
		Str("addr", ln.Addr().String()).
		Str("device_id", s.issuer.DeviceID()).
		Msg("device auth server listening")
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ln := s.ln
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[net.Conn]bool)
	s.authorized = make(map[net.Conn]bool)
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, conn := range conns {
		_ = conn.Close()
	}

	log.Info().Msg("device auth server stopped")
	return err
}

// AuthorizedCount returns how many connections completed auth.
func (s *Server) AuthorizedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.authorized)
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("device server accept failed")
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = true
		s.mu.Unlock()

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.dropConn(conn)

	log.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("desktop connected")

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req link.AuthRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.reply(conn, link.AuthResponse{Success: false, Message: "malformed request"})
			continue
		}

		switch req.Action {
		case link.ActionRequestToken:
			s.handleRequestToken(conn, req)
		case link.ActionLogin:
			s.handleLogin(conn, req)
		default:
			s.reply(conn, link.AuthResponse{
				Success:   false,
				Message:   "unknown action: " + req.Action,
				RequestID: req.RequestID,
			})
		}
	}
}

func (s *Server) handleRequestToken(conn net.Conn, req link.AuthRequest) {
	if s.approvals.AutoApprove() {
		s.issueToken(conn, req.RequestID)
		return
	}

	approvalReq, decision, err := s.approvals.Submit(conn.RemoteAddr().String(), decisionTimeout)
	if err != nil {
		s.reply(conn, link.AuthResponse{Success: false, Message: err.Error(), RequestID: req.RequestID})
		return
	}

	s.reply(conn, link.AuthResponse{Success: true, Pending: true, RequestID: req.RequestID})

	log.Info().
		Str("approval_id", approvalReq.RequestID).
		Str("remote_addr", approvalReq.RemoteAddr).
		Msg("token request pending user decision")

	select {
	case approved := <-decision:
		if !approved {
			s.reply(conn, link.AuthResponse{Success: true, Rejected: true, RequestID: req.RequestID})
			return
		}
		s.issueToken(conn, req.RequestID)
	case <-time.After(decisionTimeout):
		s.reply(conn, link.AuthResponse{
			Success:   true,
			Rejected:  true,
			Message:   "authorization timed out",
			RequestID: req.RequestID,
		})
	}
}

func (s *Server) issueToken(conn net.Conn, requestID string) {
	token, _, err := s.issuer.Issue()
	if err != nil {
		s.reply(conn, link.AuthResponse{Success: false, Message: "token issuance failed", RequestID: requestID})
		return
	}

	s.reply(conn, link.AuthResponse{Success: true, Token: token, RequestID: requestID})
	s.markAuthorized(conn)
}

func (s *Server) handleLogin(conn net.Conn, req link.AuthRequest) {
	if req.Token == "" {
		s.reply(conn, link.AuthResponse{Success: false, Message: "token required", RequestID: req.RequestID})
		return
	}

	if _, err := s.issuer.Validate(req.Token); err != nil {
		message := "invalid token"
		if errors.Is(err, ErrExpiredToken) {
			message = "token expired"
		}
		s.reply(conn, link.AuthResponse{Success: false, Message: message, RequestID: req.RequestID})
		return
	}

	s.reply(conn, link.AuthResponse{Success: true, RequestID: req.RequestID})
	s.markAuthorized(conn)
}

func (s *Server) reply(conn net.Conn, resp link.AuthResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		log.Debug().Err(err).Msg("failed to write auth reply")
	}
}

func (s *Server) markAuthorized(conn net.Conn) {
	s.mu.Lock()
	s.authorized[conn] = true
	s.mu.Unlock()

	log.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("desktop authorized")
}

func (s *Server) dropConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	delete(s.authorized, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// EmitAdded broadcasts an added-notification frame to authorized desktops.
func (s *Server) EmitAdded(n events.Notification) {
	s.broadcast(events.NotificationPayload{
		Change:       "added",
		Seq:          s.nextSeq(),
		Notification: &n,
	})
}

// EmitRemoved broadcasts a removed-notification frame to authorized
// desktops.
func (s *Server) EmitRemoved(id string) {
	s.broadcast(events.NotificationPayload{
		Change: "removed",
		Seq:    s.nextSeq(),
		ID:     id,
	})
}

func (s *Server) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Server) broadcast(frame events.NotificationPayload) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.authorized))
	for conn := range s.authorized {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if _, err := conn.Write(data); err != nil {
			log.Debug().Err(err).Msg("dropping desktop after failed broadcast")
			s.dropConn(conn)
		}
	}
}
