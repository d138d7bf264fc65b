// Package api provides the HTTP control surface: listener and link
// operations, pairing artifacts, history queries and the WebSocket event
// feed mount. The wire protocols devices speak live in pairing and link;
// everything here is for UIs and tooling on the desktop side.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/brianly1003/notilink/internal/history"
	"github.com/brianly1003/notilink/internal/link"
	"github.com/brianly1003/notilink/internal/pairing"
)

// Service is the application surface the HTTP API exposes. The app
// coordinator implements it.
type Service interface {
	Version() string
	GetUptimeSeconds() int64

	// StartListener binds the pairing socket. A zero port means the
	// configured one; the returned status carries the port actually bound.
	StartListener(port int) (pairing.Status, error)
	StopListener() pairing.Status
	ListenerStatus() pairing.Status

	PairingResult() *pairing.Result
	ConsumePairingResult() *pairing.Result
	PairingQRPNG() ([]byte, error)

	ConnectLink(ctx context.Context, connectionID, endpoint, token string) (link.ConnectOutcome, error)
	DisconnectLink(connectionID string) error
	Links() []link.Info

	RecentPairings(limit int) ([]history.PairingRecord, error)
	RecentLinks(limit int) ([]history.LinkRecord, error)
}

// Server is the HTTP API server.
type Server struct {
	addr      string
	service   Service
	router    *mux.Router
	wsHandler http.HandlerFunc
	authToken string
	allowlist []string

	httpServer *http.Server
}

// NewServer creates an API server bound to host:port.
func NewServer(host string, port int, service Service) *Server {
	s := &Server{
		addr:      fmt.Sprintf("%s:%d", host, port),
		service:   service,
		allowlist: defaultAuthAllowlist(),
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	api.HandleFunc("/listener/start", s.handleListenerStart).Methods("POST")
	api.HandleFunc("/listener/stop", s.handleListenerStop).Methods("POST")
	api.HandleFunc("/listener/status", s.handleListenerStatus).Methods("GET")

	api.HandleFunc("/pairing/result", s.handlePairingResult).Methods("GET")
	api.HandleFunc("/pairing/result", s.handlePairingResultConsume).Methods("DELETE")
	api.HandleFunc("/pairing/qr", s.handlePairingQR).Methods("GET")

	api.HandleFunc("/links", s.handleListLinks).Methods("GET")
	api.HandleFunc("/links/{id}/connect", s.handleConnectLink).Methods("POST")
	api.HandleFunc("/links/{id}", s.handleDisconnectLink).Methods("DELETE")

	api.HandleFunc("/history/pairings", s.handlePairingHistory).Methods("GET")
	api.HandleFunc("/history/links", s.handleLinkHistory).Methods("GET")

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	return s
}

// SetAuthToken enables bearer authentication with a static token. An empty
// token leaves the API open, the default for loopback binds.
func (s *Server) SetAuthToken(token string) {
	s.authToken = token
}

// SetAuthAllowlist overrides the default unauthenticated path allowlist.
func (s *Server) SetAuthAllowlist(allowlist []string) {
	s.allowlist = allowlist
}

// SetWebSocketHandler mounts handler at /ws. Must be called before Start.
func (s *Server) SetWebSocketHandler(handler http.HandlerFunc) {
	s.wsHandler = handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if s.wsHandler != nil {
		s.router.HandleFunc("/ws", s.wsHandler)
	}

	// Middleware chain from inside out: router <- auth <- cors <- logging.
	var handler http.Handler = s.router
	handler = s.authMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = requestLoggingMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: handler,
		// No ReadTimeout/WriteTimeout: they would clamp long-lived
		// WebSocket feeds and connect calls that wait on a device
		// decision. Per-connection deadlines are managed downstream.
		IdleTimeout: 120 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("HTTP API server starting")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP API server error")
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Info().Msg("HTTP API server stopping")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles GET /health
// @Summary Health check
// @Description Returns ok when the service is up
// @Tags service
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "notilink",
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus handles GET /api/status
// @Summary Service status
// @Description Returns version, uptime, listener state and active links
// @Tags service
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":        "notilink",
		"version":        s.service.Version(),
		"uptime_seconds": s.service.GetUptimeSeconds(),
		"listener":       s.service.ListenerStatus(),
		"links":          s.service.Links(),
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
