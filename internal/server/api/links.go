package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brianly1003/notilink/internal/domain"
)

// ConnectLinkRequest is the request body for connecting a link.
type ConnectLinkRequest struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token,omitempty"`
}

// handleListLinks handles GET /api/links
// @Summary List active links
// @Tags links
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/links [get]
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	links := s.service.Links()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"links": links,
		"count": len(links),
	})
}

// handleConnectLink handles POST /api/links/{id}/connect
// @Summary Connect to a device
// @Description Dials the device auth endpoint and authorizes, by login when
// a token is supplied or by requesting a fresh one otherwise. Requesting a
// token can block until the device user decides.
// @Tags links
// @Accept json
// @Produce json
// @Param id path string true "Connection ID"
// @Param request body ConnectLinkRequest true "Device endpoint and optional token"
// @Success 200 {object} link.ConnectOutcome
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/links/{id}/connect [post]
func (s *Server) handleConnectLink(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["id"]

	var req ConnectLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Endpoint == "" {
		s.respondError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	outcome, err := s.service.ConnectLink(r.Context(), connectionID, req.Endpoint, req.Token)
	if err != nil {
		s.respondError(w, connectErrorStatus(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, outcome)
}

// handleDisconnectLink handles DELETE /api/links/{id}
// @Summary Disconnect a link
// @Tags links
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/links/{id} [delete]
func (s *Server) handleDisconnectLink(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["id"]

	if err := s.service.DisconnectLink(connectionID); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Link disconnected",
	})
}

// connectErrorStatus maps connect failures to HTTP statuses: auth outcomes
// are 401, everything else reads as an upstream failure.
func connectErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthRejected),
		errors.Is(err, domain.ErrLoginFailed),
		errors.Is(err, domain.ErrNoToken):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}
