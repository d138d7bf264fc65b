package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain"
)

// StartListenerRequest is the optional body for POST /api/listener/start.
type StartListenerRequest struct {
	Port int `json:"port,omitempty"`
}

// handleListenerStart handles POST /api/listener/start
// @Summary Start the pairing listener
// @Description Binds the pairing socket and begins waiting for a device
// @Tags listener
// @Accept json
// @Produce json
// @Param request body StartListenerRequest false "Optional port override"
// @Success 200 {object} pairing.Status
// @Failure 409 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/listener/start [post]
func (s *Server) handleListenerStart(w http.ResponseWriter, r *http.Request) {
	// Body is optional; absent or empty means the configured port.
	var req StartListenerRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	status, err := s.service.StartListener(req.Port)
	if err != nil {
		if errors.Is(err, domain.ErrListenerRunning) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, status)
}

// handleListenerStop handles POST /api/listener/stop
// @Summary Stop the pairing listener
// @Description Closes the pairing socket; safe to call when not running
// @Tags listener
// @Produce json
// @Success 200 {object} pairing.Status
// @Router /api/listener/stop [post]
func (s *Server) handleListenerStop(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.StopListener())
}

// handleListenerStatus handles GET /api/listener/status
// @Summary Pairing listener status
// @Tags listener
// @Produce json
// @Success 200 {object} pairing.Status
// @Router /api/listener/status [get]
func (s *Server) handleListenerStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.ListenerStatus())
}

// handlePairingResult handles GET /api/pairing/result
// @Summary Peek the last pairing result
// @Description Returns the device endpoint and token from the most recent
// successful pairing without consuming it
// @Tags pairing
// @Produce json
// @Success 200 {object} pairing.Result
// @Failure 404 {object} map[string]interface{}
// @Router /api/pairing/result [get]
func (s *Server) handlePairingResult(w http.ResponseWriter, r *http.Request) {
	result := s.service.PairingResult()
	if result == nil {
		s.respondError(w, http.StatusNotFound, "no pairing result available")
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// handlePairingResultConsume handles DELETE /api/pairing/result
// @Summary Consume the last pairing result
// @Description Returns the most recent pairing result and clears the slot
// @Tags pairing
// @Produce json
// @Success 200 {object} pairing.Result
// @Failure 404 {object} map[string]interface{}
// @Router /api/pairing/result [delete]
func (s *Server) handlePairingResultConsume(w http.ResponseWriter, r *http.Request) {
	result := s.service.ConsumePairingResult()
	if result == nil {
		s.respondError(w, http.StatusNotFound, "no pairing result available")
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// handlePairingQR handles GET /api/pairing/qr
// @Summary Pairing QR code
// @Description Returns the pairing payload as a QR code PNG
// @Tags pairing
// @Produce png
// @Success 200 {string} binary
// @Failure 500 {object} map[string]interface{}
// @Router /api/pairing/qr [get]
func (s *Server) handlePairingQR(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.PairingQRPNG()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Msg("failed to write QR response")
	}
}
