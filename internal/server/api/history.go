package api

import (
	"net/http"
	"strconv"
)

// parseLimit reads the limit query parameter, 0 meaning the journal default.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}

// handlePairingHistory handles GET /api/history/pairings
// @Summary Recent pairing attempts
// @Tags history
// @Produce json
// @Param limit query int false "Maximum records to return"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/history/pairings [get]
func (s *Server) handlePairingHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	records, err := s.service.RecentPairings(limit)
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"pairings": records,
		"count":    len(records),
	})
}

// handleLinkHistory handles GET /api/history/links
// @Summary Recent link sessions
// @Tags history
// @Produce json
// @Param limit query int false "Maximum records to return"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/history/links [get]
func (s *Server) handleLinkHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	records, err := s.service.RecentLinks(limit)
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"links": records,
		"count": len(records),
	})
}
