package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// handleHealthz reports liveness only.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHealth(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleReadyz also checks that the store answers.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("store not ready", "error", err)
		s.writeHealth(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Store: "unreachable"})
		return
	}
	s.writeHealth(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}

func (s *Server) writeHealth(w http.ResponseWriter, status int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode health response", "error", err)
	}
}
