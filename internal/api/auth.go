package api

import (
	"errors"
	"net/http"

	"github.com/seantiz/mathprepa/internal/identity"
)

type meResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.CurrentUser(r.Context())
	s.writeJSON(w, http.StatusOK, meResponse{Authenticated: ok, UserID: id})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context()); err != nil {
		if errors.Is(err, identity.ErrNoToken) || errors.Is(err, identity.ErrInvalidToken) {
			s.writeError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		s.logger.Error("sign out", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
