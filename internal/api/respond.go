package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/seantiz/mathprepa/internal/engine"
)

const maxBodySize = 1 << 20 // 1 MB

var validate = validator.New()

// errEmptyBody is returned by decodeJSON when the request has no body.
var errEmptyBody = errors.New("empty body")

// decodeJSON reads a size-limited JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// isEmptyBody reports whether err means an optional body was absent.
func isEmptyBody(err error) bool {
	return errors.Is(err, errEmptyBody)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps an engine error to its HTTP status.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotAuthenticated):
		s.writeError(w, http.StatusUnauthorized, "sign in to post")
	case errors.Is(err, engine.ErrNoPostSelected):
		s.writeError(w, http.StatusConflict, "no post selected")
	case errors.Is(err, engine.ErrPostNotFound):
		s.writeError(w, http.StatusNotFound, "post not found")
	case errors.Is(err, engine.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrMutationFailed):
		s.writeError(w, http.StatusBadGateway, "failed to save, your input was kept")
	default:
		s.logger.Error("unexpected engine error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
