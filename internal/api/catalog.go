package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/mathprepa/internal/model"
)

// setFilterRequest is the JSON body for PUT /v1/catalog/filter. A nil field
// leaves that filter unchanged; an empty string clears it.
type setFilterRequest struct {
	TopicID    *string `json:"topic_id" validate:"omitempty,max=64"`
	Difficulty *string `json:"difficulty" validate:"omitempty,oneof=facile moyen difficile"`
}

type toggleResponse struct {
	ExerciseID      string `json:"exercise_id"`
	SolutionVisible bool   `json:"solution_visible"`
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.views.Catalog(r.Context()).View())
}

func (s *Server) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.views.RemountCatalog(r.Context()).View())
}

func (s *Server) handleSetCatalogFilter(w http.ResponseWriter, r *http.Request) {
	var req setFilterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cat := s.views.Catalog(r.Context())
	if req.TopicID != nil {
		cat.SetTopicFilter(*req.TopicID)
	}
	if req.Difficulty != nil {
		cat.SetDifficultyFilter(model.Difficulty(*req.Difficulty))
	}
	s.writeJSON(w, http.StatusOK, cat.View())
}

func (s *Server) handleToggleSolution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "exercise id is required")
		return
	}

	visible := s.views.Catalog(r.Context()).ToggleSolution(id)
	s.writeJSON(w, http.StatusOK, toggleResponse{ExerciseID: id, SolutionVisible: visible})
}
