package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Topics                int            `json:"topics"`
	Exercises             int            `json:"exercises"`
	ExercisesByDifficulty map[string]int `json:"exercises_by_difficulty"`
	ExercisesByTopic      map[string]int `json:"exercises_by_topic"`
	Posts                 int            `json:"posts"`
	Replies               int            `json:"replies"`
	ActiveViews           int            `json:"active_views"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Topics:                stats.Topics,
		Exercises:             stats.Exercises,
		ExercisesByDifficulty: stats.ExercisesByDifficulty,
		ExercisesByTopic:      stats.ExercisesByTopic,
		Posts:                 stats.Posts,
		Replies:               stats.Replies,
		ActiveViews:           s.views.Len(),
	})
}
