package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/mathprepa/internal/engine"
)

// postFormRequest is the body of PUT /v1/board/forms/post and, optionally,
// of POST /v1/board/posts.
type postFormRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// replyDraftRequest is the body of PUT /v1/board/forms/reply and, optionally,
// of POST /v1/board/replies.
type replyDraftRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.views.Board(r.Context()).View(r.Context()))
}

func (s *Server) handleRefreshBoard(w http.ResponseWriter, r *http.Request) {
	board := s.views.Board(r.Context())
	board.Refresh(r.Context())
	s.writeJSON(w, http.StatusOK, board.View(r.Context()))
}

func (s *Server) handleSelectPost(w http.ResponseWriter, r *http.Request) {
	board := s.views.Board(r.Context())
	if err := board.SelectPost(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, board.View(r.Context()))
}

func (s *Server) handleBoardBack(w http.ResponseWriter, r *http.Request) {
	board := s.views.Board(r.Context())
	board.Back()
	s.writeJSON(w, http.StatusOK, board.View(r.Context()))
}

func (s *Server) handleSetPostForm(w http.ResponseWriter, r *http.Request) {
	var req postFormRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	board := s.views.Board(r.Context())
	board.SetPostForm(engine.PostForm{Title: req.Title, Content: req.Content})
	s.writeJSON(w, http.StatusOK, board.View(r.Context()))
}

func (s *Server) handleSetReplyDraft(w http.ResponseWriter, r *http.Request) {
	var req replyDraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	board := s.views.Board(r.Context())
	board.SetReplyDraft(req.Content)
	s.writeJSON(w, http.StatusOK, board.View(r.Context()))
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	board := s.views.Board(r.Context())

	var req postFormRequest
	switch err := decodeJSON(w, r, &req); {
	case err == nil:
		board.SetPostForm(engine.PostForm{Title: req.Title, Content: req.Content})
	case isEmptyBody(err):
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := board.CreatePost(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, board.View(r.Context()))
}

func (s *Server) handleCreateReply(w http.ResponseWriter, r *http.Request) {
	board := s.views.Board(r.Context())

	var req replyDraftRequest
	switch err := decodeJSON(w, r, &req); {
	case err == nil:
		board.SetReplyDraft(req.Content)
	case isEmptyBody(err):
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := board.CreateReply(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, board.View(r.Context()))
}
