package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/byjit/jules-board/internal/board"
	"github.com/byjit/jules-board/pkg/models"
)

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	var status *models.StoryStatus
	if q := r.URL.Query().Get("status"); q != "" {
		st := models.StoryStatus(q)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status filter: "+q)
			return
		}
		status = &st
	}

	stories, err := s.db.ListStories(r.Context(), projectID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stories == nil {
		stories = []*models.Story{}
	}
	writeJSON(w, http.StatusOK, stories)
}

func (s *Server) handleAddStory(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	story, err := s.controller.AddStory(r.Context(), projectID, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	story, err := s.db.GetStory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if story == nil {
		writeError(w, http.StatusNotFound, "story not found")
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// handleUpdateStory is the direct edit form: any field can change, including
// status. Status edits still pass through the gate so a dependency-blocked
// story cannot be dragged out of the backlog via the edit dialog either.
func (s *Server) handleUpdateStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch models.StoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if patch.Status != nil {
		result, err := s.controller.MoveStory(r.Context(), id, *patch.Status)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		switch result.Outcome {
		case board.OutcomeNotFound:
			writeError(w, http.StatusNotFound, "story not found")
			return
		case board.OutcomeBlocked:
			writeJSON(w, http.StatusConflict, result)
			return
		}
		patch.Status = nil
		patch.Passes = nil
	}

	story, err := s.db.UpdateStory(r.Context(), id, &patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, story)
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := s.controller.DeleteStory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result.Outcome == board.OutcomeNotFound {
		writeError(w, http.StatusNotFound, "story not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleMoveStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status models.StoryStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status: "+string(req.Status))
		return
	}

	result, err := s.controller.MoveStory(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch result.Outcome {
	case board.OutcomeNotFound:
		writeError(w, http.StatusNotFound, "story not found")
	case board.OutcomeBlocked:
		writeJSON(w, http.StatusConflict, result)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
