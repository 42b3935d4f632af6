package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/byjit/jules-board/internal/jules"
	"github.com/byjit/jules-board/pkg/models"
)

type projectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	BranchName  *string `json:"branch_name,omitempty"`
	GitRepo     *string `json:"git_repo,omitempty"`
	GitBranch   *string `json:"git_branch,omitempty"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.db.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == nil || *req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p := &models.Project{Name: *req.Name}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.BranchName != nil {
		p.BranchName = *req.BranchName
	}
	if req.GitRepo != nil {
		p.GitRepo = *req.GitRepo
	}
	if req.GitBranch != nil {
		p.GitBranch = *req.GitBranch
	}

	if err := s.db.CreateProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.db.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := s.db.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.BranchName != nil {
		p.BranchName = *req.BranchName
	}
	if req.GitRepo != nil {
		p.GitRepo = *req.GitRepo
	}
	if req.GitBranch != nil {
		p.GitBranch = *req.GitBranch
	}

	if err := s.db.UpdateProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.db.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	// Stories go with the project via the cascade.
	if err := s.db.DeleteProject(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := s.controller.Refresh(r.Context(), id)
	if errors.Is(err, jules.ErrNotConfigured) {
		writeJSON(w, http.StatusOK, map[string]string{
			"notice": "automation not configured: set the Jules API key to enable session refresh",
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	failed := make(map[string]string, len(report.Failed))
	for id, ferr := range report.Failed {
		failed[id] = ferr.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"polled":    report.Polled,
		"completed": report.Completed,
		"failed":    failed,
	})
}

func (s *Server) handleCommitPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PlanID == "" {
		req.PlanID = "default"
	}

	p, err := s.db.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	if err := s.db.CommitPlan(r.Context(), id, req.PlanID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"committed": req.PlanID})
}

func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := s.db.WriteSnapshot(r.Context(), w); err != nil {
		s.logger.Error("snapshot export failed", "error", err)
	}
}

func (s *Server) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.db.ReadSnapshot(r.Context(), r.Body); err != nil {
		writeError(w, http.StatusBadRequest, "import failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}
