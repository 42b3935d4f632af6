// Package server exposes the board over HTTP as a JSON API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/byjit/jules-board/internal/board"
	"github.com/byjit/jules-board/internal/db"
)

type Server struct {
	db         *db.DB
	controller *board.Controller
	apiToken   string
	logger     *slog.Logger
	server     *http.Server
}

func NewServer(database *db.DB, controller *board.Controller, apiToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{db: database, controller: controller, apiToken: apiToken, logger: logger}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(s.apiToken))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Get("/{id}", s.handleGetProject)
			r.Patch("/{id}", s.handleUpdateProject)
			r.Delete("/{id}", s.handleDeleteProject)
			r.Get("/{id}/stories", s.handleListStories)
			r.Post("/{id}/stories", s.handleAddStory)
			r.Post("/{id}/refresh", s.handleRefresh)
			r.Post("/{id}/plan/commit", s.handleCommitPlan)
		})

		r.Route("/stories", func(r chi.Router) {
			r.Get("/{id}", s.handleGetStory)
			r.Patch("/{id}", s.handleUpdateStory)
			r.Delete("/{id}", s.handleDeleteStory)
			r.Post("/{id}/move", s.handleMoveStory)
		})

		r.Get("/snapshot", s.handleExportSnapshot)
		r.Post("/snapshot", s.handleImportSnapshot)
	})

	return r
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
