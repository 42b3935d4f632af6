// Package board orchestrates move, add and delete requests against the
// dependency gate, the story store and the session lifecycle.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/byjit/jules-board/internal/gate"
	"github.com/byjit/jules-board/internal/jules"
	"github.com/byjit/jules-board/pkg/models"
)

// Store is the injectable state container all board mutations go through.
type Store interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	GetStory(ctx context.Context, id string) (*models.Story, error)
	ListStories(ctx context.Context, projectID string, status *models.StoryStatus) ([]*models.Story, error)
	CreateStory(ctx context.Context, s *models.Story) error
	UpdateStoryStatus(ctx context.Context, id string, status models.StoryStatus) (*models.Story, error)
	DeleteStory(ctx context.Context, id string) error
}

// Sessions is the lifecycle surface the controller drives.
type Sessions interface {
	Configured(project *models.Project) bool
	CreateSession(ctx context.Context, story *models.Story, project *models.Project) (*models.Story, error)
	RefreshSessions(ctx context.Context, projectID string) (*jules.RefreshReport, error)
	DeleteSession(ctx context.Context, story *models.Story)
}

type Outcome string

const (
	// OutcomeMoved: the transition was applied. A non-empty Notice means
	// session automation was skipped or failed; the move itself stands.
	OutcomeMoved Outcome = "moved"
	// OutcomeBlocked: the gate refused the move; Blocking lists the
	// dependency references at fault. Nothing was mutated.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeNotFound: no story with that id.
	OutcomeNotFound Outcome = "not_found"
)

// MoveResult is what every user-initiated move reports back: one specific,
// actionable outcome, never a silent no-op.
type MoveResult struct {
	Outcome        Outcome       `json:"outcome"`
	Story          *models.Story `json:"story,omitempty"`
	Blocking       []string      `json:"blocking,omitempty"`
	SessionCreated bool          `json:"session_created,omitempty"`
	Notice         string        `json:"notice,omitempty"`
}

type Controller struct {
	store    Store
	sessions Sessions
	logger   *slog.Logger
}

func NewController(store Store, sessions Sessions, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, sessions: sessions, logger: logger}
}

// MoveStory requests a column transition. The gate runs first; only an
// approved move touches the store, and only a move into doing on a
// session-less story reaches out to the automation API.
func (c *Controller) MoveStory(ctx context.Context, storyID string, target models.StoryStatus) (*MoveResult, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("invalid status: %s", target)
	}

	story, err := c.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return &MoveResult{Outcome: OutcomeNotFound}, nil
	}

	siblings, err := c.store.ListStories(ctx, story.ProjectID, nil)
	if err != nil {
		return nil, err
	}

	verdict := gate.Check(target, story, siblings)
	if !verdict.Allowed {
		return &MoveResult{
			Outcome:  OutcomeBlocked,
			Story:    story,
			Blocking: verdict.Blocking,
			Notice:   "dependencies not completed: " + strings.Join(verdict.Blocking, ", "),
		}, nil
	}

	updated, err := c.store.UpdateStoryStatus(ctx, storyID, target)
	if err != nil {
		return nil, err
	}

	result := &MoveResult{Outcome: OutcomeMoved, Story: updated}

	if target == models.StoryStatusDoing && !updated.HasSession() {
		result.Story, result.SessionCreated, result.Notice = c.startSession(ctx, updated)
	}

	return result, nil
}

// startSession tries to create a remote session for a story that just
// entered doing. Failures never undo the move: not-configured yields an
// informational notice and a manual-only story, a transport failure yields
// a retryable notice.
func (c *Controller) startSession(ctx context.Context, story *models.Story) (*models.Story, bool, string) {
	project, err := c.store.GetProject(ctx, story.ProjectID)
	if err != nil || project == nil {
		c.logger.Warn("project lookup failed for session create", "story", story.ID, "error", err)
		return story, false, "remote session not created: project unavailable"
	}

	updated, err := c.sessions.CreateSession(ctx, story, project)
	switch {
	case errors.Is(err, jules.ErrNotConfigured):
		return story, false, "automation not configured: set the Jules API key, repository and branch to enable it"
	case errors.Is(err, jules.ErrSessionExists):
		return story, false, ""
	case err != nil:
		c.logger.Warn("session create failed", "story", story.ID, "error", err)
		return story, false, "failed to create remote session; moving back to doing will retry"
	}
	return updated, true, ""
}

// AddStory creates a backlog story with defaults. No dependency or session
// logic runs.
func (c *Controller) AddStory(ctx context.Context, projectID, title string) (*models.Story, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("story title is required")
	}

	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project not found: %s", projectID)
	}

	story := models.NewStory(projectID, strings.TrimSpace(title))
	if err := c.store.CreateStory(ctx, story); err != nil {
		return nil, err
	}
	return story, nil
}

// DeleteStory removes a story, attempting remote session teardown first.
// The teardown is best-effort: its failure never blocks local deletion.
func (c *Controller) DeleteStory(ctx context.Context, storyID string) (*MoveResult, error) {
	story, err := c.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return &MoveResult{Outcome: OutcomeNotFound}, nil
	}

	if story.HasSession() {
		c.sessions.DeleteSession(ctx, story)
	}

	if err := c.store.DeleteStory(ctx, storyID); err != nil {
		return nil, err
	}
	return &MoveResult{Outcome: OutcomeMoved, Story: story}, nil
}

// Refresh polls remote sessions for a project's in-flight stories.
func (c *Controller) Refresh(ctx context.Context, projectID string) (*jules.RefreshReport, error) {
	return c.sessions.RefreshSessions(ctx, projectID)
}
