package jules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/byjit/jules-board/pkg/models"
)

// ErrNotConfigured signals that automation preconditions are unmet: the API
// key, repository locator, or branch is missing. Nothing was mutated and no
// network call was made; the condition is informational, never retried.
var ErrNotConfigured = errors.New("jules automation not configured")

// ErrSessionExists signals that the story already has a recorded session.
// At most one concurrent remote session exists per story.
var ErrSessionExists = errors.New("story already has a session")

// SessionAPI is the outbound surface the lifecycle manager needs.
type SessionAPI interface {
	Configured() bool
	CreateSession(ctx context.Context, story *models.Story, project *models.Project) (string, error)
	GetSession(ctx context.Context, name string) (string, error)
	DeleteSession(ctx context.Context, name string) error
}

// StoryStore is the slice of the store the lifecycle manager writes through.
type StoryStore interface {
	UpdateStory(ctx context.Context, id string, patch *models.StoryPatch) (*models.Story, error)
	ListInFlightStories(ctx context.Context, projectID string) ([]*models.Story, error)
}

// Manager ties remote sessions to stories: create on demand, poll on
// refresh, tear down best-effort on delete.
type Manager struct {
	api    SessionAPI
	store  StoryStore
	logger *slog.Logger
}

func NewManager(api SessionAPI, store StoryStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{api: api, store: store, logger: logger}
}

// Configured reports whether session creation is possible for the project.
func (m *Manager) Configured(project *models.Project) bool {
	return m.api.Configured() && project.Automatable()
}

// CreateSession starts a remote session for the story and records its id.
// Preconditions: the story has no session yet and the project is fully
// configured. On transport failure nothing is persisted, so a retry is safe.
func (m *Manager) CreateSession(ctx context.Context, story *models.Story, project *models.Project) (*models.Story, error) {
	if story.HasSession() {
		return nil, ErrSessionExists
	}
	if !m.Configured(project) {
		return nil, ErrNotConfigured
	}

	name, err := m.api.CreateSession(ctx, story, project)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	status := models.SessionStateCreated
	updated, err := m.store.UpdateStory(ctx, story.ID, &models.StoryPatch{
		SessionID:     &name,
		SessionStatus: &status,
	})
	if err != nil {
		// The remote session exists but the durable write failed; surface
		// the divergence instead of pretending either side won.
		return nil, fmt.Errorf("session %s created but not recorded: %w", name, err)
	}

	m.logger.Info("session created", "story", story.ID, "session", name)
	return updated, nil
}

// RefreshReport aggregates a refresh batch. Every in-flight story gets
// exactly one fetch; failures are per-story and never abort the batch.
type RefreshReport struct {
	Polled    int
	Completed []string
	Failed    map[string]error
}

// RefreshSessions polls the remote state of every story in the project that
// is locally doing with a recorded session. The remote state string is
// mirrored into the story; the COMPLETED sentinel additionally forces local
// status to done and marks the story passing. This is the only path that
// auto-advances a story to done.
func (m *Manager) RefreshSessions(ctx context.Context, projectID string) (*RefreshReport, error) {
	if !m.api.Configured() {
		return nil, ErrNotConfigured
	}

	stories, err := m.store.ListInFlightStories(ctx, projectID)
	if err != nil {
		return nil, err
	}

	report := &RefreshReport{Failed: make(map[string]error)}
	if len(stories) == 0 {
		return report, nil
	}
	report.Polled = len(stories)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, story := range stories {
		wg.Add(1)
		go func(story *models.Story) {
			defer wg.Done()

			state, err := m.api.GetSession(ctx, *story.SessionID)
			if err != nil {
				m.logger.Warn("session refresh failed", "story", story.ID, "error", err)
				mu.Lock()
				report.Failed[story.ID] = err
				mu.Unlock()
				return
			}

			patch := &models.StoryPatch{SessionStatus: &state}
			completed := state == models.SessionStateCompleted
			if completed {
				done := models.StoryStatusDone
				passes := true
				patch.Status = &done
				patch.Passes = &passes
			}

			if _, err := m.store.UpdateStory(ctx, story.ID, patch); err != nil {
				// The story may have been deleted mid-refresh; its result is
				// discarded without disturbing the batch.
				m.logger.Warn("session state not recorded", "story", story.ID, "error", err)
				mu.Lock()
				report.Failed[story.ID] = err
				mu.Unlock()
				return
			}

			if completed {
				mu.Lock()
				report.Completed = append(report.Completed, story.ID)
				mu.Unlock()
			}
		}(story)
	}
	wg.Wait()

	return report, nil
}

// DeleteSession tears down the story's remote session, best-effort. A
// transport failure is logged and swallowed; local deletion never waits on
// remote cleanup, and a stale remote session is acceptable debt.
func (m *Manager) DeleteSession(ctx context.Context, story *models.Story) {
	if !story.HasSession() || !m.api.Configured() {
		return
	}
	if err := m.api.DeleteSession(ctx, *story.SessionID); err != nil {
		m.logger.Warn("session delete failed", "story", story.ID, "session", *story.SessionID, "error", err)
	}
}
