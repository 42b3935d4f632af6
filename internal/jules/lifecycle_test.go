package jules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/byjit/jules-board/pkg/models"
)

type fakeAPI struct {
	configured bool

	createName string
	createErr  error
	createN    int

	states   map[string]string
	stateErr map[string]error

	deleted   []string
	deleteErr error
}

func (f *fakeAPI) Configured() bool { return f.configured }

func (f *fakeAPI) CreateSession(ctx context.Context, story *models.Story, project *models.Project) (string, error) {
	f.createN++
	return f.createName, f.createErr
}

func (f *fakeAPI) GetSession(ctx context.Context, name string) (string, error) {
	if err := f.stateErr[name]; err != nil {
		return "", err
	}
	return f.states[name], nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

type fakeStore struct {
	mu        sync.Mutex
	stories   map[string]*models.Story
	updates   int
	updateErr map[string]error
}

func newFakeStore(stories ...*models.Story) *fakeStore {
	fs := &fakeStore{stories: make(map[string]*models.Story), updateErr: make(map[string]error)}
	for _, s := range stories {
		fs.stories[s.ID] = s
	}
	return fs
}

func (f *fakeStore) UpdateStory(ctx context.Context, id string, patch *models.StoryPatch) (*models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return nil, err
	}
	s, ok := f.stories[id]
	if !ok {
		return nil, fmt.Errorf("story not found: %s", id)
	}
	f.updates++
	patch.Apply(s)
	return s, nil
}

func (f *fakeStore) ListInFlightStories(ctx context.Context, projectID string) ([]*models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Story
	for _, s := range f.stories {
		if s.ProjectID == projectID && s.Status == models.StoryStatusDoing && s.HasSession() {
			out = append(out, s)
		}
	}
	return out, nil
}

func automatableProject() *models.Project {
	return &models.Project{
		ID:        "p1",
		Name:      "webapp",
		GitRepo:   "sources/github/acme/webapp",
		GitBranch: "main",
	}
}

func inFlightStory(id, session string) *models.Story {
	s := models.NewStory("p1", "Story "+id)
	s.ID = id
	s.Status = models.StoryStatusDoing
	s.SessionID = &session
	status := models.SessionStateCreated
	s.SessionStatus = &status
	return s
}

func TestCreateSessionRecordsID(t *testing.T) {
	api := &fakeAPI{configured: true, createName: "sessions/abc"}
	story := models.NewStory("p1", "Login page")
	story.ID = "s1"
	store := newFakeStore(story)
	m := NewManager(api, store, nil)

	updated, err := m.CreateSession(context.Background(), story, automatableProject())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if !updated.HasSession() || *updated.SessionID != "sessions/abc" {
		t.Errorf("Expected recorded session id, got %+v", updated.SessionID)
	}
	if updated.SessionStatus == nil || *updated.SessionStatus != models.SessionStateCreated {
		t.Errorf("Expected session status CREATED, got %+v", updated.SessionStatus)
	}
}

func TestCreateSessionNotConfiguredNoMutation(t *testing.T) {
	api := &fakeAPI{configured: false}
	story := models.NewStory("p1", "Login page")
	story.ID = "s1"
	store := newFakeStore(story)
	m := NewManager(api, store, nil)

	_, err := m.CreateSession(context.Background(), story, automatableProject())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured, got %v", err)
	}
	if api.createN != 0 {
		t.Error("Expected no remote call without an API key")
	}
	if store.updates != 0 {
		t.Error("Expected no store mutation")
	}
}

func TestCreateSessionUnautomatableProject(t *testing.T) {
	api := &fakeAPI{configured: true, createName: "sessions/abc"}
	story := models.NewStory("p1", "Login page")
	story.ID = "s1"
	m := NewManager(api, newFakeStore(story), nil)

	project := automatableProject()
	project.GitBranch = ""

	if _, err := m.CreateSession(context.Background(), story, project); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured without a branch, got %v", err)
	}
	if api.createN != 0 {
		t.Error("Expected no remote call")
	}
}

func TestCreateSessionAlreadyExists(t *testing.T) {
	api := &fakeAPI{configured: true, createName: "sessions/new"}
	story := inFlightStory("s1", "sessions/old")
	m := NewManager(api, newFakeStore(story), nil)

	_, err := m.CreateSession(context.Background(), story, automatableProject())
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("Expected ErrSessionExists, got %v", err)
	}
	if api.createN != 0 {
		t.Error("Expected no remote call for a story with a session")
	}
}

func TestCreateSessionTransportFailureNoMutation(t *testing.T) {
	api := &fakeAPI{configured: true, createErr: errors.New("connection refused")}
	story := models.NewStory("p1", "Login page")
	story.ID = "s1"
	store := newFakeStore(story)
	m := NewManager(api, store, nil)

	if _, err := m.CreateSession(context.Background(), story, automatableProject()); err == nil {
		t.Fatal("Expected transport error")
	}
	if store.updates != 0 {
		t.Error("Expected no store mutation on transport failure")
	}
	if story.HasSession() {
		t.Error("Expected story to remain session-less so a retry is safe")
	}
}

func TestCreateSessionRecordFailureSurfacesDivergence(t *testing.T) {
	api := &fakeAPI{configured: true, createName: "sessions/abc"}
	story := models.NewStory("p1", "Login page")
	story.ID = "s1"
	store := newFakeStore(story)
	store.updateErr["s1"] = errors.New("disk full")
	m := NewManager(api, store, nil)

	_, err := m.CreateSession(context.Background(), story, automatableProject())
	if err == nil {
		t.Fatal("Expected error when the write fails after remote creation")
	}
	if got := err.Error(); !strings.Contains(got, "sessions/abc") {
		t.Errorf("Expected the orphaned session name in the error, got %q", got)
	}
}

func TestRefreshSessionsNotConfigured(t *testing.T) {
	m := NewManager(&fakeAPI{configured: false}, newFakeStore(), nil)

	if _, err := m.RefreshSessions(context.Background(), "p1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestRefreshSessionsEmpty(t *testing.T) {
	m := NewManager(&fakeAPI{configured: true}, newFakeStore(), nil)

	report, err := m.RefreshSessions(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}
	if report.Polled != 0 || len(report.Completed) != 0 || len(report.Failed) != 0 {
		t.Errorf("Expected empty report, got %+v", report)
	}
}

func TestRefreshSessionsBatch(t *testing.T) {
	stories := []*models.Story{
		inFlightStory("s1", "sessions/1"),
		inFlightStory("s2", "sessions/2"),
		inFlightStory("s3", "sessions/3"),
		inFlightStory("s4", "sessions/4"),
		inFlightStory("s5", "sessions/5"),
	}
	api := &fakeAPI{
		configured: true,
		states: map[string]string{
			"sessions/1": "IN_PROGRESS",
			"sessions/2": models.SessionStateCompleted,
			"sessions/4": models.SessionStateCompleted,
			"sessions/5": "PLANNING",
		},
		stateErr: map[string]error{
			"sessions/3": errors.New("boom"),
		},
	}
	store := newFakeStore(stories...)
	m := NewManager(api, store, nil)

	report, err := m.RefreshSessions(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}

	if report.Polled != 5 {
		t.Errorf("Expected 5 polled, got %d", report.Polled)
	}
	if len(report.Completed) != 2 {
		t.Errorf("Expected 2 completed, got %v", report.Completed)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("Expected 1 failure, got %v", report.Failed)
	}
	if _, ok := report.Failed["s3"]; !ok {
		t.Errorf("Expected s3 to fail, got %v", report.Failed)
	}

	// Completed sessions advance their stories; the failure touches nothing.
	if store.stories["s2"].Status != models.StoryStatusDone || !store.stories["s2"].Passes {
		t.Errorf("Expected s2 done and passing, got %+v", store.stories["s2"])
	}
	if store.stories["s3"].Status != models.StoryStatusDoing {
		t.Errorf("Expected s3 untouched, got %s", store.stories["s3"].Status)
	}
	if *store.stories["s1"].SessionStatus != "IN_PROGRESS" {
		t.Errorf("Expected mirrored state, got %s", *store.stories["s1"].SessionStatus)
	}
	if store.stories["s5"].Status != models.StoryStatusDoing {
		t.Errorf("Expected non-terminal state to leave status alone, got %s", store.stories["s5"].Status)
	}
}

func TestRefreshSessionsDeletedStoryTolerated(t *testing.T) {
	story := inFlightStory("s1", "sessions/1")
	api := &fakeAPI{
		configured: true,
		states:     map[string]string{"sessions/1": models.SessionStateCompleted},
	}
	store := newFakeStore(story)
	store.updateErr["s1"] = errors.New("story not found: s1")
	m := NewManager(api, store, nil)

	report, err := m.RefreshSessions(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Expected batch to survive a deleted story, got %v", err)
	}
	if len(report.Failed) != 1 {
		t.Errorf("Expected the deleted story reported as failed, got %+v", report)
	}
	if len(report.Completed) != 0 {
		t.Errorf("Expected no completion recorded, got %v", report.Completed)
	}
}

func TestDeleteSessionBestEffort(t *testing.T) {
	api := &fakeAPI{configured: true, deleteErr: errors.New("boom")}
	m := NewManager(api, newFakeStore(), nil)

	// A failing remote delete is swallowed.
	m.DeleteSession(context.Background(), inFlightStory("s1", "sessions/1"))
	if len(api.deleted) != 1 || api.deleted[0] != "sessions/1" {
		t.Errorf("Expected delete attempt for sessions/1, got %v", api.deleted)
	}

	// No session, no call.
	m.DeleteSession(context.Background(), models.NewStory("p1", "no session"))
	if len(api.deleted) != 1 {
		t.Error("Expected no delete call for a session-less story")
	}
}
