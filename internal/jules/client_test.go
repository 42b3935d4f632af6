package jules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/byjit/jules-board/pkg/models"
)

func testStory() *models.Story {
	return &models.Story{
		ID:                 "story-1",
		Title:              "Login page",
		Description:        "Users can authenticate",
		AcceptanceCriteria: []string{"form renders", "bad password rejected"},
	}
}

func testProjectModel() *models.Project {
	return &models.Project{
		ID:          "project-1",
		Name:        "webapp",
		Description: "A web app",
		GitRepo:     "sources/github/acme/webapp",
		GitBranch:   "main",
	}
}

func TestClientConfigured(t *testing.T) {
	if NewClient("http://x", "", time.Second).Configured() {
		t.Error("Expected client without key to be unconfigured")
	}
	if !NewClient("http://x", "key", time.Second).Configured() {
		t.Error("Expected client with key to be configured")
	}
}

func TestCreateSession(t *testing.T) {
	var gotPath, gotKey, gotContentType string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"name": "sessions/abc123"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	name, err := client.CreateSession(context.Background(), testStory(), testProjectModel())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if name != "sessions/abc123" {
		t.Errorf("Expected session name sessions/abc123, got %s", name)
	}
	if gotPath != "POST /sessions" {
		t.Errorf("Expected POST /sessions, got %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected API key header, got %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected JSON content type, got %q", gotContentType)
	}

	if gotBody["automationMode"] != "AUTO_CREATE_PR" {
		t.Errorf("Expected automationMode AUTO_CREATE_PR, got %v", gotBody["automationMode"])
	}
	if gotBody["title"] != "Login page" {
		t.Errorf("Expected story title, got %v", gotBody["title"])
	}

	source, _ := gotBody["sourceContext"].(map[string]any)
	if source["source"] != "sources/github/acme/webapp" {
		t.Errorf("Expected repo locator, got %v", source["source"])
	}
	repoCtx, _ := source["githubRepoContext"].(map[string]any)
	if repoCtx["startingBranch"] != "main" {
		t.Errorf("Expected starting branch main, got %v", repoCtx["startingBranch"])
	}

	prompt, _ := gotBody["prompt"].(string)
	if !strings.Contains(prompt, "A web app") {
		t.Errorf("Expected prompt to contain project description, got %q", prompt)
	}
	if !strings.Contains(prompt, "Users can authenticate") {
		t.Errorf("Expected prompt to contain story description, got %q", prompt)
	}
	if !strings.Contains(prompt, "- form renders") || !strings.Contains(prompt, "- bad password rejected") {
		t.Errorf("Expected bulleted acceptance criteria, got %q", prompt)
	}
}

func TestCreateSessionMissingName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	if _, err := client.CreateSession(context.Background(), testStory(), testProjectModel()); err == nil {
		t.Fatal("Expected error when response has no session name")
	}
}

func TestCreateSessionHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key", time.Second)
	_, err := client.CreateSession(context.Background(), testStory(), testProjectModel())
	if err == nil {
		t.Fatal("Expected error on 403")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected status code in error, got %v", err)
	}
}

func TestGetSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/abc123" {
			t.Errorf("Expected path /sessions/abc123, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]string{"name": "sessions/abc123", "state": "IN_PROGRESS"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	state, err := client.GetSession(context.Background(), "sessions/abc123")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if state != "IN_PROGRESS" {
		t.Errorf("Expected state IN_PROGRESS, got %s", state)
	}
}

func TestGetSessionMissingStateIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "sessions/abc123"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	state, err := client.GetSession(context.Background(), "sessions/abc123")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if state != models.SessionStateUnknown {
		t.Errorf("Expected UNKNOWN for missing state, got %s", state)
	}
}

func TestDeleteSession(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	if err := client.DeleteSession(context.Background(), "sessions/abc123"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/sessions/abc123" {
		t.Errorf("Expected DELETE /sessions/abc123, got %s %s", gotMethod, gotPath)
	}
}

func TestBuildPromptWithoutCriteria(t *testing.T) {
	story := testStory()
	story.AcceptanceCriteria = nil

	prompt, err := BuildPrompt(testProjectModel(), story)
	if err != nil {
		t.Fatalf("Failed to build prompt: %v", err)
	}
	if strings.Contains(prompt, "- ") {
		t.Errorf("Expected no bullets without criteria, got %q", prompt)
	}
	if strings.HasSuffix(prompt, "\n") {
		t.Error("Expected trailing newlines to be trimmed")
	}
}
