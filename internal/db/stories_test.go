package db

import (
	"context"
	"testing"

	"github.com/byjit/jules-board/pkg/models"
)

func TestCreateStoryDefaults(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")
	s := models.NewStory(p.ID, "Login page")
	if err := db.CreateStory(ctx, s); err != nil {
		t.Fatalf("Failed to create story: %v", err)
	}

	got, err := db.GetStory(ctx, s.ID)
	if err != nil {
		t.Fatalf("Failed to get story: %v", err)
	}
	if got == nil {
		t.Fatal("Expected story, got nil")
	}
	if got.Status != models.StoryStatusTodo {
		t.Errorf("Expected status todo, got %s", got.Status)
	}
	if got.Priority != models.DefaultPriority {
		t.Errorf("Expected priority %d, got %d", models.DefaultPriority, got.Priority)
	}
	if got.Passes {
		t.Error("Expected passes false")
	}
	if got.AcceptanceCriteria == nil || got.DependsOn == nil {
		t.Error("Expected empty slices, not nil")
	}
	if got.ProjectName != "webapp" {
		t.Errorf("Expected project name webapp, got %s", got.ProjectName)
	}
}

func TestGetStoryBySlug(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")
	s := models.NewStory(p.ID, "Login page")
	s.Slug = "login"
	if err := db.CreateStory(ctx, s); err != nil {
		t.Fatalf("Failed to create story: %v", err)
	}

	got, err := db.GetStoryBySlug(ctx, p.ID, "login")
	if err != nil {
		t.Fatalf("Failed to get story by slug: %v", err)
	}
	if got == nil || got.ID != s.ID {
		t.Errorf("Expected story %s, got %+v", s.ID, got)
	}

	missing, err := db.GetStoryBySlug(ctx, p.ID, "nope")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing slug, got %+v", missing)
	}
}

func TestListStoriesOrderAndFilter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")

	low := models.NewStory(p.ID, "Low priority")
	low.Priority = 5
	high := models.NewStory(p.ID, "High priority")
	high.Priority = 1
	done := models.NewStory(p.ID, "Finished")
	done.Status = models.StoryStatusDone

	for _, s := range []*models.Story{low, high, done} {
		if err := db.CreateStory(ctx, s); err != nil {
			t.Fatalf("Failed to create story: %v", err)
		}
	}

	all, err := db.ListStories(ctx, p.ID, nil)
	if err != nil {
		t.Fatalf("Failed to list stories: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 stories, got %d", len(all))
	}
	if all[0].ID != high.ID {
		t.Errorf("Expected highest priority first, got %s", all[0].Title)
	}

	status := models.StoryStatusDone
	filtered, err := db.ListStories(ctx, p.ID, &status)
	if err != nil {
		t.Fatalf("Failed to list filtered stories: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != done.ID {
		t.Errorf("Expected only the done story, got %d stories", len(filtered))
	}
}

func TestListInFlightStories(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")

	sessionID := "sessions/abc"
	sessionStatus := models.SessionStateCreated

	withSession := models.NewStory(p.ID, "Has session")
	withSession.Status = models.StoryStatusDoing
	withSession.SessionID = &sessionID
	withSession.SessionStatus = &sessionStatus

	manual := models.NewStory(p.ID, "Manual doing")
	manual.Status = models.StoryStatusDoing

	todo := models.NewStory(p.ID, "Still todo")

	for _, s := range []*models.Story{withSession, manual, todo} {
		if err := db.CreateStory(ctx, s); err != nil {
			t.Fatalf("Failed to create story: %v", err)
		}
	}

	inFlight, err := db.ListInFlightStories(ctx, p.ID)
	if err != nil {
		t.Fatalf("Failed to list in-flight stories: %v", err)
	}
	if len(inFlight) != 1 || inFlight[0].ID != withSession.ID {
		t.Errorf("Expected only the story with a session, got %d stories", len(inFlight))
	}
}

func TestUpdateStoryPatchMerge(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")
	s := models.NewStory(p.ID, "Login page")
	s.Description = "original"
	s.Notes = "keep me"
	if err := db.CreateStory(ctx, s); err != nil {
		t.Fatalf("Failed to create story: %v", err)
	}

	title := "Login + signup"
	criteria := []string{"user can log in", "user can sign up"}
	deps := []string{"schema"}
	got, err := db.UpdateStory(ctx, s.ID, &models.StoryPatch{
		Title:              &title,
		AcceptanceCriteria: &criteria,
		DependsOn:          &deps,
	})
	if err != nil {
		t.Fatalf("Failed to update story: %v", err)
	}

	if got.Title != title {
		t.Errorf("Expected patched title, got %s", got.Title)
	}
	if got.Description != "original" || got.Notes != "keep me" {
		t.Error("Expected unpatched fields to survive the merge")
	}
	if len(got.AcceptanceCriteria) != 2 || len(got.DependsOn) != 1 {
		t.Errorf("Expected patched slices, got %v / %v", got.AcceptanceCriteria, got.DependsOn)
	}

	// Round-trip through storage.
	reread, err := db.GetStory(ctx, s.ID)
	if err != nil {
		t.Fatalf("Failed to reread story: %v", err)
	}
	if reread.Title != title || reread.Description != "original" {
		t.Errorf("Expected persisted merge, got %+v", reread)
	}
}

func TestUpdateStoryRejectsInvalidStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")
	s := models.NewStory(p.ID, "Login page")
	if err := db.CreateStory(ctx, s); err != nil {
		t.Fatalf("Failed to create story: %v", err)
	}

	bad := models.StoryStatus("archived")
	if _, err := db.UpdateStory(ctx, s.ID, &models.StoryPatch{Status: &bad}); err == nil {
		t.Fatal("Expected error for invalid status")
	}
}

func TestUpdateStoryNotFound(t *testing.T) {
	db := testDB(t)

	title := "anything"
	_, err := db.UpdateStory(context.Background(), "no-such-id", &models.StoryPatch{Title: &title})
	if err == nil {
		t.Fatal("Expected error for missing story")
	}
}

func TestUpdateStoryStatusSetsPasses(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")
	s := models.NewStory(p.ID, "Login page")
	if err := db.CreateStory(ctx, s); err != nil {
		t.Fatalf("Failed to create story: %v", err)
	}

	got, err := db.UpdateStoryStatus(ctx, s.ID, models.StoryStatusDone)
	if err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if got.Status != models.StoryStatusDone || !got.Passes {
		t.Errorf("Expected done story to pass, got status=%s passes=%v", got.Status, got.Passes)
	}

	got, err = db.UpdateStoryStatus(ctx, s.ID, models.StoryStatusTodo)
	if err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if got.Status != models.StoryStatusTodo || got.Passes {
		t.Errorf("Expected move away from done to clear passes, got status=%s passes=%v", got.Status, got.Passes)
	}
}

func TestDeleteStory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := testProject(t, db, "webapp")
	s := models.NewStory(p.ID, "Login page")
	if err := db.CreateStory(ctx, s); err != nil {
		t.Fatalf("Failed to create story: %v", err)
	}

	if err := db.DeleteStory(ctx, s.ID); err != nil {
		t.Fatalf("Failed to delete story: %v", err)
	}
	if err := db.DeleteStory(ctx, s.ID); err == nil {
		t.Fatal("Expected error deleting a missing story")
	}
}
