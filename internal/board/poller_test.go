package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/byjit/jules-board/internal/jules"
	"github.com/byjit/jules-board/pkg/models"
)

func TestPollerZeroIntervalWaitsForCancel(t *testing.T) {
	store, _, c, _ := testSetup(true)
	p := NewPoller(c, store, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected Run to return after cancel")
	}
}

func TestPollerRefreshesProjects(t *testing.T) {
	store, sessions, c, _ := testSetup(true)
	sessions.report = &jules.RefreshReport{
		Polled:    1,
		Completed: []string{"s1"},
		Failed:    map[string]error{},
	}
	addStory(store, "s1", "login", models.StoryStatusDoing)

	p := NewPoller(c, store, 5*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
