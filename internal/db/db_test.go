package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/byjit/jules-board/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}

func testProject(t *testing.T, db *DB, name string) *models.Project {
	t.Helper()
	p := &models.Project{Name: name}
	if err := db.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return p
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected journal_mode wal, got %s", mode)
	}

	var fk int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("Expected foreign_keys enabled (1), got %d", fk)
	}
}

func TestInit(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"projects", "stories"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestOnChange(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	calls := 0
	db.SetOnChange(func(ctx context.Context) { calls++ })

	testProject(t, db, "alpha")
	if calls != 1 {
		t.Errorf("Expected 1 onChange call after create, got %d", calls)
	}

	db.DisableOnChange()
	testProject(t, db, "beta")
	if calls != 1 {
		t.Errorf("Expected no onChange call while disabled, got %d", calls)
	}

	db.EnableOnChange()
	p := testProject(t, db, "gamma")
	if calls != 2 {
		t.Errorf("Expected onChange call after re-enable, got %d", calls)
	}

	if err := db.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("Failed to delete project: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected onChange call after delete, got %d", calls)
	}
}
