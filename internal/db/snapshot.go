package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/byjit/jules-board/pkg/models"
	"github.com/google/uuid"
)

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation.
func (db *DB) EnableAutoSnapshot(path string) {
	db.SetOnChange(func(ctx context.Context) {
		// Hooks are best-effort; a failed export must not fail the write
		// that triggered it.
		_ = db.ExportSnapshot(ctx, path)
	})
}

type snapshotRecord struct {
	RecordType string `json:"record_type"`
}

type snapshotMeta struct {
	RecordType string    `json:"record_type"`
	ExportedAt time.Time `json:"exported_at"`
}

type snapshotProject struct {
	RecordType string `json:"record_type"`
	models.Project
}

type snapshotStory struct {
	RecordType string `json:"record_type"`
	models.Story
}

// ExportSnapshot writes every project and story as JSONL, atomically via a
// temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	if err := db.WriteSnapshot(ctx, tempFile); err != nil {
		return err
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// WriteSnapshot streams the JSONL snapshot to w.
func (db *DB) WriteSnapshot(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(snapshotMeta{RecordType: "meta", ExportedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("failed to write meta record: %w", err)
	}

	projects, err := db.ListProjects(ctx)
	if err != nil {
		return err
	}

	for _, p := range projects {
		if err := enc.Encode(snapshotProject{RecordType: "project", Project: *p}); err != nil {
			return fmt.Errorf("failed to write project record: %w", err)
		}
	}
	for _, p := range projects {
		stories, err := db.ListStories(ctx, p.ID, nil)
		if err != nil {
			return err
		}
		for _, s := range stories {
			rec := snapshotStory{RecordType: "story", Story: *s}
			rec.ProjectName = p.Name
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("failed to write story record: %w", err)
			}
		}
	}
	return nil
}

// ImportSnapshot reads a JSONL snapshot and populates the database. The
// whole import runs in one transaction: a malformed line or unresolvable
// reference rolls everything back, so no partial state is ever persisted.
// Projects are matched by name and stories by slug (or title) within their
// project; matches are updated in place, everything else is inserted.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	return db.ReadSnapshot(ctx, file)
}

// ReadSnapshot ingests a JSONL snapshot from r, with ImportSnapshot's
// matching and rollback semantics.
func (db *DB) ReadSnapshot(ctx context.Context, r io.Reader) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Maps to translate snapshot IDs to local IDs
	projectSnapshotIDToLocal := make(map[string]string)
	storySnapshotIDToLocal := make(map[string]string)

	// Existing records by name for update-in-place matching
	projectNameMap := make(map[string]string)
	storyKeyMap := make(map[string]string)

	err = func() error {
		rows, err := tx.QueryContext(ctx, "SELECT id, name FROM projects")
		if err != nil {
			return fmt.Errorf("failed to query projects: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				return err
			}
			projectNameMap[name] = id
		}
		return rows.Err()
	}()
	if err != nil {
		return err
	}

	err = func() error {
		rows, err := tx.QueryContext(ctx, "SELECT s.id, s.title, s.slug, p.name FROM stories s JOIN projects p ON s.project_id = p.id")
		if err != nil {
			return fmt.Errorf("failed to query stories: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id, title, slug, projectName string
			if err := rows.Scan(&id, &title, &slug, &projectName); err != nil {
				return err
			}
			if slug != "" {
				storyKeyMap[projectName+"/slug:"+slug] = id
			}
			storyKeyMap[projectName+"/title:"+title] = id
		}
		return rows.Err()
	}()
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var base snapshotRecord
		if err := json.Unmarshal(line, &base); err != nil {
			return fmt.Errorf("failed to unmarshal base record: %w", err)
		}

		switch base.RecordType {
		case "meta":
			// Skip meta
		case "project":
			var p snapshotProject
			if err := json.Unmarshal(line, &p); err != nil {
				return fmt.Errorf("failed to unmarshal project: %w", err)
			}
			if p.Name == "" {
				return fmt.Errorf("project record missing name")
			}

			localID, exists := projectNameMap[p.Name]
			if exists {
				_, err = tx.ExecContext(ctx, `
					UPDATE projects
					SET description = ?, branch_name = ?, git_repo = ?, git_branch = ?, updated_at = CURRENT_TIMESTAMP
					WHERE id = ?`,
					p.Description, p.BranchName, models.NormalizeGitRepo(p.GitRepo), p.GitBranch, localID)
			} else {
				if p.ID == "" {
					p.ID = uuid.New().String()
				}
				localID = p.ID
				_, err = tx.ExecContext(ctx, `
					INSERT INTO projects (id, name, description, branch_name, git_repo, git_branch)
					VALUES (?, ?, ?, ?, ?, ?)`,
					p.ID, p.Name, p.Description, p.BranchName, models.NormalizeGitRepo(p.GitRepo), p.GitBranch)
			}
			if err != nil {
				return fmt.Errorf("failed to sync project %s: %w", p.Name, err)
			}
			if p.ID != "" {
				projectSnapshotIDToLocal[p.ID] = localID
			}
			projectNameMap[p.Name] = localID

		case "story":
			var s snapshotStory
			if err := json.Unmarshal(line, &s); err != nil {
				return fmt.Errorf("failed to unmarshal story: %w", err)
			}
			if s.Title == "" {
				return fmt.Errorf("story record missing title")
			}
			if s.Status == "" {
				s.Status = models.StoryStatusTodo
			}
			if !s.Status.Valid() {
				return fmt.Errorf("story %s has invalid status %q", s.Title, s.Status)
			}

			projectID, ok := projectSnapshotIDToLocal[s.ProjectID]
			if !ok {
				projectID, ok = projectNameMap[s.ProjectName]
			}
			if !ok {
				return fmt.Errorf("project not found for story %s: %s", s.Title, s.ProjectName)
			}

			// Rewrite dependency references that point at snapshot story ids;
			// slug references survive as-is.
			deps := make([]string, 0, len(s.DependsOn))
			for _, ref := range s.DependsOn {
				if local, ok := storySnapshotIDToLocal[ref]; ok {
					ref = local
				}
				deps = append(deps, ref)
			}

			localID, exists := storyKeyMap[s.ProjectName+"/slug:"+s.Slug]
			if !exists || s.Slug == "" {
				localID, exists = storyKeyMap[s.ProjectName+"/title:"+s.Title]
			}

			criteria, err := json.Marshal(s.AcceptanceCriteria)
			if err != nil {
				return fmt.Errorf("failed to marshal acceptance criteria: %w", err)
			}
			dependsOn, err := json.Marshal(deps)
			if err != nil {
				return fmt.Errorf("failed to marshal depends_on: %w", err)
			}
			passes := 0
			if s.Passes {
				passes = 1
			}

			if exists {
				_, err = tx.ExecContext(ctx, `
					UPDATE stories SET
						project_id = ?, slug = ?, description = ?, acceptance_criteria = ?, priority = ?,
						passes = ?, status = ?, notes = ?, depends_on = ?, session_id = ?, session_status = ?,
						updated_at = CURRENT_TIMESTAMP
					WHERE id = ?`,
					projectID, s.Slug, s.Description, string(criteria), s.Priority,
					passes, s.Status, s.Notes, string(dependsOn), s.SessionID, s.SessionStatus, localID)
			} else {
				if s.ID == "" {
					s.ID = uuid.New().String()
				}
				localID = s.ID
				_, err = tx.ExecContext(ctx, `
					INSERT INTO stories (
						id, project_id, title, slug, description, acceptance_criteria, priority,
						passes, status, notes, depends_on, session_id, session_status
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					s.ID, projectID, s.Title, s.Slug, s.Description, string(criteria), s.Priority,
					passes, s.Status, s.Notes, string(dependsOn), s.SessionID, s.SessionStatus)
			}
			if err != nil {
				return fmt.Errorf("failed to sync story %s: %w", s.Title, err)
			}
			if s.ID != "" {
				storySnapshotIDToLocal[s.ID] = localID
			}
			if s.Slug != "" {
				storyKeyMap[s.ProjectName+"/slug:"+s.Slug] = localID
			}
			storyKeyMap[s.ProjectName+"/title:"+s.Title] = localID

		default:
			return fmt.Errorf("unknown record type: %s", base.RecordType)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}
