package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/byjit/jules-board/pkg/models"
)

// storyColumns is the SELECT list shared by every story query. The project
// name is joined in as a display helper.
const storyColumns = `
	s.id, s.project_id, s.title, s.slug, s.description, s.acceptance_criteria,
	s.priority, s.passes, s.status, s.notes, s.depends_on,
	s.session_id, s.session_status, s.created_at, s.updated_at,
	p.name as project_name
`

// CreateStory inserts a new story. If s.ID is empty, a new UUID is generated.
func (db *DB) CreateStory(ctx context.Context, s *models.Story) error {
	if err := db.createStory(ctx, db.DB, s); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// GetStory retrieves a story by its ID.
func (db *DB) GetStory(ctx context.Context, id string) (*models.Story, error) {
	query := `
		SELECT ` + storyColumns + `
		FROM stories s
		LEFT JOIN projects p ON s.project_id = p.id
		WHERE s.id = ?
	`
	return db.queryStory(ctx, db.DB, query, id)
}

// GetStoryBySlug retrieves a story by its slug within a project.
func (db *DB) GetStoryBySlug(ctx context.Context, projectID, slug string) (*models.Story, error) {
	query := `
		SELECT ` + storyColumns + `
		FROM stories s
		LEFT JOIN projects p ON s.project_id = p.id
		WHERE s.project_id = ? AND s.slug = ?
	`
	return db.queryStory(ctx, db.DB, query, projectID, slug)
}

// ListStories returns all stories in a project, optionally filtered by status.
func (db *DB) ListStories(ctx context.Context, projectID string, status *models.StoryStatus) ([]*models.Story, error) {
	query := `
		SELECT ` + storyColumns + `
		FROM stories s
		LEFT JOIN projects p ON s.project_id = p.id
		WHERE s.project_id = ?
	`
	args := []interface{}{projectID}

	if status != nil {
		query += " AND s.status = ?"
		args = append(args, *status)
	}

	query += " ORDER BY s.priority ASC, s.created_at ASC"

	return db.queryStories(ctx, query, args...)
}

// ListInFlightStories returns the stories the refresh batch polls: local
// status doing with a recorded session. Stories already done are excluded so
// re-running refresh cannot touch them.
func (db *DB) ListInFlightStories(ctx context.Context, projectID string) ([]*models.Story, error) {
	query := `
		SELECT ` + storyColumns + `
		FROM stories s
		LEFT JOIN projects p ON s.project_id = p.id
		WHERE s.project_id = ? AND s.status = 'doing' AND s.session_id IS NOT NULL AND s.session_id != ''
		ORDER BY s.priority ASC, s.created_at ASC
	`
	return db.queryStories(ctx, query, projectID)
}

// UpdateStory applies a partial update: the current row is read, non-nil
// patch fields are merged over it, and the whole row is written back. The
// merge either fully applies or fails; no field subset is ever persisted.
func (db *DB) UpdateStory(ctx context.Context, id string, patch *models.StoryPatch) (*models.Story, error) {
	current, err := db.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("story not found: %s", id)
	}

	patch.Apply(current)
	if !current.Status.Valid() {
		return nil, fmt.Errorf("invalid status: %s", current.Status)
	}

	criteria, err := json.Marshal(current.AcceptanceCriteria)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal acceptance criteria: %w", err)
	}
	dependsOn, err := json.Marshal(current.DependsOn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal depends_on: %w", err)
	}

	passes := 0
	if current.Passes {
		passes = 1
	}

	query := `
		UPDATE stories
		SET title = ?, slug = ?, description = ?, acceptance_criteria = ?, priority = ?,
		    passes = ?, status = ?, notes = ?, depends_on = ?, session_id = ?, session_status = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING updated_at
	`
	err = db.QueryRowContext(ctx, query,
		current.Title, current.Slug, current.Description, string(criteria), current.Priority,
		passes, current.Status, current.Notes, string(dependsOn), current.SessionID, current.SessionStatus,
		id,
	).Scan(&current.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("story not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update story: %w", err)
	}

	db.triggerChange(ctx)
	return current, nil
}

// UpdateStoryStatus is the status specialization of UpdateStory. Moving to
// done also marks the story as passing; moving away clears the flag unless
// the caller set it explicitly beforehand.
func (db *DB) UpdateStoryStatus(ctx context.Context, id string, status models.StoryStatus) (*models.Story, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status: %s", status)
	}

	passes := status == models.StoryStatusDone
	return db.UpdateStory(ctx, id, &models.StoryPatch{Status: &status, Passes: &passes})
}

// DeleteStory removes a story. Remote session cleanup is the caller's
// responsibility; the store enforces no ordering between the two.
func (db *DB) DeleteStory(ctx context.Context, id string) error {
	query := `DELETE FROM stories WHERE id = ?`
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("story not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) queryStory(ctx context.Context, exec executor, query string, args ...interface{}) (*models.Story, error) {
	row := exec.QueryRowContext(ctx, query, args...)
	s, err := scanStory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return s, nil
}

func (db *DB) queryStories(ctx context.Context, query string, args ...interface{}) ([]*models.Story, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []*models.Story
	for rows.Next() {
		s, err := scanStory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stories, nil
}

func scanStory(scan func(dest ...any) error) (*models.Story, error) {
	s := &models.Story{}
	var criteria, dependsOn string
	var passes int
	err := scan(
		&s.ID, &s.ProjectID, &s.Title, &s.Slug, &s.Description, &criteria,
		&s.Priority, &passes, &s.Status, &s.Notes, &dependsOn,
		&s.SessionID, &s.SessionStatus, &s.CreatedAt, &s.UpdatedAt,
		&s.ProjectName,
	)
	if err != nil {
		return nil, err
	}

	s.Passes = passes == 1
	if err := json.Unmarshal([]byte(criteria), &s.AcceptanceCriteria); err != nil {
		return nil, fmt.Errorf("bad acceptance_criteria json: %w", err)
	}
	if err := json.Unmarshal([]byte(dependsOn), &s.DependsOn); err != nil {
		return nil, fmt.Errorf("bad depends_on json: %w", err)
	}
	return s, nil
}
