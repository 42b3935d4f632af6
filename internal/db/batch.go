package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/byjit/jules-board/pkg/models"
	"github.com/google/uuid"
)

// CommitPlan applies every staged story and dependency for a plan to a
// project in one transaction. Staged dependencies may reference staged
// stories by slug or title, or existing stories by id or slug; a reference
// that resolves to nothing fails the whole commit.
func (db *DB) CommitPlan(ctx context.Context, projectID, planID string) error {
	items := db.Staging.GetAndClear(planID)
	if len(items.Stories) == 0 && len(items.Dependencies) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Staged stories indexed for dependency resolution.
	bySlug := make(map[string]*models.Story)
	byTitle := make(map[string]*models.Story)

	for _, s := range items.Stories {
		s.ProjectID = projectID
		if s.Status == "" {
			s.Status = models.StoryStatusTodo
		}
		if err := db.createStory(ctx, tx, s); err != nil {
			return fmt.Errorf("failed to create staged story %s: %w", s.Title, err)
		}
		if s.Slug != "" {
			bySlug[s.Slug] = s
		}
		byTitle[s.Title] = s
	}

	for _, d := range items.Dependencies {
		target, err := db.resolvePlanStory(ctx, tx, projectID, d.StoryRef, bySlug, byTitle)
		if err != nil {
			return fmt.Errorf("failed to resolve story %q for dependency: %w", d.StoryRef, err)
		}

		// Titles only exist at plan time; rewrite them to the created id so
		// the stored reference stays resolvable by the gate.
		ref := d.DependsOnRef
		if staged, ok := byTitle[ref]; ok && bySlug[ref] == nil {
			if staged.Slug != "" {
				ref = staged.Slug
			} else {
				ref = staged.ID
			}
		}

		target.DependsOn = append(target.DependsOn, ref)
		dependsOn, err := json.Marshal(target.DependsOn)
		if err != nil {
			return fmt.Errorf("failed to marshal depends_on: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE stories SET depends_on = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			string(dependsOn), target.ID,
		); err != nil {
			return fmt.Errorf("failed to store staged dependency: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// resolvePlanStory finds the story a staged dependency attaches to: staged
// stories first (slug, then title), then existing rows by id or slug.
func (db *DB) resolvePlanStory(ctx context.Context, exec executor, projectID, ref string, bySlug, byTitle map[string]*models.Story) (*models.Story, error) {
	if s, ok := bySlug[ref]; ok {
		return s, nil
	}
	if s, ok := byTitle[ref]; ok {
		return s, nil
	}

	query := `
		SELECT ` + storyColumns + `
		FROM stories s
		LEFT JOIN projects p ON s.project_id = p.id
		WHERE s.project_id = ? AND (s.id = ? OR s.slug = ?)
	`
	s, err := db.queryStory(ctx, exec, query, projectID, ref, ref)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("story %s not found in project", ref)
	}
	return s, nil
}

func (db *DB) createProject(ctx context.Context, exec executor, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.GitRepo = models.NormalizeGitRepo(p.GitRepo)

	query := `
		INSERT INTO projects (id, name, description, branch_name, git_repo, git_branch)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := exec.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Description, p.BranchName, p.GitRepo, p.GitBranch,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (db *DB) createStory(ctx context.Context, exec executor, s *models.Story) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.AcceptanceCriteria == nil {
		s.AcceptanceCriteria = []string{}
	}
	if s.DependsOn == nil {
		s.DependsOn = []string{}
	}

	criteria, err := json.Marshal(s.AcceptanceCriteria)
	if err != nil {
		return fmt.Errorf("failed to marshal acceptance criteria: %w", err)
	}
	dependsOn, err := json.Marshal(s.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to marshal depends_on: %w", err)
	}

	passes := 0
	if s.Passes {
		passes = 1
	}

	query := `
		INSERT INTO stories (
			id, project_id, title, slug, description, acceptance_criteria,
			priority, passes, status, notes, depends_on, session_id, session_status
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err = exec.QueryRowContext(ctx, query,
		s.ID, s.ProjectID, s.Title, s.Slug, s.Description, string(criteria),
		s.Priority, passes, s.Status, s.Notes, string(dependsOn), s.SessionID, s.SessionStatus,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}
