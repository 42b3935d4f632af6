package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/byjit/jules-board/internal/board"
	"github.com/byjit/jules-board/internal/db"
	"github.com/byjit/jules-board/pkg/models"
)

// NewServer creates a new MCP server exposing the board as tools.
func NewServer(database *db.DB, controller *board.Controller) *server.MCPServer {
	s := server.NewMCPServer("JulesBoard", "0.1.0")

	// Project Management
	s.AddTool(mcp.NewTool("create_project",
		mcp.WithDescription("Create a new project."),
		mcp.WithString("name", mcp.Description("Project name (unique)"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Project description")),
		mcp.WithString("git_repo", mcp.Description("GitHub repository (URL or owner/repo); required for automation")),
		mcp.WithString("git_branch", mcp.Description("Starting branch for automation sessions")),
	), createProjectHandler(database))

	s.AddTool(mcp.NewTool("update_project",
		mcp.WithDescription("Update an existing project."),
		mcp.WithString("name", mcp.Description("Project name"), mcp.Required()),
		mcp.WithString("new_name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("git_repo", mcp.Description("New repository locator")),
		mcp.WithString("git_branch", mcp.Description("New starting branch")),
	), updateProjectHandler(database))

	s.AddTool(mcp.NewTool("delete_project",
		mcp.WithDescription("Delete a project (cascades to its stories)."),
		mcp.WithString("name", mcp.Description("Project name"), mcp.Required()),
	), deleteProjectHandler(database))

	s.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List all projects."),
	), listProjectsHandler(database))

	// Story Management
	s.AddTool(mcp.NewTool("add_story",
		mcp.WithDescription("Add a user story to a project's backlog with default fields."),
		mcp.WithString("project_name", mcp.Description("Project name"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Story title"), mcp.Required()),
	), addStoryHandler(database, controller))

	s.AddTool(mcp.NewTool("update_story",
		mcp.WithDescription("Edit story fields. Status changes go through the dependency gate."),
		mcp.WithString("story_id", mcp.Description("Story id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("slug", mcp.Description("New slug")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("acceptance_criteria", mcp.Description("Acceptance criteria, one per line")),
		mcp.WithNumber("priority", mcp.Description("Priority (lower is more urgent)")),
		mcp.WithString("notes", mcp.Description("New notes")),
		mcp.WithString("depends_on", mcp.Description("Dependencies as comma separated story ids or slugs")),
	), updateStoryHandler(database))

	s.AddTool(mcp.NewTool("move_story",
		mcp.WithDescription("Move a story between board columns (todo, doing, done). Blocked moves report the blocking dependencies; moving to doing may start a remote session."),
		mcp.WithString("story_id", mcp.Description("Story id"), mcp.Required()),
		mcp.WithString("status", mcp.Description("Target status (todo|doing|done)"), mcp.Required()),
	), moveStoryHandler(controller))

	s.AddTool(mcp.NewTool("delete_story",
		mcp.WithDescription("Delete a story. Any remote session is torn down best-effort."),
		mcp.WithString("story_id", mcp.Description("Story id"), mcp.Required()),
	), deleteStoryHandler(controller))

	s.AddTool(mcp.NewTool("list_stories",
		mcp.WithDescription("List a project's stories with optional status filter."),
		mcp.WithString("project_name", mcp.Description("Project name"), mcp.Required()),
		mcp.WithString("status", mcp.Description("Filter by status (todo|doing|done)")),
	), listStoriesHandler(database))

	s.AddTool(mcp.NewTool("get_story",
		mcp.WithDescription("Get a single story by id."),
		mcp.WithString("story_id", mcp.Description("Story id"), mcp.Required()),
	), getStoryHandler(database))

	// Sessions
	s.AddTool(mcp.NewTool("refresh_sessions",
		mcp.WithDescription("Poll remote session state for every in-flight story in a project. Completed sessions move their stories to done."),
		mcp.WithString("project_name", mcp.Description("Project name"), mcp.Required()),
	), refreshSessionsHandler(database, controller))

	s.AddTool(mcp.NewTool("board_status",
		mcp.WithDescription("Summarize a project's board: story counts per column and in-flight sessions."),
		mcp.WithString("project_name", mcp.Description("Project name"), mcp.Required()),
	), boardStatusHandler(database))

	// Staged plans
	s.AddTool(mcp.NewTool("stage_story",
		mcp.WithDescription("Propose a new story. Changes are staged and must be committed to take effect."),
		mcp.WithString("title", mcp.Description("Story title"), mcp.Required()),
		mcp.WithString("slug", mcp.Description("Story slug (optional, usable as a dependency reference)")),
		mcp.WithString("description", mcp.Description("Story description")),
		mcp.WithString("acceptance_criteria", mcp.Description("Acceptance criteria, one per line")),
		mcp.WithNumber("priority", mcp.Description("Priority (lower is more urgent)")),
		mcp.WithString("plan_id", mcp.Description("Plan ID for staging changes (defaults to 'default').")),
	), stageStoryHandler(database))

	s.AddTool(mcp.NewTool("stage_dependency",
		mcp.WithDescription("Propose a dependency between two stories. Changes are staged and must be committed to take effect."),
		mcp.WithString("story_ref", mcp.Description("Slug or title of the dependent story"), mcp.Required()),
		mcp.WithString("depends_on_ref", mcp.Description("Slug, title or id of the prerequisite story"), mcp.Required()),
		mcp.WithString("plan_id", mcp.Description("Plan ID for staging changes (defaults to 'default').")),
	), stageDependencyHandler(database))

	s.AddTool(mcp.NewTool("commit_plan",
		mcp.WithDescription("Commit all staged stories and dependencies of a plan into a project at once."),
		mcp.WithString("project_name", mcp.Description("Project name"), mcp.Required()),
		mcp.WithString("plan_id", mcp.Description("Plan ID (defaults to 'default').")),
	), commitPlanHandler(database))

	s.AddTool(mcp.NewTool("list_staged_changes",
		mcp.WithDescription("List all staged changes for a plan. Use this to review a proposed plan before committing."),
		mcp.WithString("plan_id", mcp.Description("Plan ID (defaults to 'default').")),
	), listStagedChangesHandler(database))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func resolveProject(ctx context.Context, database *db.DB, name string) (*models.Project, *mcp.CallToolResult) {
	p, err := database.GetProjectByName(ctx, name)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	if p == nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Project with name '%s' not found", name))
	}
	return p, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitRefs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, ref := range strings.Split(s, ",") {
		ref = strings.TrimSpace(ref)
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

func createProjectHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := &models.Project{
			Name:        mcp.ParseString(request, "name", ""),
			Description: mcp.ParseString(request, "description", ""),
			GitRepo:     mcp.ParseString(request, "git_repo", ""),
			GitBranch:   mcp.ParseString(request, "git_branch", ""),
		}

		if err := database.CreateProject(ctx, p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Project '%s' created with id %s", p.Name, p.ID)), nil
	}
}

func updateProjectHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := mcp.ParseString(request, "name", "")

		p, errResult := resolveProject(ctx, database, name)
		if errResult != nil {
			return errResult, nil
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if newName, ok := args["new_name"].(string); ok {
			p.Name = newName
		}
		if description, ok := args["description"].(string); ok {
			p.Description = description
		}
		if gitRepo, ok := args["git_repo"].(string); ok {
			p.GitRepo = gitRepo
		}
		if gitBranch, ok := args["git_branch"].(string); ok {
			p.GitBranch = gitBranch
		}

		if err := database.UpdateProject(ctx, p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Project updated successfully"), nil
	}
}

func deleteProjectHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := mcp.ParseString(request, "name", "")

		p, errResult := resolveProject(ctx, database, name)
		if errResult != nil {
			return errResult, nil
		}

		if err := database.DeleteProject(ctx, p.ID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Project deleted successfully"), nil
	}
}

func listProjectsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := database.ListProjects(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]interface{}{"projects": projects})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func addStoryHandler(database *db.DB, controller *board.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectName := mcp.ParseString(request, "project_name", "")
		title := mcp.ParseString(request, "title", "")

		p, errResult := resolveProject(ctx, database, projectName)
		if errResult != nil {
			return errResult, nil
		}

		story, err := controller.AddStory(ctx, p.ID, title)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Story '%s' added to project '%s' with id %s", story.Title, projectName, story.ID)), nil
	}
}

func updateStoryHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storyID := mcp.ParseString(request, "story_id", "")

		patch := &models.StoryPatch{}
		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			patch.Title = &title
		}
		if slug, ok := args["slug"].(string); ok {
			patch.Slug = &slug
		}
		if description, ok := args["description"].(string); ok {
			patch.Description = &description
		}
		if criteria, ok := args["acceptance_criteria"].(string); ok {
			lines := splitLines(criteria)
			if lines == nil {
				lines = []string{}
			}
			patch.AcceptanceCriteria = &lines
		}
		if priority, ok := args["priority"].(float64); ok {
			p := int(priority)
			patch.Priority = &p
		}
		if notes, ok := args["notes"].(string); ok {
			patch.Notes = &notes
		}
		if deps, ok := args["depends_on"].(string); ok {
			refs := splitRefs(deps)
			if refs == nil {
				refs = []string{}
			}
			patch.DependsOn = &refs
		}

		story, err := database.UpdateStory(ctx, storyID, patch)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(story)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func moveStoryHandler(controller *board.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storyID := mcp.ParseString(request, "story_id", "")
		status := models.StoryStatus(mcp.ParseString(request, "status", ""))

		result, err := controller.MoveStory(ctx, storyID, status)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		switch result.Outcome {
		case board.OutcomeNotFound:
			return mcp.NewToolResultError(fmt.Sprintf("Story with id '%s' not found", storyID)), nil
		case board.OutcomeBlocked:
			return mcp.NewToolResultError(fmt.Sprintf("Cannot move story. Dependencies not completed: %s", strings.Join(result.Blocking, ", "))), nil
		}

		msg := fmt.Sprintf("Story moved to %s", status)
		if result.SessionCreated {
			msg += fmt.Sprintf("; remote session %s created", *result.Story.SessionID)
		}
		if result.Notice != "" {
			msg += "; " + result.Notice
		}
		return mcp.NewToolResultText(msg), nil
	}
}

func deleteStoryHandler(controller *board.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storyID := mcp.ParseString(request, "story_id", "")

		result, err := controller.DeleteStory(ctx, storyID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if result.Outcome == board.OutcomeNotFound {
			return mcp.NewToolResultError(fmt.Sprintf("Story with id '%s' not found", storyID)), nil
		}

		return mcp.NewToolResultText("Story deleted successfully"), nil
	}
}

func listStoriesHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectName := mcp.ParseString(request, "project_name", "")

		p, errResult := resolveProject(ctx, database, projectName)
		if errResult != nil {
			return errResult, nil
		}

		var status *models.StoryStatus
		if raw := mcp.ParseString(request, "status", ""); raw != "" {
			st := models.StoryStatus(raw)
			if !st.Valid() {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid status: %s", raw)), nil
			}
			status = &st
		}

		stories, err := database.ListStories(ctx, p.ID, status)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(map[string]interface{}{"stories": stories})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func getStoryHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storyID := mcp.ParseString(request, "story_id", "")

		story, err := database.GetStory(ctx, storyID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if story == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Story with id '%s' not found", storyID)), nil
		}

		data, err := json.Marshal(story)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func refreshSessionsHandler(database *db.DB, controller *board.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectName := mcp.ParseString(request, "project_name", "")

		p, errResult := resolveProject(ctx, database, projectName)
		if errResult != nil {
			return errResult, nil
		}

		report, err := controller.Refresh(ctx, p.ID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if report.Polled == 0 {
			return mcp.NewToolResultText("No active sessions to refresh."), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Refreshed %d sessions: %d completed, %d failed",
			report.Polled, len(report.Completed), len(report.Failed),
		)), nil
	}
}

func boardStatusHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectName := mcp.ParseString(request, "project_name", "")

		p, errResult := resolveProject(ctx, database, projectName)
		if errResult != nil {
			return errResult, nil
		}

		stories, err := database.ListStories(ctx, p.ID, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		counts := make(map[models.StoryStatus]int)
		inFlight := 0
		for _, s := range stories {
			counts[s.Status]++
			if s.Status == models.StoryStatusDoing && s.HasSession() {
				inFlight++
			}
		}

		data, err := json.Marshal(map[string]interface{}{
			"project":            p.Name,
			"total":              len(stories),
			"todo":               counts[models.StoryStatusTodo],
			"doing":              counts[models.StoryStatusDoing],
			"done":               counts[models.StoryStatusDone],
			"in_flight_sessions": inFlight,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func stageStoryHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title := mcp.ParseString(request, "title", "")
		planID := mcp.ParseString(request, "plan_id", "default")

		story := &models.Story{
			Title:              title,
			Slug:               mcp.ParseString(request, "slug", ""),
			Description:        mcp.ParseString(request, "description", ""),
			AcceptanceCriteria: splitLines(mcp.ParseString(request, "acceptance_criteria", "")),
			Priority:           mcp.ParseInt(request, "priority", models.DefaultPriority),
			Status:             models.StoryStatusTodo,
		}

		database.Staging.AddStory(planID, story)
		return mcp.NewToolResultText(fmt.Sprintf("Story '%s' staged for plan '%s'. Propose another or call 'commit_plan' to apply.", title, planID)), nil
	}
}

func stageDependencyHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storyRef := mcp.ParseString(request, "story_ref", "")
		dependsOnRef := mcp.ParseString(request, "depends_on_ref", "")
		planID := mcp.ParseString(request, "plan_id", "default")

		database.Staging.AddDependency(planID, &models.Dependency{
			StoryRef:     storyRef,
			DependsOnRef: dependsOnRef,
		})
		return mcp.NewToolResultText(fmt.Sprintf("Dependency '%s' -> '%s' staged for plan '%s'.", storyRef, dependsOnRef, planID)), nil
	}
}

func commitPlanHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectName := mcp.ParseString(request, "project_name", "")
		planID := mcp.ParseString(request, "plan_id", "default")

		p, errResult := resolveProject(ctx, database, projectName)
		if errResult != nil {
			return errResult, nil
		}

		if err := database.CommitPlan(ctx, p.ID, planID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Plan '%s' committed to project '%s'", planID, projectName)), nil
	}
}

func listStagedChangesHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		planID := mcp.ParseString(request, "plan_id", "default")

		items := database.Staging.Peek(planID)
		data, err := json.Marshal(map[string]interface{}{
			"stories":      items.Stories,
			"dependencies": items.Dependencies,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
