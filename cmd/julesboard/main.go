package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/byjit/jules-board/internal/board"
	"github.com/byjit/jules-board/internal/config"
	"github.com/byjit/jules-board/internal/db"
	"github.com/byjit/jules-board/internal/jules"
	"github.com/byjit/jules-board/internal/mcp"
	"github.com/byjit/jules-board/internal/server"
	"github.com/byjit/jules-board/internal/ui"
	"github.com/byjit/jules-board/pkg/models"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", ".julesboard/config.yaml", "Path to config file")
	flag.Parse()

	var command string
	var args []string

	if flag.NArg() == 0 {
		selected, err := ui.RunMenu()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running menu: %v\n", err)
			os.Exit(1)
		}
		if selected == "" {
			os.Exit(0)
		}
		command = selected
		args = []string{}
	} else {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "init":
		err = runInit(cfg, args)
	case "serve":
		err = runServe(cfg, args)
	case "mcp":
		err = runMCP(cfg, args)
	case "board":
		err = runBoard(cfg, args)
	case "projects":
		err = runProjects(cfg, args)
	case "stories":
		err = runStories(cfg, args)
	case "status":
		err = runStatus(cfg, args)
	case "move":
		err = runMove(cfg, args)
	case "refresh":
		err = runRefresh(cfg, args)
	case "export":
		err = runExport(cfg, args)
	case "import":
		err = runImport(cfg, args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openBoard opens the database and wires the session manager and board
// controller on top of it.
func openBoard(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*db.DB, *board.Controller, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client := jules.NewClient(cfg.JulesBaseURL, cfg.JulesAPIKey, cfg.SessionTimeout)
	manager := jules.NewManager(client, database, logger)
	controller := board.NewController(database, manager, logger)
	return database, controller, nil
}

func runInit(cfg *config.Config, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	boardDir := filepath.Join(targetDir, ".julesboard")
	if err := os.MkdirAll(boardDir, 0755); err != nil {
		return fmt.Errorf("failed to create .julesboard directory: %w", err)
	}
	fmt.Println("✓ Created .julesboard/ directory")

	gitignorePath := filepath.Join(boardDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("board.db*\nconfig.yaml\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Println("✓ Created .julesboard/.gitignore")

	dbPath := cfg.DBPath
	if dbPath == ".julesboard/board.db" {
		dbPath = filepath.Join(boardDir, "board.db")
	}
	snapshotPath := cfg.SnapshotPath
	if snapshotPath == ".julesboard/snapshot.jsonl" {
		snapshotPath = filepath.Join(boardDir, "snapshot.jsonl")
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Printf("✓ Initialized database at %s\n", dbPath)

	if _, err := os.Stat(snapshotPath); err == nil {
		if err := database.ImportSnapshot(ctx, snapshotPath); err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		fmt.Printf("✓ Imported snapshot from %s\n", snapshotPath)
	}

	fmt.Println("✓ JulesBoard initialized successfully")
	return nil
}

func runServe(cfg *config.Config, args []string) error {
	serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := serveFlags.Int("port", cfg.Port, "Port to listen on")
	if err := serveFlags.Parse(args); err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, controller, err := openBoard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(cfg.SnapshotPath)

	if cfg.RefreshInterval > 0 {
		poller := board.NewPoller(controller, database, cfg.RefreshInterval, logger)
		go func() {
			if err := poller.Run(ctx); err != nil {
				logger.Error("session poller stopped", "error", err)
			}
		}()
	}

	srv := server.NewServer(database, controller, cfg.APIToken, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", "port", *port)
	if err := srv.Start(fmt.Sprintf(":%d", *port)); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runMCP(cfg *config.Config, args []string) error {
	logger := newLogger(cfg)

	ctx := context.Background()
	database, controller, err := openBoard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(cfg.SnapshotPath)

	s := mcp.NewServer(database, controller)
	return mcp.Serve(s)
}

func runBoard(cfg *config.Config, args []string) error {
	boardFlags := flag.NewFlagSet("board", flag.ContinueOnError)
	projectName := boardFlags.String("project", "", "Project name")
	if err := boardFlags.Parse(args); err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx := context.Background()
	database, controller, err := openBoard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(cfg.SnapshotPath)

	project, err := resolveProjectArg(ctx, database, *projectName)
	if err != nil {
		return err
	}

	return ui.RunBoard(database, controller, project)
}

// resolveProjectArg picks the project by name, or the only project when the
// database holds exactly one.
func resolveProjectArg(ctx context.Context, database *db.DB, name string) (*models.Project, error) {
	if name != "" {
		project, err := database.GetProjectByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, fmt.Errorf("project %q not found", name)
		}
		return project, nil
	}

	projects, err := database.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	switch len(projects) {
	case 0:
		return nil, fmt.Errorf("no projects exist yet, create one first")
	case 1:
		return projects[0], nil
	default:
		var names []string
		for _, p := range projects {
			names = append(names, p.Name)
		}
		return nil, fmt.Errorf("multiple projects exist, pass -project with one of: %s", strings.Join(names, ", "))
	}
}

func runProjects(cfg *config.Config, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	projects, err := database.ListProjects(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-20s %-30s %-10s\n", "NAME", "REPO", "BRANCH")
	fmt.Println("------------------------------------------------------------")
	for _, p := range projects {
		fmt.Printf("%-20s %-30s %-10s\n", p.Name, p.GitRepo, p.GitBranch)
	}
	return nil
}

func runStories(cfg *config.Config, args []string) error {
	storyFlags := flag.NewFlagSet("stories", flag.ContinueOnError)
	projectName := storyFlags.String("project", "", "Project name")
	statusFilter := storyFlags.String("status", "", "Filter by status (todo, doing, done)")
	if err := storyFlags.Parse(args); err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	project, err := resolveProjectArg(ctx, database, *projectName)
	if err != nil {
		return err
	}

	var status *models.StoryStatus
	if *statusFilter != "" {
		s := models.StoryStatus(*statusFilter)
		if !s.Valid() {
			return fmt.Errorf("invalid status: %s", *statusFilter)
		}
		status = &s
	}

	stories, err := database.ListStories(ctx, project.ID, status)
	if err != nil {
		return err
	}

	fmt.Printf("%-38s %-30s %-10s %-8s %s\n", "ID", "TITLE", "STATUS", "PRIORITY", "SESSION")
	fmt.Println(strings.Repeat("-", 100))
	for _, s := range stories {
		session := "-"
		if s.HasSession() {
			session = *s.SessionID
		}
		fmt.Printf("%-38s %-30s %-10s %-8d %s\n", s.ID, s.Title, s.Status, s.Priority, session)
	}
	return nil
}

func runStatus(cfg *config.Config, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	projects, err := database.ListProjects(ctx)
	if err != nil {
		return err
	}

	fmt.Println("JulesBoard Status")
	fmt.Println("=================")
	fmt.Printf("Projects: %d\n", len(projects))

	for _, p := range projects {
		stories, err := database.ListStories(ctx, p.ID, nil)
		if err != nil {
			return err
		}

		counts := make(map[models.StoryStatus]int)
		inFlight := 0
		for _, s := range stories {
			counts[s.Status]++
			if s.Status == models.StoryStatusDoing && s.HasSession() {
				inFlight++
			}
		}

		fmt.Printf("\n%s:\n", p.Name)
		fmt.Printf("  Todo:     %d\n", counts[models.StoryStatusTodo])
		fmt.Printf("  Doing:    %d\n", counts[models.StoryStatusDoing])
		fmt.Printf("  Done:     %d\n", counts[models.StoryStatusDone])
		fmt.Printf("  Sessions: %d in flight\n", inFlight)
	}

	return nil
}

func runMove(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: julesboard move <story-id> <todo|doing|done>")
	}
	storyID := args[0]
	target := models.StoryStatus(args[1])
	if !target.Valid() {
		return fmt.Errorf("invalid status: %s", args[1])
	}

	logger := newLogger(cfg)

	ctx := context.Background()
	database, controller, err := openBoard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(cfg.SnapshotPath)

	result, err := controller.MoveStory(ctx, storyID, target)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case board.OutcomeNotFound:
		return fmt.Errorf("story %q not found", storyID)
	case board.OutcomeBlocked:
		return fmt.Errorf("move blocked by unfinished dependencies: %s", strings.Join(result.Blocking, ", "))
	}

	fmt.Printf("✓ Story moved to %s\n", target)
	if result.SessionCreated {
		fmt.Printf("✓ Session %s created\n", *result.Story.SessionID)
	}
	if result.Notice != "" {
		fmt.Println(result.Notice)
	}
	return nil
}

func runRefresh(cfg *config.Config, args []string) error {
	refreshFlags := flag.NewFlagSet("refresh", flag.ContinueOnError)
	projectName := refreshFlags.String("project", "", "Project name")
	if err := refreshFlags.Parse(args); err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx := context.Background()
	database, controller, err := openBoard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	database.EnableAutoSnapshot(cfg.SnapshotPath)

	project, err := resolveProjectArg(ctx, database, *projectName)
	if err != nil {
		return err
	}

	report, err := controller.Refresh(ctx, project.ID)
	if err != nil {
		return err
	}

	if report.Polled == 0 {
		fmt.Println("No active sessions to refresh.")
		return nil
	}
	fmt.Printf("✓ Refreshed %d sessions: %d completed, %d failed\n", report.Polled, len(report.Completed), len(report.Failed))
	for id, ferr := range report.Failed {
		fmt.Printf("  ✗ %s: %v\n", id, ferr)
	}
	return nil
}

func runExport(cfg *config.Config, args []string) error {
	path := cfg.SnapshotPath
	if len(args) > 0 {
		path = args[0]
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.ExportSnapshot(ctx, path); err != nil {
		return err
	}
	fmt.Printf("✓ Exported snapshot to %s\n", path)
	return nil
}

func runImport(cfg *config.Config, args []string) error {
	path := cfg.SnapshotPath
	if len(args) > 0 {
		path = args[0]
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		return err
	}
	if err := database.ImportSnapshot(ctx, path); err != nil {
		return err
	}
	fmt.Printf("✓ Imported snapshot from %s\n", path)
	return nil
}
