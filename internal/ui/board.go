package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/byjit/jules-board/internal/board"
	"github.com/byjit/jules-board/internal/db"
	"github.com/byjit/jules-board/internal/ui/components"
	"github.com/byjit/jules-board/pkg/models"
)

var (
	boardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(0, 1)
)

var boardColumns = []models.StoryStatus{
	models.StoryStatusTodo,
	models.StoryStatusDoing,
	models.StoryStatusDone,
}

type storiesLoadedMsg struct {
	stories []*models.Story
	err     error
}

type storyMovedMsg struct {
	result *board.MoveResult
	err    error
}

type refreshDoneMsg struct {
	polled    int
	completed int
	failed    int
	err       error
}

// BoardModel is the interactive kanban view for a single project.
type BoardModel struct {
	database   *db.DB
	controller *board.Controller
	project    *models.Project

	stories []*models.Story
	cursor  [3]int
	focus   int

	detail *components.StoryDetail
	input  textinput.Model
	adding bool

	notice string
	errMsg string

	width  int
	height int
}

func NewBoardModel(database *db.DB, controller *board.Controller, project *models.Project) BoardModel {
	input := textinput.New()
	input.Placeholder = "New story title"
	input.CharLimit = 120

	return BoardModel{
		database:   database,
		controller: controller,
		project:    project,
		detail:     components.NewStoryDetail(40, 20),
		input:      input,
	}
}

func (m BoardModel) Init() tea.Cmd {
	return m.loadStories()
}

func (m BoardModel) loadStories() tea.Cmd {
	return func() tea.Msg {
		stories, err := m.database.ListStories(context.Background(), m.project.ID, nil)
		return storiesLoadedMsg{stories: stories, err: err}
	}
}

func (m BoardModel) moveStory(storyID string, target models.StoryStatus) tea.Cmd {
	return func() tea.Msg {
		result, err := m.controller.MoveStory(context.Background(), storyID, target)
		return storyMovedMsg{result: result, err: err}
	}
}

func (m BoardModel) refreshSessions() tea.Cmd {
	return func() tea.Msg {
		report, err := m.controller.Refresh(context.Background(), m.project.ID)
		if err != nil {
			return refreshDoneMsg{err: err}
		}
		return refreshDoneMsg{
			polled:    report.Polled,
			completed: len(report.Completed),
			failed:    len(report.Failed),
		}
	}
}

func (m BoardModel) addStory(title string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.controller.AddStory(context.Background(), m.project.ID, title); err != nil {
			return storiesLoadedMsg{err: err}
		}
		stories, err := m.database.ListStories(context.Background(), m.project.ID, nil)
		return storiesLoadedMsg{stories: stories, err: err}
	}
}

func (m BoardModel) deleteStory(storyID string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.controller.DeleteStory(context.Background(), storyID); err != nil {
			return storiesLoadedMsg{err: err}
		}
		stories, err := m.database.ListStories(context.Background(), m.project.ID, nil)
		return storiesLoadedMsg{stories: stories, err: err}
	}
}

func (m BoardModel) columnStories(status models.StoryStatus) []*models.Story {
	var out []*models.Story
	for _, s := range m.stories {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

func (m BoardModel) selectedStory() *models.Story {
	stories := m.columnStories(boardColumns[m.focus])
	if len(stories) == 0 {
		return nil
	}
	idx := m.cursor[m.focus]
	if idx >= len(stories) {
		idx = len(stories) - 1
	}
	return stories[idx]
}

func (m *BoardModel) clampCursors() {
	for i, status := range boardColumns {
		n := len(m.columnStories(status))
		if n == 0 {
			m.cursor[i] = 0
		} else if m.cursor[i] >= n {
			m.cursor[i] = n - 1
		}
	}
}

func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.SetSize(msg.Width/3, msg.Height/3)
		m.detail.SetStory(m.selectedStory())
		return m, nil

	case storiesLoadedMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.stories = msg.stories
		m.clampCursors()
		m.detail.SetStory(m.selectedStory())
		return m, nil

	case storyMovedMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		switch msg.result.Outcome {
		case board.OutcomeBlocked:
			m.notice = fmt.Sprintf("Blocked by: %s", strings.Join(msg.result.Blocking, ", "))
		case board.OutcomeNotFound:
			m.notice = "Story no longer exists"
		default:
			m.notice = ""
			if msg.result.SessionCreated {
				m.notice = "Session started"
			}
			if msg.result.Notice != "" {
				m.notice = msg.result.Notice
			}
		}
		return m, m.loadStories()

	case refreshDoneMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		if msg.polled == 0 {
			m.notice = "No active sessions"
		} else {
			m.notice = fmt.Sprintf("Refreshed %d sessions: %d completed, %d failed", msg.polled, msg.completed, msg.failed)
		}
		return m, m.loadStories()

	case tea.KeyMsg:
		if m.adding {
			switch msg.String() {
			case "esc":
				m.adding = false
				m.input.Reset()
				return m, nil
			case "enter":
				title := strings.TrimSpace(m.input.Value())
				m.adding = false
				m.input.Reset()
				if title == "" {
					return m, nil
				}
				return m, m.addStory(title)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "left", "h":
			if m.focus > 0 {
				m.focus--
				m.detail.SetStory(m.selectedStory())
			}

		case "right", "l":
			if m.focus < len(boardColumns)-1 {
				m.focus++
				m.detail.SetStory(m.selectedStory())
			}

		case "up", "k":
			if m.cursor[m.focus] > 0 {
				m.cursor[m.focus]--
				m.detail.SetStory(m.selectedStory())
			}

		case "down", "j":
			if m.cursor[m.focus] < len(m.columnStories(boardColumns[m.focus]))-1 {
				m.cursor[m.focus]++
				m.detail.SetStory(m.selectedStory())
			}

		case "enter", "L":
			if story := m.selectedStory(); story != nil && m.focus < len(boardColumns)-1 {
				return m, m.moveStory(story.ID, boardColumns[m.focus+1])
			}

		case "H":
			if story := m.selectedStory(); story != nil && m.focus > 0 {
				return m, m.moveStory(story.ID, boardColumns[m.focus-1])
			}

		case "n":
			m.adding = true
			m.input.Focus()
			return m, textinput.Blink

		case "d":
			if story := m.selectedStory(); story != nil {
				return m, m.deleteStory(story.ID)
			}

		case "r":
			m.notice = "Refreshing sessions..."
			return m, m.refreshSessions()
		}
	}

	return m, m.detail.Update(msg)
}

func (m BoardModel) View() string {
	var sb strings.Builder

	sb.WriteString(boardTitleStyle.Render(fmt.Sprintf("%s board", m.project.Name)))
	sb.WriteString("\n\n")

	colWidth := 30
	if m.width > 0 {
		colWidth = m.width/3 - 2
	}
	colHeight := 12
	if m.height > 0 {
		colHeight = m.height / 2
	}

	var cols []string
	for i, status := range boardColumns {
		col := components.NewColumn(status, colWidth, colHeight)
		col.Stories = m.columnStories(status)
		col.Focused = i == m.focus
		col.Cursor = m.cursor[i]
		cols = append(cols, col.View())
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	sb.WriteString("\n")

	sb.WriteString(m.detail.View())
	sb.WriteString("\n")

	if m.adding {
		sb.WriteString(m.input.View())
		sb.WriteString("\n")
	}
	if m.errMsg != "" {
		sb.WriteString(errStyle.Render(m.errMsg))
		sb.WriteString("\n")
	}
	if m.notice != "" {
		sb.WriteString(noticeStyle.Render(m.notice))
		sb.WriteString("\n")
	}

	sb.WriteString(helpStyle.Render("h/l columns · j/k stories · enter/L move right · H move left · n new · d delete · r refresh · q quit"))
	sb.WriteString("\n")

	return sb.String()
}

// RunBoard starts the interactive board for a project.
func RunBoard(database *db.DB, controller *board.Controller, project *models.Project) error {
	p := tea.NewProgram(NewBoardModel(database, controller, project), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
