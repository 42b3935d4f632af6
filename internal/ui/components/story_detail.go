package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/byjit/jules-board/pkg/models"
)

var (
	detailLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				Italic(true)

	detailTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	scrollbarTrackStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("236"))

	scrollbarHandleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
)

// StoryDetail renders a single story's full fields in a viewport.
type StoryDetail struct {
	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

// NewStoryDetail creates a new StoryDetail.
func NewStoryDetail(width, height int) *StoryDetail {
	return &StoryDetail{
		viewport: viewport.New(width, height),
		width:    width,
		height:   height,
	}
}

func (d *StoryDetail) SetSize(width, height int) {
	d.width = width
	d.height = height
	vpWidth := width
	if width > 0 {
		vpWidth = width - 1
	}
	if !d.ready {
		d.viewport = viewport.New(vpWidth, height)
		d.viewport.HighPerformanceRendering = false
		d.ready = true
	} else {
		d.viewport.Width = vpWidth
		d.viewport.Height = height
	}
}

func (d *StoryDetail) SetStory(story *models.Story) {
	if story == nil {
		d.viewport.SetContent(detailLabelStyle.Render("No story selected"))
		return
	}

	var sb strings.Builder
	sb.WriteString(detailLabelStyle.Render("Title: "))
	sb.WriteString(story.Title + "\n")
	if story.Slug != "" {
		sb.WriteString(detailLabelStyle.Render("Slug: "))
		sb.WriteString(story.Slug + "\n")
	}
	sb.WriteString(detailLabelStyle.Render("Status: "))
	sb.WriteString(string(story.Status) + "\n")
	sb.WriteString(detailLabelStyle.Render("Priority: "))
	sb.WriteString(fmt.Sprintf("%d\n", story.Priority))

	if story.Description != "" {
		sb.WriteString("\n" + detailLabelStyle.Render("Description") + "\n")
		sb.WriteString(story.Description + "\n")
	}
	if len(story.AcceptanceCriteria) > 0 {
		sb.WriteString("\n" + detailLabelStyle.Render("Acceptance Criteria") + "\n")
		for _, c := range story.AcceptanceCriteria {
			sb.WriteString("- " + c + "\n")
		}
	}
	if len(story.DependsOn) > 0 {
		sb.WriteString("\n" + detailLabelStyle.Render("Depends On") + "\n")
		sb.WriteString(strings.Join(story.DependsOn, ", ") + "\n")
	}
	if story.HasSession() {
		sb.WriteString("\n" + detailLabelStyle.Render("Session: "))
		sb.WriteString(*story.SessionID)
		if story.SessionStatus != nil {
			sb.WriteString(fmt.Sprintf(" (%s)", *story.SessionStatus))
		}
		sb.WriteString("\n")
	}
	if story.Notes != "" {
		sb.WriteString("\n" + detailLabelStyle.Render("Notes") + "\n")
		sb.WriteString(story.Notes + "\n")
	}

	content := sb.String()
	if d.viewport.Width > 0 {
		content = detailTextStyle.Copy().Width(d.viewport.Width).Render(content)
	} else {
		content = detailTextStyle.Render(content)
	}
	d.viewport.SetContent(content)
	d.viewport.GotoTop()
}

func (d *StoryDetail) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	d.viewport, cmd = d.viewport.Update(msg)
	return cmd
}

func (d *StoryDetail) View() string {
	if !d.ready {
		return ""
	}

	if d.viewport.TotalLineCount() <= d.viewport.Height {
		return d.viewport.View()
	}

	h := d.viewport.Height
	percent := d.viewport.ScrollPercent()

	handlePos := int(float64(h-1) * percent)

	var sb strings.Builder
	for i := 0; i < h; i++ {
		if i == handlePos {
			sb.WriteString(scrollbarHandleStyle.Render("┃"))
		} else {
			sb.WriteString(scrollbarTrackStyle.Render("│"))
		}
		if i < h-1 {
			sb.WriteString("\n")
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, d.viewport.View(), sb.String())
}
