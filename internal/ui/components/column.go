package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/byjit/jules-board/pkg/models"
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedColumnStyle = columnStyle.Copy().
				BorderForeground(lipgloss.Color("99"))

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("99")).
				Bold(true)

	sessionCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42"))

	emptyColumnStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// Column renders one board column as a bordered stack of story cards.
type Column struct {
	Status  models.StoryStatus
	Stories []*models.Story
	Width   int
	Height  int
	Focused bool
	Cursor  int
}

func NewColumn(status models.StoryStatus, width, height int) *Column {
	return &Column{
		Status: status,
		Width:  width,
		Height: height,
	}
}

func (c *Column) View() string {
	header := columnHeaderStyle.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(string(c.Status)), len(c.Stories)))

	innerWidth := c.Width - 4
	if innerWidth < 0 {
		innerWidth = 0
	}

	var lines []string
	if len(c.Stories) == 0 {
		lines = append(lines, emptyColumnStyle.Render("empty"))
	}
	for i, story := range c.Stories {
		lines = append(lines, c.renderCard(story, i == c.Cursor && c.Focused, innerWidth))
	}

	body := header + "\n" + strings.Join(lines, "\n")

	style := columnStyle
	if c.Focused {
		style = focusedColumnStyle
	}
	return style.Width(c.Width).Height(c.Height).Render(body)
}

func (c *Column) renderCard(story *models.Story, selected bool, width int) string {
	marker := " "
	if story.HasSession() {
		marker = sessionCardStyle.Render("●")
	}
	if story.Status == models.StoryStatusDone && story.Passes {
		marker = sessionCardStyle.Render("✓")
	}

	title := story.Title
	nameWidth := width - 2
	if nameWidth > 0 && len(title) > nameWidth {
		title = title[:nameWidth-1] + "…"
	}

	style := cardStyle
	prefix := "  "
	if selected {
		style = selectedCardStyle
		prefix = "> "
	}
	return fmt.Sprintf("%s%s %s", prefix, marker, style.Render(title))
}
