package jules

import (
	"strings"
	"text/template"

	"github.com/byjit/jules-board/embed/prompts"
	"github.com/byjit/jules-board/pkg/models"
)

var sessionPromptTmpl = template.Must(template.New("session").Parse(prompts.SessionPrompt))

type promptData struct {
	ProjectDescription string
	StoryDescription   string
	AcceptanceCriteria []string
}

// BuildPrompt synthesizes the session prompt from the project description,
// the story description and its enumerated acceptance criteria.
func BuildPrompt(project *models.Project, story *models.Story) (string, error) {
	var b strings.Builder
	err := sessionPromptTmpl.Execute(&b, promptData{
		ProjectDescription: project.Description,
		StoryDescription:   story.Description,
		AcceptanceCriteria: story.AcceptanceCriteria,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
