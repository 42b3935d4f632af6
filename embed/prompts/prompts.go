package prompts

import _ "embed"

// SessionPrompt is the template for the prompt sent when a remote session
// is created for a story.
//
//go:embed session_prompt.md
var SessionPrompt string
