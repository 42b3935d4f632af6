package models

import (
	"strings"
	"time"
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	BranchName  string    `json:"branch_name,omitempty"`
	GitRepo     string    `json:"git_repo,omitempty"`
	GitBranch   string    `json:"git_branch,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Automatable reports whether the project carries enough source context to
// create remote sessions: a repository locator and a starting branch.
func (p *Project) Automatable() bool {
	return p.GitRepo != "" && p.GitBranch != ""
}

// NormalizeGitRepo converts a pasted GitHub locator into the canonical
// "sources/github/{owner}/{repo}" form the sessions API expects. Accepted
// inputs: https URLs (with or without .git), ssh remotes, bare "owner/repo",
// or an already-canonical locator. Anything unrecognizable is returned
// trimmed but otherwise untouched.
func NormalizeGitRepo(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "sources/github/") {
		return s
	}

	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimPrefix(s, "git@github.com:")
	s = strings.TrimPrefix(s, "https://github.com/")
	s = strings.TrimPrefix(s, "http://github.com/")
	s = strings.TrimPrefix(s, "github.com/")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return strings.TrimSpace(raw)
	}
	return "sources/github/" + parts[0] + "/" + parts[1]
}
