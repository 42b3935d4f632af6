package models

import "time"

type StoryStatus string

const (
	StoryStatusTodo  StoryStatus = "todo"
	StoryStatusDoing StoryStatus = "doing"
	StoryStatusDone  StoryStatus = "done"
)

func (s StoryStatus) Valid() bool {
	switch s {
	case StoryStatusTodo, StoryStatusDoing, StoryStatusDone:
		return true
	}
	return false
}

// Session states mirrored from the Jules API. The remote state string is
// opaque except for SessionStateCompleted, which is the only value this
// system acts on.
const (
	SessionStateCreated   = "CREATED"
	SessionStateCompleted = "COMPLETED"
	SessionStateUnknown   = "UNKNOWN"
)

type Story struct {
	ID                 string      `json:"id"`
	ProjectID          string      `json:"project_id"`
	Title              string      `json:"title"`
	Slug               string      `json:"slug,omitempty"`
	Description        string      `json:"description"`
	AcceptanceCriteria []string    `json:"acceptance_criteria"`
	Priority           int         `json:"priority"`
	Passes             bool        `json:"passes"`
	Status             StoryStatus `json:"status"`
	Notes              string      `json:"notes"`
	DependsOn          []string    `json:"depends_on"`
	SessionID          *string     `json:"session_id,omitempty"`
	SessionStatus      *string     `json:"session_status,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`

	// ProjectName is a helper field for joined queries
	ProjectName string `json:"project_name,omitempty"`
}

// HasSession reports whether a remote session has been recorded for the
// story. At most one session exists per story; once set, SessionID is never
// replaced.
func (s *Story) HasSession() bool {
	return s.SessionID != nil && *s.SessionID != ""
}

// StoryPatch is a partial update. Nil fields are left unchanged; the merge
// is shallow and all-or-nothing.
type StoryPatch struct {
	Title              *string      `json:"title,omitempty"`
	Slug               *string      `json:"slug,omitempty"`
	Description        *string      `json:"description,omitempty"`
	AcceptanceCriteria *[]string    `json:"acceptance_criteria,omitempty"`
	Priority           *int         `json:"priority,omitempty"`
	Passes             *bool        `json:"passes,omitempty"`
	Status             *StoryStatus `json:"status,omitempty"`
	Notes              *string      `json:"notes,omitempty"`
	DependsOn          *[]string    `json:"depends_on,omitempty"`
	SessionID          *string      `json:"session_id,omitempty"`
	SessionStatus      *string      `json:"session_status,omitempty"`
}

// Apply copies the non-nil patch fields onto the story.
func (p *StoryPatch) Apply(s *Story) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Slug != nil {
		s.Slug = *p.Slug
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.AcceptanceCriteria != nil {
		s.AcceptanceCriteria = *p.AcceptanceCriteria
	}
	if p.Priority != nil {
		s.Priority = *p.Priority
	}
	if p.Passes != nil {
		s.Passes = *p.Passes
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.DependsOn != nil {
		s.DependsOn = *p.DependsOn
	}
	if p.SessionID != nil {
		s.SessionID = p.SessionID
	}
	if p.SessionStatus != nil {
		s.SessionStatus = p.SessionStatus
	}
}

// DefaultPriority is the mid-tier priority assigned to new stories.
// Lower values are more urgent.
const DefaultPriority = 2

// NewStory constructs a backlog story with board defaults.
func NewStory(projectID, title string) *Story {
	return &Story{
		ProjectID:          projectID,
		Title:              title,
		AcceptanceCriteria: []string{},
		Priority:           DefaultPriority,
		Status:             StoryStatusTodo,
		DependsOn:          []string{},
	}
}
