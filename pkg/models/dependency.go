package models

// Dependency links a story to a prerequisite. References are story IDs or
// slugs; when both an ID and a slug match different stories, either
// satisfies the reference (no tie-break, matching the board's behavior).
type Dependency struct {
	StoryRef     string `json:"story_ref"`
	DependsOnRef string `json:"depends_on_ref"`
}
