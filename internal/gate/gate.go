// Package gate decides whether a story may move between board columns.
//
// A dependency reference is a story id or slug. A reference that resolves to
// no sibling, or to a sibling that is not done, blocks the move. Unresolvable
// references are treated as permanently blocking rather than ignored; the
// gate fails closed. No cycle detection is performed: a dependency cycle
// leaves every member stuck in the backlog, and the gate reports the cycle
// members as blocking instead of silently permitting the move.
package gate

import "github.com/byjit/jules-board/pkg/models"

// Result is the gate's verdict. When Allowed is false, Blocking lists the
// dependency references (as written on the story) that refused the move.
type Result struct {
	Allowed  bool     `json:"allowed"`
	Blocking []string `json:"blocking,omitempty"`
}

// Check reports whether story may transition to target given its project
// siblings. Moving back to the backlog is always allowed. The check is a
// pure query; callers surface the blocking list and abort without mutating
// anything.
//
// References resolve by exact id match or slug match. If one story matches
// by id and a different story matches by slug, either satisfies the
// reference; there is deliberately no tie-break.
func Check(target models.StoryStatus, story *models.Story, siblings []*models.Story) Result {
	if target == models.StoryStatusTodo {
		return Result{Allowed: true}
	}

	var blocking []string
	for _, ref := range story.DependsOn {
		if ref == "" {
			continue
		}
		if !satisfied(ref, siblings) {
			blocking = append(blocking, ref)
		}
	}

	return Result{Allowed: len(blocking) == 0, Blocking: blocking}
}

func satisfied(ref string, siblings []*models.Story) bool {
	for _, s := range siblings {
		if s.ID == ref || (s.Slug != "" && s.Slug == ref) {
			if s.Status == models.StoryStatusDone {
				return true
			}
		}
	}
	return false
}
