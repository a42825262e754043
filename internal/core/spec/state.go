package spec

import "time"

// State is the persisted record of one spec's lifecycle, stored as JSON at
// .ai-framework/specs/<slug>.json inside the project.
type State struct {
	Slug            string    `json:"slug"`
	Title           string    `json:"title,omitempty"`
	Phase           Phase     `json:"phase"`
	PlanPath        string    `json:"plan_path,omitempty"`
	TotalTasks      int       `json:"total_tasks"`
	CompletedTasks  int       `json:"completed_tasks"`
	ReviewIteration int       `json:"review_iteration"`
	WorktreePath    string    `json:"worktree_path,omitempty"`
	Branch          string    `json:"branch,omitempty"`
	Fingerprint     string    `json:"fingerprint,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// New returns the initial state for a spec.
func New(slug, title, planPath string, now time.Time) *State {
	return &State{
		Slug:      slug,
		Title:     title,
		Phase:     PhasePlanning,
		PlanPath:  planPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsBusy reports whether the spec blocks concurrent mutation: it is in an
// active phase and was touched within the staleness window. A crashed run
// stops counting as busy once the window has passed.
func (s *State) IsBusy(now time.Time, staleAfter time.Duration) bool {
	if !s.Phase.IsActive() {
		return false
	}
	return now.Sub(s.UpdatedAt) < staleAfter
}
