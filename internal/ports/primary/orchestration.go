package primary

import (
	"context"

	"github.com/example/loom/internal/core/review"
	"github.com/example/loom/internal/core/spec"
)

// SpecCoordinator defines the primary port for the spec lifecycle state
// machine. It is purely state-driven: no prompts, no model calls.
type SpecCoordinator interface {
	// Start creates a spec in planning.
	Start(ctx context.Context, req StartSpecRequest) (*spec.State, error)

	// ApprovePlan moves planning → implementing and creates the worktree.
	ApprovePlan(ctx context.Context, slug string, totalTasks int) (*spec.State, error)

	// StartTask marks task n in progress.
	StartTask(ctx context.Context, slug string, taskNum int) (*spec.State, error)

	// CompleteTask marks task n done.
	CompleteTask(ctx context.Context, slug string, taskNum int) (*spec.State, error)

	// StartVerify moves implementing → verifying once all tasks are done.
	StartVerify(ctx context.Context, slug string) (*spec.State, error)

	// SubmitVerdict appends one reviewer verdict to the current iteration.
	SubmitVerdict(ctx context.Context, slug string, verdict review.ReviewerVerdict) (*spec.State, error)

	// ResolveVerify settles the iteration: pass → learning, fail → fix
	// loop or aborted once iterations are exhausted.
	ResolveVerify(ctx context.Context, slug string) (*ResolveVerifyResponse, error)

	// Complete moves learning → done and cleans up the worktree.
	Complete(ctx context.Context, slug string) (*spec.State, error)

	// Abort moves any non-terminal phase to aborted.
	Abort(ctx context.Context, slug, reason string) (*spec.State, error)

	// Get returns the state for one spec.
	Get(ctx context.Context, slug string) (*spec.State, error)

	// List returns all known spec states.
	List(ctx context.Context) ([]*spec.State, error)

	// IsBusy reports whether any spec blocks a session exit, and which.
	IsBusy(ctx context.Context) (bool, string, error)
}

// StartSpecRequest creates a spec.
type StartSpecRequest struct {
	Slug     string
	Title    string
	PlanPath string
}

// ResolveVerifyResponse reports how a verification round settled.
type ResolveVerifyResponse struct {
	State           *spec.State `json:"state"`
	Passed          bool        `json:"passed"`
	FixInstructions string      `json:"fix_instructions,omitempty"`
}

// WorktreeManager defines the primary port for spec worktree operations.
// Paths are derived from slug and plan fingerprint at creation; teardown
// takes the path recorded at creation so a revised plan cannot redirect it.
type WorktreeManager interface {
	// Detect reports whether the worktree for a spec exists.
	Detect(ctx context.Context, slug, planPath string) (*WorktreeInfo, error)

	// Create adds the worktree and branch, stashing a dirty main checkout.
	Create(ctx context.Context, slug, planPath string) (*WorktreeCreateResult, error)

	// Diff returns the unified diff against the merge-base with the base
	// branch.
	Diff(ctx context.Context, slug, planPath string) (string, error)

	// Sync squash-merges the spec branch onto the base branch without
	// committing.
	Sync(ctx context.Context, slug string) (*WorktreeSyncResult, error)

	// Cleanup removes the worktree at the recorded path and deletes the
	// branch. An empty path falls back to the derived location.
	Cleanup(ctx context.Context, slug, worktreePath string) (*WorktreeCleanupResult, error)

	// Status reports the worktree's current git state.
	Status(ctx context.Context, slug, planPath string) (*WorktreeStatus, error)
}

// WorktreeInfo is the result of detection.
type WorktreeInfo struct {
	Present    bool   `json:"present"`
	Path       string `json:"path"`
	Branch     string `json:"branch,omitempty"`
	BaseBranch string `json:"base_branch"`
}

// WorktreeCreateResult reports a created worktree.
type WorktreeCreateResult struct {
	Path       string `json:"path"`
	Branch     string `json:"branch"`
	BaseBranch string `json:"base_branch"`
	Stashed    bool   `json:"stashed"`
}

// WorktreeSyncResult summarizes a squash merge.
type WorktreeSyncResult struct {
	Merged       bool   `json:"merged"`
	Commit       string `json:"commit"`
	FilesChanged int    `json:"files_changed"`
	Insertions   int    `json:"insertions"`
	Deletions    int    `json:"deletions"`
	Stashed      bool   `json:"stashed"`
}

// WorktreeCleanupResult reports worktree removal.
type WorktreeCleanupResult struct {
	Removed       bool   `json:"removed"`
	Path          string `json:"path"`
	BranchDeleted bool   `json:"branch_deleted"`
}

// WorktreeStatus is the live git state of a worktree.
type WorktreeStatus struct {
	Present    bool   `json:"present"`
	Path       string `json:"path,omitempty"`
	Branch     string `json:"branch,omitempty"`
	BaseBranch string `json:"base_branch"`
	Dirty      bool   `json:"dirty"`
	Ahead      int    `json:"ahead"`
	Behind     int    `json:"behind"`
}
