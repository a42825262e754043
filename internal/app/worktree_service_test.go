package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/loom/internal/logging"
	"github.com/example/loom/internal/ports/secondary"
)

func newTestWorktreeService(t *testing.T) (*WorktreeServiceImpl, *fakeGitRunner, string) {
	t.Helper()
	git := newFakeGitRunner()
	root := t.TempDir()
	service := NewWorktreeService(git, root, "main", logging.Nop())
	return service, git, root
}

func porcelainFor(path, branch string) string {
	return "worktree " + path + "\nHEAD abc123\nbranch " + branch + "\n\n"
}

func TestWorktreeDetect(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	ctx := context.Background()

	target := service.Path("add-auth", "")
	git.stub("worktree list", secondary.GitResult{
		Stdout: porcelainFor("/somewhere/else", "refs/heads/other") +
			porcelainFor(target, "refs/heads/spec/add-auth"),
	})

	info, err := service.Detect(ctx, "add-auth", "")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !info.Present {
		t.Error("expected worktree to be detected")
	}
	if info.Branch != "refs/heads/spec/add-auth" {
		t.Errorf("unexpected branch: %q", info.Branch)
	}
}

func TestWorktreeDetectAbsent(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	git.stub("worktree list", secondary.GitResult{Stdout: porcelainFor("/somewhere/else", "refs/heads/other")})

	info, err := service.Detect(context.Background(), "add-auth", "")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if info.Present {
		t.Error("expected no worktree")
	}
}

func TestWorktreeCreateStashesDirtyTree(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	git.stub("status --porcelain", secondary.GitResult{Stdout: " M internal/app/service.go\n"})

	result, err := service.Create(context.Background(), "add-auth", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !result.Stashed {
		t.Error("dirty tree should have been stashed")
	}
	if !git.called("stash push -m") {
		t.Error("expected a labeled stash push")
	}
	if !git.called("worktree add -b spec/add-auth") {
		t.Errorf("expected worktree add, calls: %v", git.calls)
	}
	if result.Branch != "spec/add-auth" {
		t.Errorf("unexpected branch: %q", result.Branch)
	}
}

func TestWorktreeCreateCleanTreeSkipsStash(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)

	result, err := service.Create(context.Background(), "add-auth", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.Stashed {
		t.Error("clean tree should not stash")
	}
	if git.called("stash push") {
		t.Error("unexpected stash call")
	}
}

func TestWorktreeCreateIdempotent(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	target := service.Path("add-auth", "")
	git.stub("worktree list", secondary.GitResult{
		Stdout: porcelainFor(target, "refs/heads/spec/add-auth"),
	})

	result, err := service.Create(context.Background(), "add-auth", "")
	if err != nil {
		t.Fatalf("Create on existing worktree failed: %v", err)
	}
	if result.Path != target {
		t.Errorf("expected existing path %q, got %q", target, result.Path)
	}
	if git.called("worktree add") {
		t.Error("existing worktree should not be re-added")
	}
}

func TestWorktreeCreateFailureSurfacesStderr(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	git.stub("worktree add", secondary.GitResult{Code: 128, Stderr: "fatal: branch already exists"})

	_, err := service.Create(context.Background(), "add-auth", "")
	if err == nil || !strings.Contains(err.Error(), "branch already exists") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestWorktreeSyncParsesStat(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	git.stub("merge --squash --stat spec/add-auth", secondary.GitResult{
		Stdout: " 3 files changed, 41 insertions(+), 7 deletions(-)\n",
	})
	git.stub("rev-parse HEAD", secondary.GitResult{Stdout: "deadbeef\n"})

	result, err := service.Sync(context.Background(), "add-auth")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.FilesChanged != 3 || result.Insertions != 41 || result.Deletions != 7 {
		t.Errorf("stat parsing wrong: %+v", result)
	}
	if result.Commit != "deadbeef" {
		t.Errorf("unexpected commit: %q", result.Commit)
	}
}

func TestWorktreeSyncMergeConflict(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	git.stub("merge --squash", secondary.GitResult{Code: 1, Stderr: "CONFLICT (content): merge conflict"})

	if _, err := service.Sync(context.Background(), "add-auth"); err == nil {
		t.Error("expected merge failure to surface")
	}
}

func TestWorktreeCleanup(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)

	result, err := service.Cleanup(context.Background(), "add-auth", "")
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if !result.Removed || !result.BranchDeleted {
		t.Errorf("expected removal and branch delete: %+v", result)
	}
	if !git.called("worktree remove --force") {
		t.Error("expected worktree remove")
	}
	if !git.called("branch -D spec/add-auth") {
		t.Error("expected branch delete")
	}
}

func TestWorktreeCleanupTargetsGivenPath(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	recorded := "/repo/.worktrees/spec-add-auth-11223344"

	result, err := service.Cleanup(context.Background(), "add-auth", recorded)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if result.Path != recorded {
		t.Errorf("cleanup targeted %q, want the recorded path %q", result.Path, recorded)
	}
	if !git.called("worktree remove --force " + recorded) {
		t.Errorf("expected removal of the recorded path, calls: %v", git.calls)
	}
}

func TestWorktreeCleanupFallsBackToFilesystem(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	git.stub("worktree remove", secondary.GitResult{Code: 128, Stderr: "fatal: not a working tree"})

	result, err := service.Cleanup(context.Background(), "add-auth", "")
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	// The directory never existed, so direct removal succeeds and prunes.
	if !result.Removed {
		t.Error("expected filesystem fallback to succeed")
	}
	if !git.called("worktree prune") {
		t.Error("expected prune after manual removal")
	}
}

func TestWorktreeStatusCountsAheadBehind(t *testing.T) {
	service, git, _ := newTestWorktreeService(t)
	target := service.Path("add-auth", "")
	git.stub("worktree list", secondary.GitResult{
		Stdout: porcelainFor(target, "refs/heads/spec/add-auth"),
	})
	git.stub("status --porcelain", secondary.GitResult{Stdout: "?? notes.txt\n"})
	git.stub("rev-list --count main..spec/add-auth", secondary.GitResult{Stdout: "4\n"})
	git.stub("rev-list --count spec/add-auth..main", secondary.GitResult{Stdout: "1\n"})

	status, err := service.Status(context.Background(), "add-auth", "")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Present || !status.Dirty {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.Ahead != 4 || status.Behind != 1 {
		t.Errorf("ahead/behind wrong: %+v", status)
	}
}

func TestWorktreePathStableForSamePlan(t *testing.T) {
	service, _, root := newTestWorktreeService(t)

	first := service.Path("add-auth", "")
	second := service.Path("add-auth", "")
	if first != second {
		t.Errorf("path not stable: %q vs %q", first, second)
	}
	if filepath.Dir(first) != filepath.Join(root, ".worktrees") {
		t.Errorf("worktree outside .worktrees: %q", first)
	}
}
