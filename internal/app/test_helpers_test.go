package app

import (
	"context"
	"strings"

	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

// Ensure the fakes implement their ports.
var (
	_ secondary.GitRunner     = (*fakeGitRunner)(nil)
	_ secondary.CodeSearcher  = (*fakeCodeSearcher)(nil)
	_ primary.WorktreeManager = (*fakeWorktreeManager)(nil)
)

// fakeGitRunner scripts git responses by argument prefix and records every
// invocation.
type fakeGitRunner struct {
	responses map[string]secondary.GitResult
	err       error
	calls     []string
}

func newFakeGitRunner() *fakeGitRunner {
	return &fakeGitRunner{responses: map[string]secondary.GitResult{}}
}

func (f *fakeGitRunner) stub(prefix string, result secondary.GitResult) {
	f.responses[prefix] = result
}

func (f *fakeGitRunner) Run(ctx context.Context, cwd string, args ...string) (secondary.GitResult, error) {
	call := strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if f.err != nil {
		return secondary.GitResult{}, f.err
	}
	var bestPrefix string
	var best secondary.GitResult
	for prefix, result := range f.responses {
		if strings.HasPrefix(call, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			best = result
		}
	}
	if bestPrefix == "" {
		return secondary.GitResult{}, nil
	}
	return best, nil
}

func (f *fakeGitRunner) called(prefix string) bool {
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

// fakeWorktreeManager tracks which worktrees exist without touching git.
type fakeWorktreeManager struct {
	present      map[string]bool
	createErr    error
	syncErr      error
	cleanupErr   error
	synced       []string
	cleaned      []string
	cleanedPaths []string
}

func newFakeWorktreeManager() *fakeWorktreeManager {
	return &fakeWorktreeManager{present: map[string]bool{}}
}

func (f *fakeWorktreeManager) Detect(ctx context.Context, slug, planPath string) (*primary.WorktreeInfo, error) {
	return &primary.WorktreeInfo{
		Present:    f.present[slug],
		Path:       "/repo/.worktrees/spec-" + slug + "-abcd1234",
		BaseBranch: "main",
	}, nil
}

func (f *fakeWorktreeManager) Create(ctx context.Context, slug, planPath string) (*primary.WorktreeCreateResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.present[slug] = true
	return &primary.WorktreeCreateResult{
		Path:       "/repo/.worktrees/spec-" + slug + "-abcd1234",
		Branch:     "spec/" + slug,
		BaseBranch: "main",
	}, nil
}

func (f *fakeWorktreeManager) Diff(ctx context.Context, slug, planPath string) (string, error) {
	return "", nil
}

func (f *fakeWorktreeManager) Sync(ctx context.Context, slug string) (*primary.WorktreeSyncResult, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	f.synced = append(f.synced, slug)
	return &primary.WorktreeSyncResult{Merged: true, FilesChanged: 2}, nil
}

func (f *fakeWorktreeManager) Cleanup(ctx context.Context, slug, worktreePath string) (*primary.WorktreeCleanupResult, error) {
	if f.cleanupErr != nil {
		return nil, f.cleanupErr
	}
	delete(f.present, slug)
	f.cleaned = append(f.cleaned, slug)
	f.cleanedPaths = append(f.cleanedPaths, worktreePath)
	return &primary.WorktreeCleanupResult{Removed: true, BranchDeleted: true, Path: worktreePath}, nil
}

func (f *fakeWorktreeManager) Status(ctx context.Context, slug, planPath string) (*primary.WorktreeStatus, error) {
	return &primary.WorktreeStatus{Present: f.present[slug], BaseBranch: "main"}, nil
}

// fakeCodeSearcher scripts code-search results.
type fakeCodeSearcher struct {
	available bool
	hits      []secondary.CodeHit
	searchErr error
	reindexed bool
}

func (f *fakeCodeSearcher) Available(ctx context.Context) bool { return f.available }

func (f *fakeCodeSearcher) Search(ctx context.Context, query string, top int, path string) ([]secondary.CodeHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeCodeSearcher) IndexInfo(ctx context.Context, path string) (*secondary.CodeIndexInfo, error) {
	return &secondary.CodeIndexInfo{Files: len(f.hits), Model: "test-model"}, nil
}

func (f *fakeCodeSearcher) Reindex(ctx context.Context, path string, full bool) error {
	f.reindexed = true
	return nil
}
