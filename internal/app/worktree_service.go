package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/core/spec"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

// stashLabel marks stashes made on the user's behalf so they are easy to
// recognize in `git stash list`.
const stashLabel = "loom: pre-worktree stash"

// WorktreeServiceImpl manages spec worktrees under <git_root>/.worktrees/.
// Every git call goes through the injected GitRunner so one fake covers all
// failure modes in tests.
type WorktreeServiceImpl struct {
	git        secondary.GitRunner
	gitRoot    string
	baseBranch string
	log        zerolog.Logger
}

// NewWorktreeService creates a WorktreeService rooted at gitRoot.
func NewWorktreeService(git secondary.GitRunner, gitRoot, baseBranch string, log zerolog.Logger) *WorktreeServiceImpl {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &WorktreeServiceImpl{git: git, gitRoot: gitRoot, baseBranch: baseBranch, log: log}
}

// Path derives the worktree directory for a spec. The fingerprint covers the
// plan file contents, so a revised plan maps to a fresh directory.
func (s *WorktreeServiceImpl) Path(slug, planPath string) string {
	fp := s.fingerprint(slug, planPath)
	return filepath.Join(s.gitRoot, ".worktrees", spec.WorktreeDirName(slug, fp))
}

func (s *WorktreeServiceImpl) fingerprint(slug, planPath string) string {
	var contents []byte
	if planPath != "" {
		if data, err := os.ReadFile(s.resolvePlan(planPath)); err == nil {
			contents = data
		}
	}
	return spec.Fingerprint(slug, contents)
}

func (s *WorktreeServiceImpl) resolvePlan(planPath string) string {
	if filepath.IsAbs(planPath) {
		return planPath
	}
	return filepath.Join(s.gitRoot, planPath)
}

// Detect reports whether the worktree for a spec exists according to
// `git worktree list`.
func (s *WorktreeServiceImpl) Detect(ctx context.Context, slug, planPath string) (*primary.WorktreeInfo, error) {
	result, err := s.run(ctx, s.gitRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	target := s.Path(slug, planPath)
	info := &primary.WorktreeInfo{Path: target, BaseBranch: s.baseBranch}

	var curPath, curBranch string
	flush := func() {
		if curPath != "" && curPath == target {
			info.Present = true
			info.Branch = curBranch
		}
		curPath, curBranch = "", ""
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			curPath = strings.TrimSpace(strings.TrimPrefix(line, "worktree "))
		case strings.HasPrefix(line, "branch "):
			curBranch = strings.TrimSpace(strings.TrimPrefix(line, "branch "))
		case line == "":
			flush()
		}
		if info.Present {
			return info, nil
		}
	}
	flush()
	return info, nil
}

// Create adds the worktree and spec branch. A dirty main checkout is stashed
// with a labeled message first. Returns the existing worktree without error
// when it is already present.
func (s *WorktreeServiceImpl) Create(ctx context.Context, slug, planPath string) (*primary.WorktreeCreateResult, error) {
	branch := spec.BranchName(slug)
	path := s.Path(slug, planPath)

	existing, err := s.Detect(ctx, slug, planPath)
	if err != nil {
		return nil, err
	}
	if existing.Present {
		return &primary.WorktreeCreateResult{Path: path, Branch: branch, BaseBranch: s.baseBranch}, nil
	}

	stashed, err := s.stashIfDirty(ctx, s.gitRoot)
	if err != nil {
		return nil, err
	}

	add, err := s.run(ctx, s.gitRoot, "worktree", "add", "-b", branch, path, s.baseBranch)
	if err != nil {
		return nil, err
	}
	if add.Code != 0 {
		return nil, apperr.Vcsf("worktree add failed: %s", strings.TrimSpace(add.Stderr))
	}

	// Subagents working in the tree need the same governance config.
	if err := copyDir(filepath.Join(s.gitRoot, ".claude"), filepath.Join(path, ".claude")); err != nil {
		s.log.Warn().Err(err).Msg("failed to copy .claude into worktree")
	}
	if err := copyFile(filepath.Join(s.gitRoot, ".mcp.json"), filepath.Join(path, ".mcp.json")); err != nil {
		s.log.Debug().Err(err).Msg("no MCP config copied into worktree")
	}

	return &primary.WorktreeCreateResult{
		Path:       path,
		Branch:     branch,
		BaseBranch: s.baseBranch,
		Stashed:    stashed,
	}, nil
}

// Diff returns the unified diff of the spec branch against its merge-base
// with the base branch. An unknown branch yields an empty diff.
func (s *WorktreeServiceImpl) Diff(ctx context.Context, slug, planPath string) (string, error) {
	branch := spec.BranchName(slug)

	base, err := s.run(ctx, s.gitRoot, "merge-base", s.baseBranch, branch)
	if err != nil {
		return "", err
	}
	if base.Code != 0 {
		return "", nil
	}

	mergeBase := strings.TrimSpace(base.Stdout)
	diff, err := s.run(ctx, s.gitRoot, "diff", mergeBase, branch)
	if err != nil {
		return "", err
	}
	if diff.Code != 0 {
		return "", apperr.Vcsf("diff failed: %s", strings.TrimSpace(diff.Stderr))
	}
	return diff.Stdout, nil
}

var (
	filesChangedRe = regexp.MustCompile(`(\d+) files? changed`)
	insertionsRe   = regexp.MustCompile(`(\d+) insertions?\(\+\)`)
	deletionsRe    = regexp.MustCompile(`(\d+) deletions?\(-\)`)
)

// Sync squash-merges the spec branch onto the base branch. The merge is
// staged, not committed; the caller reviews and commits.
func (s *WorktreeServiceImpl) Sync(ctx context.Context, slug string) (*primary.WorktreeSyncResult, error) {
	branch := spec.BranchName(slug)

	stashed, err := s.stashIfDirty(ctx, s.gitRoot)
	if err != nil {
		return nil, err
	}

	merge, err := s.run(ctx, s.gitRoot, "merge", "--squash", "--stat", branch)
	if err != nil {
		return nil, err
	}
	if merge.Code != 0 {
		return nil, apperr.Vcsf("squash merge failed: %s", strings.TrimSpace(merge.Stderr))
	}

	out := &primary.WorktreeSyncResult{Merged: true, Stashed: stashed}
	for _, line := range strings.Split(merge.Stdout, "\n") {
		if m := filesChangedRe.FindStringSubmatch(line); m != nil {
			out.FilesChanged, _ = strconv.Atoi(m[1])
		}
		if m := insertionsRe.FindStringSubmatch(line); m != nil {
			out.Insertions, _ = strconv.Atoi(m[1])
		}
		if m := deletionsRe.FindStringSubmatch(line); m != nil {
			out.Deletions, _ = strconv.Atoi(m[1])
		}
	}

	head, err := s.run(ctx, s.gitRoot, "rev-parse", "HEAD")
	if err == nil && head.Code == 0 {
		out.Commit = strings.TrimSpace(head.Stdout)
	}
	return out, nil
}

// Cleanup removes the worktree and deletes the spec branch. The caller
// passes the path recorded at creation; re-deriving it here would target the
// wrong directory if the plan file changed mid-run. A failed directory
// removal is retried once with direct filesystem removal; a missing branch
// is not an error.
func (s *WorktreeServiceImpl) Cleanup(ctx context.Context, slug, worktreePath string) (*primary.WorktreeCleanupResult, error) {
	path := worktreePath
	if path == "" {
		path = s.Path(slug, "")
	}
	branch := spec.BranchName(slug)
	out := &primary.WorktreeCleanupResult{Path: path}

	remove, err := s.run(ctx, s.gitRoot, "worktree", "remove", "--force", path)
	if err != nil {
		return nil, err
	}
	out.Removed = remove.Code == 0
	if !out.Removed {
		if rmErr := os.RemoveAll(path); rmErr == nil {
			out.Removed = true
			// git still tracks the metadata after a manual removal.
			if _, err := s.run(ctx, s.gitRoot, "worktree", "prune"); err != nil {
				return nil, err
			}
		} else {
			s.log.Warn().Err(rmErr).Str("path", path).Msg("worktree removal failed")
		}
	}

	if out.Removed {
		del, err := s.run(ctx, s.gitRoot, "branch", "-D", branch)
		if err != nil {
			return nil, err
		}
		out.BranchDeleted = del.Code == 0
	}
	return out, nil
}

// Status reports the live git state of the worktree.
func (s *WorktreeServiceImpl) Status(ctx context.Context, slug, planPath string) (*primary.WorktreeStatus, error) {
	info, err := s.Detect(ctx, slug, planPath)
	if err != nil {
		return nil, err
	}
	status := &primary.WorktreeStatus{BaseBranch: s.baseBranch}
	if !info.Present {
		return status, nil
	}
	status.Present = true
	status.Path = info.Path
	status.Branch = info.Branch

	branch := spec.BranchName(slug)
	porcelain, err := s.run(ctx, info.Path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	status.Dirty = strings.TrimSpace(porcelain.Stdout) != ""

	status.Ahead = s.revCount(ctx, fmt.Sprintf("%s..%s", s.baseBranch, branch))
	status.Behind = s.revCount(ctx, fmt.Sprintf("%s..%s", branch, s.baseBranch))
	return status, nil
}

func (s *WorktreeServiceImpl) revCount(ctx context.Context, rangeSpec string) int {
	result, err := s.run(ctx, s.gitRoot, "rev-list", "--count", rangeSpec)
	if err != nil || result.Code != 0 {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(result.Stdout))
	return n
}

func (s *WorktreeServiceImpl) stashIfDirty(ctx context.Context, cwd string) (bool, error) {
	status, err := s.run(ctx, cwd, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if status.Code != 0 {
		return false, apperr.Vcsf("status failed: %s", strings.TrimSpace(status.Stderr))
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return false, nil
	}
	stash, err := s.run(ctx, cwd, "stash", "push", "-m", stashLabel)
	if err != nil {
		return false, err
	}
	if stash.Code != 0 {
		return false, apperr.Vcsf("stash failed: %s", strings.TrimSpace(stash.Stderr))
	}
	s.log.Info().Str("cwd", cwd).Msg("stashed dirty checkout before worktree operation")
	return true, nil
}

func (s *WorktreeServiceImpl) run(ctx context.Context, cwd string, args ...string) (secondary.GitResult, error) {
	result, err := s.git.Run(ctx, cwd, args...)
	if err != nil {
		return result, fmt.Errorf("failed to run git %s: %w", args[0], err)
	}
	return result, nil
}

func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

var _ primary.WorktreeManager = (*WorktreeServiceImpl)(nil)
