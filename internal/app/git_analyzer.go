package app

import (
	"context"
	"strconv"
	"strings"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/ports/secondary"
)

// GitAnalyzer derives the facts the learning pipeline needs from project
// history. All calls funnel through the GitRunner port.
type GitAnalyzer struct {
	git  secondary.GitRunner
	root string
}

// NewGitAnalyzer creates an analyzer rooted at the project checkout.
func NewGitAnalyzer(git secondary.GitRunner, root string) *GitAnalyzer {
	return &GitAnalyzer{git: git, root: root}
}

// Commit is one history entry.
type Commit struct {
	Hash    string
	Message string
}

// CurrentHead returns the HEAD commit hash.
func (a *GitAnalyzer) CurrentHead(ctx context.Context) (string, error) {
	result, err := a.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", apperr.Vcsf("rev-parse failed: %s", strings.TrimSpace(result.Stderr))
	}
	return strings.TrimSpace(result.Stdout), nil
}

// CommitsSince counts commits after since; an empty since counts all of
// history.
func (a *GitAnalyzer) CommitsSince(ctx context.Context, since string) (int, error) {
	args := []string{"rev-list", "--count"}
	if since != "" {
		args = append(args, since+"..HEAD")
	} else {
		args = append(args, "HEAD")
	}
	result, err := a.run(ctx, args...)
	if err != nil {
		return 0, err
	}
	if result.Code != 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Log returns up to max commits after since, newest first.
func (a *GitAnalyzer) Log(ctx context.Context, since string, max int) ([]Commit, error) {
	if max <= 0 {
		max = 50
	}
	args := []string{"log", "-" + strconv.Itoa(max), "--pretty=format:%H|%s"}
	if since != "" {
		args = append(args, since+"..HEAD")
	}
	result, err := a.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, nil
	}

	var commits []Commit
	for _, line := range strings.Split(result.Stdout, "\n") {
		hash, message, found := strings.Cut(line, "|")
		if !found || hash == "" {
			continue
		}
		commits = append(commits, Commit{Hash: hash, Message: message})
	}
	return commits, nil
}

// AddedFiles lists files added since the given commit (HEAD~1 when empty).
func (a *GitAnalyzer) AddedFiles(ctx context.Context, since string) ([]string, error) {
	return a.diffNames(ctx, since, "A")
}

// ChangedFiles lists files modified since the given commit (HEAD~1 when
// empty).
func (a *GitAnalyzer) ChangedFiles(ctx context.Context, since string) ([]string, error) {
	return a.diffNames(ctx, since, "M")
}

// FileAtHead returns the committed contents of a tracked file.
func (a *GitAnalyzer) FileAtHead(ctx context.Context, path string) (string, error) {
	result, err := a.run(ctx, "show", "HEAD:"+path)
	if err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", apperr.Vcsf("show failed for %s: %s", path, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// TrackedFiles lists every file tracked at HEAD.
func (a *GitAnalyzer) TrackedFiles(ctx context.Context) ([]string, error) {
	result, err := a.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, apperr.Vcsf("ls-files failed: %s", strings.TrimSpace(result.Stderr))
	}
	return splitLines(result.Stdout), nil
}

// LastCommitTime returns the committer timestamp of HEAD in RFC3339 form.
func (a *GitAnalyzer) LastCommitTime(ctx context.Context) (string, error) {
	result, err := a.run(ctx, "log", "-1", "--format=%cI")
	if err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", nil
	}
	return strings.TrimSpace(result.Stdout), nil
}

func (a *GitAnalyzer) diffNames(ctx context.Context, since, filter string) ([]string, error) {
	args := []string{"diff", "--name-only", "--diff-filter=" + filter}
	if since != "" {
		args = append(args, since)
	} else {
		args = append(args, "HEAD~1")
	}
	result, err := a.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, nil
	}
	return splitLines(result.Stdout), nil
}

func (a *GitAnalyzer) run(ctx context.Context, args ...string) (secondary.GitResult, error) {
	return a.git.Run(ctx, a.root, args...)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
