package app

import (
	"context"
	"testing"

	"github.com/example/loom/internal/ports/secondary"
)

func newTestGitAnalyzer(t *testing.T) (*GitAnalyzer, *fakeGitRunner) {
	t.Helper()
	git := newFakeGitRunner()
	return NewGitAnalyzer(git, t.TempDir()), git
}

func TestCurrentHead(t *testing.T) {
	analyzer, git := newTestGitAnalyzer(t)
	git.stub("rev-parse HEAD", secondary.GitResult{Stdout: "deadbeef\n"})

	head, err := analyzer.CurrentHead(context.Background())
	if err != nil {
		t.Fatalf("CurrentHead failed: %v", err)
	}
	if head != "deadbeef" {
		t.Errorf("unexpected head: %q", head)
	}
}

func TestCurrentHeadOutsideRepo(t *testing.T) {
	analyzer, git := newTestGitAnalyzer(t)
	git.stub("rev-parse HEAD", secondary.GitResult{Code: 128, Stderr: "fatal: not a git repository"})

	if _, err := analyzer.CurrentHead(context.Background()); err == nil {
		t.Error("expected error outside a repository")
	}
}

func TestCommitsSince(t *testing.T) {
	analyzer, git := newTestGitAnalyzer(t)
	ctx := context.Background()

	git.stub("rev-list --count abc..HEAD", secondary.GitResult{Stdout: "7\n"})
	n, err := analyzer.CommitsSince(ctx, "abc")
	if err != nil {
		t.Fatalf("CommitsSince failed: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}

	// An unknown commit counts as zero, not an error.
	git.stub("rev-list --count gone..HEAD", secondary.GitResult{Code: 128, Stderr: "fatal: bad revision"})
	n, err = analyzer.CommitsSince(ctx, "gone")
	if err != nil {
		t.Fatalf("CommitsSince failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 for unknown commit, got %d", n)
	}
}

func TestLogParsesHashAndSubject(t *testing.T) {
	analyzer, git := newTestGitAnalyzer(t)
	git.stub("log -50", secondary.GitResult{
		Stdout: "aaa111|fix: handle nil body\nbbb222|feat: add retry with backoff\n",
	})

	commits, err := analyzer.Log(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
	if commits[0].Hash != "aaa111" || commits[0].Message != "fix: handle nil body" {
		t.Errorf("unexpected commit: %+v", commits[0])
	}
}

func TestAddedAndChangedFiles(t *testing.T) {
	analyzer, git := newTestGitAnalyzer(t)
	ctx := context.Background()

	git.stub("diff --name-only --diff-filter=A abc", secondary.GitResult{Stdout: "new.go\n"})
	git.stub("diff --name-only --diff-filter=M abc", secondary.GitResult{Stdout: "changed.go\nother.go\n"})

	added, err := analyzer.AddedFiles(ctx, "abc")
	if err != nil {
		t.Fatalf("AddedFiles failed: %v", err)
	}
	if len(added) != 1 || added[0] != "new.go" {
		t.Errorf("unexpected added files: %v", added)
	}

	changed, err := analyzer.ChangedFiles(ctx, "abc")
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	if len(changed) != 2 {
		t.Errorf("unexpected changed files: %v", changed)
	}
}

func TestFileAtHead(t *testing.T) {
	analyzer, git := newTestGitAnalyzer(t)
	ctx := context.Background()

	git.stub("show HEAD:main.go", secondary.GitResult{Stdout: "package main\n"})
	source, err := analyzer.FileAtHead(ctx, "main.go")
	if err != nil {
		t.Fatalf("FileAtHead failed: %v", err)
	}
	if source != "package main\n" {
		t.Errorf("unexpected contents: %q", source)
	}

	git.stub("show HEAD:gone.go", secondary.GitResult{Code: 128, Stderr: "fatal: path does not exist"})
	if _, err := analyzer.FileAtHead(ctx, "gone.go"); err == nil {
		t.Error("expected error for untracked path")
	}
}

func TestTrackedFiles(t *testing.T) {
	analyzer, git := newTestGitAnalyzer(t)
	git.stub("ls-files", secondary.GitResult{Stdout: "a.go\nb.go\n\n"})

	files, err := analyzer.TrackedFiles(context.Background())
	if err != nil {
		t.Fatalf("TrackedFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("blank lines must be dropped, got %v", files)
	}
}
