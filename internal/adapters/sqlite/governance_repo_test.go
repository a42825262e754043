package sqlite_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/example/loom/internal/adapters/sqlite"
	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/ports/secondary"
)

func setupGovernanceRepo(t *testing.T) *sqlite.GovernanceRepository {
	t.Helper()
	database, err := db.OpenGovernance(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open governance db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return sqlite.NewGovernanceRepository(database)
}

func indexRuleFile(t *testing.T, repo *sqlite.GovernanceRepository, path, hash string, chunks ...secondary.GovernanceChunk) {
	t.Helper()
	if err := repo.ReplaceFile(context.Background(), path, "rule", hash, chunks); err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}
}

func TestGovernanceRepository_ReplaceAndHash(t *testing.T) {
	repo := setupGovernanceRepo(t)
	ctx := context.Background()

	indexRuleFile(t, repo, "/p/.claude/rules/errors.md", "hash-v1",
		secondary.GovernanceChunk{Index: 0, Title: "Error wrapping", Content: "always wrap errors with context"},
		secondary.GovernanceChunk{Index: 1, Title: "Sentinels", Content: "define sentinel errors per package"},
	)

	hash, err := repo.FileHash(ctx, "/p/.claude/rules/errors.md")
	if err != nil {
		t.Fatalf("FileHash failed: %v", err)
	}
	if hash != "hash-v1" {
		t.Errorf("expected hash-v1, got %q", hash)
	}

	// Re-index with fewer chunks; old chunks must not linger.
	indexRuleFile(t, repo, "/p/.claude/rules/errors.md", "hash-v2",
		secondary.GovernanceChunk{Index: 0, Title: "Error wrapping", Content: "always wrap errors"},
	)

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Files != 1 || stats.Chunks != 1 {
		t.Errorf("expected 1 file / 1 chunk after replace, got %+v", stats)
	}
}

func TestGovernanceRepository_FileHashMissing(t *testing.T) {
	repo := setupGovernanceRepo(t)
	hash, err := repo.FileHash(context.Background(), "/nope.md")
	if err != nil {
		t.Fatalf("FileHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash for unindexed path, got %q", hash)
	}
}

func TestGovernanceRepository_Search(t *testing.T) {
	repo := setupGovernanceRepo(t)
	ctx := context.Background()

	indexRuleFile(t, repo, "/p/.claude/rules/errors.md", "h1",
		secondary.GovernanceChunk{Index: 0, Title: "Error wrapping", Content: "always wrap errors with fmt.Errorf and %w"})
	indexRuleFile(t, repo, "/p/docs/decisions/0001-sqlite.md", "h2",
		secondary.GovernanceChunk{Index: 0, Title: "Use SQLite", Content: "we chose sqlite for local persistence"})

	hits, err := repo.Search(ctx, "wrap errors", "", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	hit := hits[0]
	if hit.FilePath != "/p/.claude/rules/errors.md" || hit.DocType != "rule" {
		t.Errorf("unexpected hit: %+v", hit)
	}
	if hit.Score <= 0 || hit.Score > 1 {
		t.Errorf("score must be in (0,1], got %v", hit.Score)
	}
}

func TestGovernanceRepository_SearchScoresBounded(t *testing.T) {
	repo := setupGovernanceRepo(t)
	ctx := context.Background()

	// Many matching chunks push raw bm25 magnitudes apart; every
	// normalized score must still land in [0,1].
	for i := 0; i < 8; i++ {
		indexRuleFile(t, repo, fmt.Sprintf("/p/rules/r%d.md", i), fmt.Sprintf("h%d", i),
			secondary.GovernanceChunk{Index: 0, Title: "retry", Content: "retry with backoff on transient failures"})
	}

	hits, err := repo.Search(ctx, "retry backoff", "", 20)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	for i, hit := range hits {
		if hit.Score < 0 || hit.Score > 1 {
			t.Errorf("hit %d score out of [0,1]: %v", i, hit.Score)
		}
		if i > 0 && hit.Score > hits[i-1].Score {
			t.Errorf("hits not ordered by score: %v after %v", hit.Score, hits[i-1].Score)
		}
	}
}

func TestGovernanceRepository_SearchDocTypeFilter(t *testing.T) {
	repo := setupGovernanceRepo(t)
	ctx := context.Background()

	indexRuleFile(t, repo, "/p/.claude/rules/errors.md", "h1",
		secondary.GovernanceChunk{Index: 0, Title: "Errors", Content: "wrap errors with context"})
	if err := repo.ReplaceFile(ctx, "/p/docs/decisions/0001-errors.md", "adr", "h2",
		[]secondary.GovernanceChunk{{Index: 0, Title: "Errors ADR", Content: "we wrap errors everywhere"}}); err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}

	hits, err := repo.Search(ctx, "wrap errors", "adr", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 adr hit, got %d", len(hits))
	}
	if hits[0].DocType != "adr" {
		t.Errorf("doc_type filter leaked %q", hits[0].DocType)
	}
}

func TestGovernanceRepository_SearchSurvivesPunctuation(t *testing.T) {
	repo := setupGovernanceRepo(t)
	indexRuleFile(t, repo, "/p/rules/a.md", "h",
		secondary.GovernanceChunk{Index: 0, Title: "t", Content: "quoting rules"})

	if _, err := repo.Search(context.Background(), `"unbalanced (query`, "", 5); err != nil {
		t.Errorf("punctuation should not break the query grammar: %v", err)
	}
}

func TestGovernanceRepository_DeleteMissing(t *testing.T) {
	repo := setupGovernanceRepo(t)
	ctx := context.Background()

	indexRuleFile(t, repo, "/p/a.md", "h1", secondary.GovernanceChunk{Index: 0, Title: "a", Content: "alpha"})
	indexRuleFile(t, repo, "/p/b.md", "h2", secondary.GovernanceChunk{Index: 0, Title: "b", Content: "beta"})

	removed, err := repo.DeleteMissing(ctx, []string{"/p/a.md"})
	if err != nil {
		t.Fatalf("DeleteMissing failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}

	hits, err := repo.Search(ctx, "beta", "", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale document still searchable: %+v", hits)
	}
}
