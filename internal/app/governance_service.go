package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/loom/internal/ports/secondary"
)

// docPattern maps a glob under the project root to a document type.
type docPattern struct {
	glob    string
	docType string
}

// docPatterns is the crawl order; earlier patterns win when a file matches
// more than one.
var docPatterns = []docPattern{
	{".claude/rules/*.md", "rule"},
	{"docs/decisions/*.md", "adr"},
	{".claude/templates/*.md", "template"},
	{".claude/skills/*/*.md", "skill"},
	{".claude/agents/*.md", "agent"},
	{"docs/architecture/*.md", "architecture"},
	{"**/CLAUDE.md", "project"},
	{"**/README.md", "project"},
}

// skipDirs are never crawled.
var skipDirs = map[string]bool{
	".git":         true,
	".worktrees":   true,
	"node_modules": true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
}

// GovernanceIndexer crawls governance documents under the project root and
// keeps the full-text index in step with the files on disk. Documents are
// chunked by top-level heading.
type GovernanceIndexer struct {
	repo  secondary.GovernanceRepository
	cache secondary.EmbedCacheRepository
	root  string
	log   zerolog.Logger
}

// NewGovernanceIndexer creates an indexer rooted at the project directory.
func NewGovernanceIndexer(repo secondary.GovernanceRepository, root string, log zerolog.Logger) *GovernanceIndexer {
	return &GovernanceIndexer{repo: repo, root: root, log: log}
}

// WithEmbedCache attaches the chunk-level embedding cache. The cache is
// best-effort: a broken cache never fails an indexing pass.
func (g *GovernanceIndexer) WithEmbedCache(cache secondary.EmbedCacheRepository) *GovernanceIndexer {
	g.cache = cache
	return g
}

// IndexResult summarizes one indexing pass.
type IndexResult struct {
	Files   int
	Chunks  int
	Skipped int
	Removed int
}

// Reindex walks the document patterns, re-chunking files whose content hash
// changed and dropping files no longer on disk. Unchanged files cost one
// hash comparison and no writes.
func (g *GovernanceIndexer) Reindex(ctx context.Context) (*IndexResult, error) {
	found := g.collect()

	result := &IndexResult{}
	var keep []string
	for _, doc := range found {
		keep = append(keep, doc.path)

		data, err := os.ReadFile(doc.path)
		if err != nil {
			g.log.Warn().Err(err).Str("path", doc.path).Msg("failed to read governance doc")
			result.Skipped++
			continue
		}
		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])

		stored, err := g.repo.FileHash(ctx, doc.path)
		if err != nil {
			return nil, fmt.Errorf("failed to check stored hash: %w", err)
		}
		if stored == hash {
			result.Skipped++
			continue
		}

		chunks := chunkMarkdown(string(data))
		if err := g.repo.ReplaceFile(ctx, doc.path, doc.docType, hash, chunks); err != nil {
			return nil, fmt.Errorf("failed to index %s: %w", doc.path, err)
		}
		g.cacheChunks(ctx, doc.path, chunks)
		result.Files++
		result.Chunks += len(chunks)
	}

	removed, err := g.repo.DeleteMissing(ctx, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to drop stale docs: %w", err)
	}
	result.Removed = removed

	g.log.Info().
		Int("indexed", result.Files).
		Int("unchanged", result.Skipped).
		Int("removed", result.Removed).
		Msg("governance index refreshed")
	return result, nil
}

// Search runs a ranked query over the index. A non-empty docType restricts
// results to that document type.
func (g *GovernanceIndexer) Search(ctx context.Context, query, docType string, topK int) ([]*secondary.GovernanceHit, error) {
	if topK <= 0 {
		topK = 10
	}
	return g.repo.Search(ctx, query, docType, topK)
}

// Stats returns index counts.
func (g *GovernanceIndexer) Stats(ctx context.Context) (*secondary.GovernanceStats, error) {
	return g.repo.Stats(ctx)
}

// CacheStats returns embedding cache counters, or zeros when no cache is
// attached.
func (g *GovernanceIndexer) CacheStats(ctx context.Context) (entries, hits int) {
	if g.cache == nil {
		return 0, 0
	}
	entries, hits, err := g.cache.Stats(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("embed cache stats failed")
		return 0, 0
	}
	return entries, hits
}

// PruneCache drops cache entries older than the retention window. Best
// effort, like all cache paths.
func (g *GovernanceIndexer) PruneCache(ctx context.Context, olderThanDays int) {
	if g.cache == nil {
		return
	}
	pruned, err := g.cache.Prune(ctx, olderThanDays)
	if err != nil {
		g.log.Warn().Err(err).Msg("embed cache prune failed")
		return
	}
	if pruned > 0 {
		g.log.Info().Int("pruned", pruned).Msg("embed cache pruned")
	}
}

// cacheChunks records each chunk body in the embedding cache keyed by its
// content hash. A chunk whose body already appears elsewhere is a hit and
// costs no write.
func (g *GovernanceIndexer) cacheChunks(ctx context.Context, path string, chunks []secondary.GovernanceChunk) {
	if g.cache == nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, chunk := range chunks {
		sum := sha256.Sum256([]byte(chunk.Content))
		contentHash := hex.EncodeToString(sum[:])

		cached, err := g.cache.Hit(ctx, contentHash)
		if err != nil {
			g.log.Warn().Err(err).Str("path", path).Msg("embed cache lookup failed")
			return
		}
		if cached {
			continue
		}
		if err := g.cache.Store(ctx, &secondary.EmbedCacheRecord{
			ContentHash: contentHash,
			FilePath:    path,
			ChunkIndex:  chunk.Index,
			ModelName:   "fts5",
			CachedAt:    now,
		}); err != nil {
			g.log.Warn().Err(err).Str("path", path).Msg("embed cache store failed")
			return
		}
	}
}

type foundDoc struct {
	path    string
	docType string
}

// collect walks the project once and assigns each markdown file the doc type
// of the first pattern it matches.
func (g *GovernanceIndexer) collect() []foundDoc {
	var docs []foundDoc
	seen := map[string]bool{}

	_ = filepath.WalkDir(g.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] && path != g.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, err := filepath.Rel(g.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, p := range docPatterns {
			if matchPattern(p.glob, rel) && !seen[path] {
				seen[path] = true
				docs = append(docs, foundDoc{path: path, docType: p.docType})
				break
			}
		}
		return nil
	})
	return docs
}

// matchPattern matches a rel path against a glob, where a leading "**/"
// also matches files at the root.
func matchPattern(glob, rel string) bool {
	if strings.HasPrefix(glob, "**/") {
		base := strings.TrimPrefix(glob, "**/")
		if ok, _ := filepath.Match(base, filepath.Base(rel)); ok {
			return true
		}
		return false
	}
	ok, _ := filepath.Match(glob, rel)
	return ok
}

// chunkMarkdown splits a document on second-level headings. Content before
// the first heading becomes chunk zero titled by the H1 line when present.
func chunkMarkdown(content string) []secondary.GovernanceChunk {
	lines := strings.Split(content, "\n")

	var chunks []secondary.GovernanceChunk
	var current []string
	title := ""

	flush := func() {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		if body == "" && title == "" {
			return
		}
		chunks = append(chunks, secondary.GovernanceChunk{
			Index:   len(chunks),
			Title:   title,
			Content: body,
		})
		current = nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			flush()
			title = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		if title == "" && strings.HasPrefix(line, "# ") && len(current) == 0 {
			title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			continue
		}
		current = append(current, line)
	}
	flush()
	return chunks
}
