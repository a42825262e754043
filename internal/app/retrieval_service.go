package app

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/core/classify"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

const (
	defaultTopK    = 10
	fanoutDeadline = 15 * time.Second

	// Cache entries untouched for this long are dropped on a full reindex.
	embedCacheRetentionDays = 90
)

// RetrieverImpl implements unified retrieval: the query is classified, fanned
// out to the selected corpora, and the hits merged by score. One degraded
// backend never fails the request.
type RetrieverImpl struct {
	governance        *GovernanceIndexer
	code              secondary.CodeSearcher
	root              string
	codeEnabled       bool
	governanceEnabled bool
	indexState        *IndexStateStore
	gitlog            *GitAnalyzer
	log               zerolog.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(
	governance *GovernanceIndexer,
	code secondary.CodeSearcher,
	root string,
	codeEnabled, governanceEnabled bool,
	log zerolog.Logger,
) *RetrieverImpl {
	return &RetrieverImpl{
		governance:        governance,
		code:              code,
		root:              root,
		codeEnabled:       codeEnabled,
		governanceEnabled: governanceEnabled,
		log:               log,
	}
}

// WithIndexState attaches the code-index cursor so Status can report
// staleness against the current HEAD and Reindex can advance it.
func (r *RetrieverImpl) WithIndexState(store *IndexStateStore, gitlog *GitAnalyzer) *RetrieverImpl {
	r.indexState = store
	r.gitlog = gitlog
	return r
}

// Search classifies the query and fans out to the selected corpora.
func (r *RetrieverImpl) Search(ctx context.Context, req primary.RetrievalRequest) (*primary.RetrievalResponse, error) {
	if req.Query == "" {
		return nil, apperr.Validationf("query must not be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	corpus := classify.Corpus(req.Corpus)
	if req.Corpus == "" {
		corpus = classify.Query(req.Query)
	}
	switch corpus {
	case classify.CorpusCode, classify.CorpusGovernance, classify.CorpusHybrid:
	default:
		return nil, apperr.Validationf("unknown corpus %q", req.Corpus)
	}

	resp := &primary.RetrievalResponse{Corpus: string(corpus)}

	fanCtx, cancel := context.WithTimeout(ctx, fanoutDeadline)
	defer cancel()

	var (
		codeHits, govHits []primary.RetrievalResult
		codeDown, govDown bool
	)
	g, gctx := errgroup.WithContext(fanCtx)

	wantCode := corpus != classify.CorpusGovernance && r.codeEnabled
	wantGov := corpus != classify.CorpusCode && r.governanceEnabled

	if wantCode {
		g.Go(func() error {
			hits, err := r.searchCode(gctx, req.Query, topK)
			if err != nil {
				// In hybrid mode the other corpus still answers; a
				// pure code query degrades to empty results.
				r.log.Warn().Err(err).Msg("code backend degraded")
				codeDown = true
				return nil
			}
			codeHits = hits
			return nil
		})
	}
	if wantGov {
		g.Go(func() error {
			hits, err := r.searchGovernance(gctx, req.Query, req.DocType, topK)
			if err != nil {
				r.log.Warn().Err(err).Msg("governance backend degraded")
				govDown = true
				return nil
			}
			govHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if codeDown {
		resp.Degraded = append(resp.Degraded, "code")
	}
	if govDown {
		resp.Degraded = append(resp.Degraded, "governance")
	}

	if corpus == classify.CorpusHybrid {
		resp.Results = mergeHybrid(codeHits, govHits, topK)
	} else {
		merged := append(codeHits, govHits...)
		if len(merged) > topK {
			merged = merged[:topK]
		}
		resp.Results = merged
	}
	return resp, nil
}

// Reindex refreshes the governance index and optionally the code index.
func (r *RetrieverImpl) Reindex(ctx context.Context, full bool) (*primary.ReindexResponse, error) {
	out := &primary.ReindexResponse{}

	if r.governanceEnabled {
		result, err := r.governance.Reindex(ctx)
		if err != nil {
			return nil, err
		}
		out.GovernanceFiles = result.Files
		out.GovernanceChunks = result.Chunks
		out.GovernanceRemoved = result.Removed
		if full {
			r.governance.PruneCache(ctx, embedCacheRetentionDays)
		}
	}

	if r.codeEnabled && r.code.Available(ctx) {
		if err := r.code.Reindex(ctx, r.root, full); err != nil {
			r.log.Warn().Err(err).Msg("code reindex failed")
		} else {
			out.CodeReindexed = true
			r.recordIndexedHead(ctx)
		}
	}
	return out, nil
}

// recordIndexedHead stamps the commit the code index was just built against.
// Failure to record leaves the previous cursor in place; staleness then errs
// on the side of reporting stale.
func (r *RetrieverImpl) recordIndexedHead(ctx context.Context) {
	if r.indexState == nil || r.gitlog == nil {
		return
	}
	head, err := r.gitlog.CurrentHead(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to resolve head for index state")
		return
	}
	if err := r.indexState.Record(head, time.Now()); err != nil {
		r.log.Warn().Err(err).Msg("failed to record index state")
	}
}

// Status reports per-backend availability and index counts.
func (r *RetrieverImpl) Status(ctx context.Context) (*primary.RetrievalStatus, error) {
	status := &primary.RetrievalStatus{}

	if r.codeEnabled && r.code.Available(ctx) {
		status.CodeAvailable = true
		if info, err := r.code.IndexInfo(ctx, r.root); err == nil && info != nil {
			status.CodeFiles = info.Files
			status.CodeModel = info.Model
			status.CodeIndexedAt = info.GeneratedAt
		}
	}

	if r.governanceEnabled {
		stats, err := r.governance.Stats(ctx)
		if err != nil {
			return nil, err
		}
		status.GovernanceFiles = stats.Files
		status.GovernanceChunks = stats.Chunks
		status.EmbedCacheEntries, status.EmbedCacheHits = r.governance.CacheStats(ctx)
	}

	if r.indexState != nil && r.gitlog != nil {
		if state, err := r.indexState.Load(); err == nil {
			status.LastIndexedCommit = state.LastIndexedCommit
			if head, err := r.gitlog.CurrentHead(ctx); err == nil {
				status.CodeStale = state.LastIndexedCommit == "" || head != state.LastIndexedCommit
			}
		}
	}
	return status, nil
}

func (r *RetrieverImpl) searchCode(ctx context.Context, query string, topK int) ([]primary.RetrievalResult, error) {
	if !r.code.Available(ctx) {
		return nil, apperr.Backendf("code search binary not available")
	}
	hits, err := r.code.Search(ctx, query, topK, r.root)
	if err != nil {
		return nil, err
	}
	out := make([]primary.RetrievalResult, len(hits))
	for i, h := range hits {
		out[i] = primary.RetrievalResult{
			Source:    "code",
			FilePath:  h.FilePath,
			Title:     h.Heading,
			Excerpt:   h.Excerpt,
			Score:     h.Score,
			LineStart: h.LineStart,
			LineEnd:   h.LineEnd,
		}
	}
	return out, nil
}

func (r *RetrieverImpl) searchGovernance(ctx context.Context, query, docType string, topK int) ([]primary.RetrievalResult, error) {
	hits, err := r.governance.Search(ctx, query, docType, topK)
	if err != nil {
		return nil, err
	}
	out := make([]primary.RetrievalResult, len(hits))
	for i, h := range hits {
		out[i] = primary.RetrievalResult{
			Source:   "governance",
			FilePath: h.FilePath,
			Title:    h.Title,
			Excerpt:  h.Content,
			Score:    h.Score,
			DocType:  h.DocType,
		}
	}
	return out, nil
}

// mergeHybrid interleaves two ranked lists. Each corpus is guaranteed up to
// ceil(topK/2) slots before the remaining slots go to the higher-scoring
// tail; duplicates by file path keep their best-scoring entry.
func mergeHybrid(code, governance []primary.RetrievalResult, topK int) []primary.RetrievalResult {
	floor := (topK + 1) / 2

	sortByScore(code)
	sortByScore(governance)

	var merged []primary.RetrievalResult
	merged = append(merged, headOf(code, floor)...)
	merged = append(merged, headOf(governance, floor)...)

	var tail []primary.RetrievalResult
	tail = append(tail, tailOf(code, floor)...)
	tail = append(tail, tailOf(governance, floor)...)
	sortByScore(tail)
	merged = append(merged, tail...)

	seen := map[string]int{}
	var out []primary.RetrievalResult
	for _, result := range merged {
		key := result.Source + "|" + result.FilePath
		if idx, ok := seen[key]; ok {
			if result.Score > out[idx].Score {
				out[idx] = result
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, result)
	}

	// Cap before the presentation sort so the floor slots survive even when
	// one corpus scores uniformly higher.
	if len(out) > topK {
		out = out[:topK]
	}
	sortByScore(out)
	return out
}

func sortByScore(results []primary.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func headOf(results []primary.RetrievalResult, n int) []primary.RetrievalResult {
	if len(results) <= n {
		return results
	}
	return results[:n]
}

func tailOf(results []primary.RetrievalResult, n int) []primary.RetrievalResult {
	if len(results) <= n {
		return nil
	}
	return results[n:]
}

var _ primary.Retriever = (*RetrieverImpl)(nil)
