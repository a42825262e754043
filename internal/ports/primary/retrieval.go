package primary

import "context"

// Retriever defines the primary port for unified retrieval across the code
// and governance corpora.
type Retriever interface {
	// Search classifies the query, fans out to the selected corpora, and
	// merges ranked results.
	Search(ctx context.Context, req RetrievalRequest) (*RetrievalResponse, error)

	// Reindex refreshes the governance index and, when requested, asks the
	// code backend for a rebuild.
	Reindex(ctx context.Context, full bool) (*ReindexResponse, error)

	// Status reports per-backend availability and index freshness.
	Status(ctx context.Context) (*RetrievalStatus, error)
}

// RetrievalRequest is one retrieval query.
type RetrievalRequest struct {
	Query   string
	Corpus  string // "code", "governance", "hybrid", or "" for auto
	DocType string // restrict governance hits to one document type
	TopK    int
}

// RetrievalResponse carries merged, ranked results.
type RetrievalResponse struct {
	Corpus   string            `json:"corpus"`
	Results  []RetrievalResult `json:"results"`
	Degraded []string          `json:"degraded,omitempty"`
}

// RetrievalResult is one ranked hit from either corpus.
type RetrievalResult struct {
	Source    string  `json:"source"` // "code" or "governance"
	FilePath  string  `json:"file_path"`
	Title     string  `json:"title,omitempty"`
	Excerpt   string  `json:"excerpt,omitempty"`
	Score     float64 `json:"score"`
	LineStart int     `json:"line_start,omitempty"`
	LineEnd   int     `json:"line_end,omitempty"`
	DocType   string  `json:"doc_type,omitempty"`
}

// ReindexResponse summarizes an index refresh.
type ReindexResponse struct {
	GovernanceFiles   int  `json:"governance_files"`
	GovernanceChunks  int  `json:"governance_chunks"`
	GovernanceRemoved int  `json:"governance_removed"`
	CodeReindexed     bool `json:"code_reindexed"`
}

// RetrievalStatus reports backend availability and index freshness.
type RetrievalStatus struct {
	CodeAvailable     bool   `json:"code_available"`
	CodeFiles         int    `json:"code_files,omitempty"`
	CodeModel         string `json:"code_model,omitempty"`
	CodeIndexedAt     string `json:"code_indexed_at,omitempty"`
	CodeStale         bool   `json:"code_stale,omitempty"`
	LastIndexedCommit string `json:"last_indexed_commit,omitempty"`
	GovernanceFiles   int    `json:"governance_files"`
	GovernanceChunks  int    `json:"governance_chunks"`
	EmbedCacheEntries int    `json:"embed_cache_entries,omitempty"`
	EmbedCacheHits    int    `json:"embed_cache_hits,omitempty"`
}
