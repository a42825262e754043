package secondary

import "context"

// GitRunner defines the secondary port for version control. Every git
// operation in the daemon funnels through this single choke point so one
// mock suffices to simulate all failure modes.
type GitRunner interface {
	// Run executes git with the given args in cwd.
	Run(ctx context.Context, cwd string, args ...string) (GitResult, error)
}

// GitResult carries the outcome of one git invocation.
type GitResult struct {
	Stdout string
	Stderr string
	Code   int
}

// CodeSearcher defines the secondary port for the external code-search
// binary. Absence of the binary is a degraded mode, not an error.
type CodeSearcher interface {
	// Available probes for the binary.
	Available(ctx context.Context) bool

	// Search runs a semantic query rooted at path.
	Search(ctx context.Context, query string, top int, path string) ([]CodeHit, error)

	// IndexInfo reports index metadata, or nil when no index exists.
	IndexInfo(ctx context.Context, path string) (*CodeIndexInfo, error)

	// Reindex asks the backend to rebuild its index.
	Reindex(ctx context.Context, path string, full bool) error
}

// CodeHit is one result row from the code-search backend.
type CodeHit struct {
	Rank       int
	Score      float64
	FilePath   string
	ChunkIndex int
	LineStart  int
	LineEnd    int
	Heading    string
	Excerpt    string
}

// CodeIndexInfo is the code index metadata.
type CodeIndexInfo struct {
	Files       int
	Model       string
	GeneratedAt string
}
