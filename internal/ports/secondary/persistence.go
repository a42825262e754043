// Package secondary defines the secondary ports (driven adapters) for the
// daemon. These are the interfaces through which the application drives
// storage, version control, and the external code-search backend.
package secondary

import "context"

// MemoryRepository defines the secondary port for memory event persistence.
type MemoryRepository interface {
	// Save persists a memory event and returns its rowid. Events carrying
	// a dedupe key upsert onto the existing row.
	Save(ctx context.Context, event *MemoryEventRecord) (int64, error)

	// GetByID retrieves one event.
	GetByID(ctx context.Context, id int64) (*MemoryEventRecord, error)

	// Search runs a full-text query over title, text, and tags.
	Search(ctx context.Context, query string, filters MemoryFilters) ([]*MemoryEventRecord, error)

	// Recent returns the newest events, newest first.
	Recent(ctx context.Context, limit int) ([]*MemoryEventRecord, error)

	// Timeline returns events surrounding an anchor event, oldest first,
	// with the anchor included.
	Timeline(ctx context.Context, anchorID int64, before, after int) ([]*MemoryEventRecord, error)

	// Stats returns event counts grouped by type.
	Stats(ctx context.Context) (*MemoryStats, error)

	// StartSession records the beginning of an agent session.
	StartSession(ctx context.Context, session *SessionRecord) (int64, error)

	// RecentSessions returns the newest sessions, newest first.
	RecentSessions(ctx context.Context, limit int) ([]*SessionRecord, error)
}

// MemoryEventRecord represents a memory event as stored in persistence.
type MemoryEventRecord struct {
	ID             int64
	TS             string
	Actor          string
	Scope          string
	Type           string
	Text           string
	Title          string
	Tags           []string
	Refs           map[string]string
	TTL            string
	Importance     float64
	DedupeKey      string
	Project        string
	SessionID      string
	CreatedAtEpoch int64
}

// MemoryFilters narrows a memory search.
type MemoryFilters struct {
	Type      string
	Project   string
	SessionID string
	Limit     int
}

// MemoryStats summarizes the memory store.
type MemoryStats struct {
	TotalEvents int
	ByType      map[string]int
	Sessions    int
}

// SessionRecord represents an agent session as stored in persistence.
type SessionRecord struct {
	ID               int64
	ContentSessionID string
	Project          string
	InitialPrompt    string
	StartedAt        string
}

// GovernanceRepository defines the secondary port for the governance index.
type GovernanceRepository interface {
	// FileHash returns the stored content hash for a path, or "" if the
	// path is not indexed.
	FileHash(ctx context.Context, path string) (string, error)

	// ReplaceFile atomically swaps all chunks for a file.
	ReplaceFile(ctx context.Context, path, docType, fileHash string, chunks []GovernanceChunk) error

	// DeleteMissing removes records for paths not in keep; returns the
	// number of files dropped.
	DeleteMissing(ctx context.Context, keep []string) (int, error)

	// Search runs a bm25-ranked full-text query with scores in [0,1).
	// A non-empty docType restricts results to that document type.
	Search(ctx context.Context, query, docType string, topK int) ([]*GovernanceHit, error)

	// Stats returns document counts grouped by type.
	Stats(ctx context.Context) (*GovernanceStats, error)
}

// GovernanceChunk is one header-delimited slice of a governance document.
type GovernanceChunk struct {
	Index   int
	Title   string
	Content string
}

// GovernanceHit is one search result from the governance index.
type GovernanceHit struct {
	FilePath   string
	ChunkIndex int
	Title      string
	Content    string
	DocType    string
	Score      float64
}

// GovernanceStats summarizes the governance index.
type GovernanceStats struct {
	Files  int
	Chunks int
	ByType map[string]int
}

// LearningRepository defines the secondary port for the learning pipeline.
type LearningRepository interface {
	// SaveCandidate persists a scored pattern candidate.
	SaveCandidate(ctx context.Context, candidate *CandidateRecord) error

	// ListCandidates returns candidates with the given status, highest
	// confidence first.
	ListCandidates(ctx context.Context, status string) ([]*CandidateRecord, error)

	// UpdateCandidateStatus moves a candidate through its lifecycle.
	UpdateCandidateStatus(ctx context.Context, id, status string) error

	// SaveProposal persists a generated proposal.
	SaveProposal(ctx context.Context, proposal *ProposalRecord) error

	// GetProposal retrieves one proposal.
	GetProposal(ctx context.Context, id string) (*ProposalRecord, error)

	// ListProposals returns proposals with the given status ("" for all),
	// highest confidence first.
	ListProposals(ctx context.Context, status string) ([]*ProposalRecord, error)

	// MarkPresented stamps presented_at and moves to presented.
	MarkPresented(ctx context.Context, id, presentedAt string) error

	// RecordDecision stamps the decision fields and final status.
	RecordDecision(ctx context.Context, id, status, decision, decidedAt, editedContent string) error

	// InCooldown reports whether a (detection type, description hash)
	// pair was rejected or ignored within the cooldown window.
	InCooldown(ctx context.Context, detectionType, descriptionHash string, cooldownDays int) (bool, error)

	// PriorDecisionFactor derives the confidence prior in [0.5, 1.5] from
	// the decision history for a detection type.
	PriorDecisionFactor(ctx context.Context, detectionType string) (float64, error)

	// AnalysisState returns the incremental analysis cursor, or nil when
	// no analysis has run yet.
	AnalysisState(ctx context.Context) (*AnalysisStateRecord, error)

	// SetAnalysisState advances the cursor.
	SetAnalysisState(ctx context.Context, state *AnalysisStateRecord) error
}

// CandidateRecord represents a pattern candidate as stored in persistence.
type CandidateRecord struct {
	ID              string
	DetectionType   string
	Count           int
	ConfidenceRaw   float64
	ConfidenceFinal float64
	Files           []string
	Description     string
	Instances       string // JSON array
	DetectedAt      string
	Status          string
	DescriptionHash string
}

// ProposalRecord represents a proposal as stored in persistence.
type ProposalRecord struct {
	ID              string
	CandidateID     string
	Type            string
	Title           string
	Description     string
	ProposedContent string
	ProposedPath    string
	Confidence      float64
	Status          string
	PresentedAt     string
	DecidedAt       string
	Decision        string
	EditedContent   string
	SessionID       string
}

// AnalysisStateRecord is the incremental learning cursor. WarmupStartedAt
// anchors the observation window that must elapse before unforced analysis
// runs.
type AnalysisStateRecord struct {
	LastCommit           string
	LastAnalyzedAt       string
	TotalCommitsAnalyzed int
	WarmupStartedAt      string
}

// AnalyticsRepository defines the secondary port for failure analytics.
type AnalyticsRepository interface {
	// RecordFailure inserts a failure event, silently dropping duplicates
	// of the same signature.
	RecordFailure(ctx context.Context, event *FailureEventRecord) (bool, error)

	// FailuresPerDay returns the average daily failure rate for a
	// category over the trailing window.
	FailuresPerDay(ctx context.Context, category string, windowDays int) (float64, error)

	// Trends buckets failures by UTC date over the trailing window.
	Trends(ctx context.Context, windowDays int) (map[string]int, error)

	// Hotspots returns the files with the most failures in the window.
	Hotspots(ctx context.Context, windowDays, limit int) ([]Hotspot, error)

	// CreateBaseline snapshots the failure rate at rule-accept time.
	CreateBaseline(ctx context.Context, baseline *RuleBaselineRecord) error

	// ListBaselines returns all rule baselines.
	ListBaselines(ctx context.Context) ([]*RuleBaselineRecord, error)
}

// FailureEventRecord represents a failure event as stored in persistence.
type FailureEventRecord struct {
	ID         string
	Category   string
	FilePath   string
	Detail     string
	SessionID  string
	RecordedAt string
	Signature  string
}

// Hotspot is one file ranked by failure count.
type Hotspot struct {
	FilePath string
	Count    int
}

// RuleBaselineRecord snapshots a failure rate when a rule is accepted.
type RuleBaselineRecord struct {
	ID                 string
	ProposalID         string
	RulePath           string
	Category           string
	BaselineCount      int
	BaselineWindowDays int
	CreatedAt          string
	CategorySource     string
}

// EmbedCacheRepository defines the secondary port for the embedding cache.
type EmbedCacheRepository interface {
	// Hit reports whether a content hash is cached, bumping its counter.
	Hit(ctx context.Context, contentHash string) (bool, error)

	// Store records that a chunk was embedded.
	Store(ctx context.Context, record *EmbedCacheRecord) error

	// Stats returns entry count and total hits.
	Stats(ctx context.Context) (entries int, hits int, err error)

	// Prune drops entries cached more than olderThanDays ago.
	Prune(ctx context.Context, olderThanDays int) (int, error)
}

// EmbedCacheRecord represents one cached embedding as stored in persistence.
type EmbedCacheRecord struct {
	ContentHash string
	FilePath    string
	ChunkIndex  int
	ModelName   string
	CachedAt    string
	HitCount    int
}
