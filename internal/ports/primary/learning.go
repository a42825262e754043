package primary

import "context"

// LearningService defines the primary port for the adaptive learning
// pipeline: analyze history, surface proposals, record decisions.
type LearningService interface {
	// Analyze runs the detection pipeline over commits since the stored
	// cursor (or sinceCommit when given) and persists candidates and
	// proposals.
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)

	// ListProposals returns pending proposals, highest confidence first,
	// marking them presented.
	ListProposals(ctx context.Context, req ListProposalsRequest) ([]*Proposal, error)

	// Decide records the user's verdict on a proposal. Repeat calls on a
	// decided proposal return the prior outcome without side effects.
	Decide(ctx context.Context, req DecideRequest) (*DecideResponse, error)

	// Stats summarizes the pipeline state.
	Stats(ctx context.Context) (*LearningStats, error)
}

// AnalyzeRequest controls one analysis run.
type AnalyzeRequest struct {
	SinceCommit string
	Force       bool // run even below the commit trigger
}

// AnalyzeResponse summarizes one analysis run.
type AnalyzeResponse struct {
	Ran             bool   `json:"ran"`
	Reason          string `json:"reason,omitempty"`
	CommitsAnalyzed int    `json:"commits_analyzed"`
	FilesAnalyzed   int    `json:"files_analyzed"`
	Detections      int    `json:"detections"`
	Candidates      int    `json:"candidates"`
	Proposals       int    `json:"proposals"`
	Head            string `json:"head,omitempty"`
}

// ListProposalsRequest filters the proposal listing.
type ListProposalsRequest struct {
	MaxCount      int
	MinConfidence float64
}

// Proposal is a proposal at the port boundary.
type Proposal struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Content      string  `json:"content"`
	ProposedPath string  `json:"proposed_path"`
	Confidence   float64 `json:"confidence"`
	Status       string  `json:"status"`
}

// DecideRequest records a user verdict.
type DecideRequest struct {
	ProposalID    string
	Decision      string // accept, reject, ignore, snooze
	EditedContent string
}

// DecideResponse reports the decision outcome.
type DecideResponse struct {
	ProposalID   string `json:"proposal_id"`
	Decision     string `json:"decision"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	AlreadyDone  bool   `json:"already_decided,omitempty"`
}

// LearningStats summarizes the learning pipeline.
type LearningStats struct {
	Enabled           bool   `json:"enabled"`
	Sensitivity       string `json:"sensitivity"`
	LastCommit        string `json:"last_commit,omitempty"`
	LastAnalyzedAt    string `json:"last_analyzed_at,omitempty"`
	CommitsAnalyzed   int    `json:"commits_analyzed"`
	PendingProposals  int    `json:"pending_proposals"`
	AcceptedProposals int    `json:"accepted_proposals"`
	RejectedProposals int    `json:"rejected_proposals"`
}

// AnalyticsService defines the primary port for failure analytics.
type AnalyticsService interface {
	// RecordFailure stores a failure event, deduplicated per day.
	RecordFailure(ctx context.Context, req FailureReport) (bool, error)

	// Summary totals failures over the trailing window.
	Summary(ctx context.Context, days int) (*FailureSummary, error)

	// Trends buckets failures by UTC date.
	Trends(ctx context.Context, days int) (map[string]int, error)

	// Hotspots ranks files by failure count.
	Hotspots(ctx context.Context, days, limit int) ([]FileHotspot, error)

	// Effectiveness scores each accepted rule against its baseline.
	Effectiveness(ctx context.Context) ([]*RuleEffectiveness, error)

	// SystematicProblems flags categories failing persistently.
	SystematicProblems(ctx context.Context, days, minCount int) ([]SystemicProblem, error)
}

// FailureReport is one observed failure.
type FailureReport struct {
	Category  string
	FilePath  string
	Detail    string
	SessionID string
}

// FailureSummary totals failures over a window.
type FailureSummary struct {
	Total      int            `json:"total_failures"`
	ByCategory map[string]int `json:"by_category"`
	PeriodDays int            `json:"period_days"`
	DailyRate  float64        `json:"daily_rate"`
}

// FileHotspot is one file ranked by failure count.
type FileHotspot struct {
	FilePath string `json:"file_path"`
	Count    int    `json:"count"`
}

// RuleEffectiveness scores one accepted rule against its baseline.
type RuleEffectiveness struct {
	RulePath     string  `json:"rule_path"`
	Category     string  `json:"category"`
	BaselineRate float64 `json:"baseline_rate"`
	CurrentRate  float64 `json:"current_rate"`
	Score        float64 `json:"score"`
	Verdict      string  `json:"verdict"` // effective, neutral, ineffective
}

// SystemicProblem flags a persistently failing category.
type SystemicProblem struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	DailyRate  float64 `json:"daily_rate"`
	Assessment string  `json:"assessment"`
}
