package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/loom/internal/analyzer"
	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/artifacts"
	"github.com/example/loom/internal/config"
	"github.com/example/loom/internal/core/heuristics"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

// heuristicArtifactTypes maps each heuristic to the artifact it proposes.
var heuristicArtifactTypes = map[string]string{
	heuristics.H1RepeatedBlock:   artifacts.TypeRule,
	heuristics.H2MissingStandard: artifacts.TypeADR,
	heuristics.H3Inconsistent:    artifacts.TypeRule,
	heuristics.H4SecurityShape:   artifacts.TypeRule,
	heuristics.H5Performance:     artifacts.TypeRule,
	heuristics.H6TestGap:         artifacts.TypeSkill,
	heuristics.H7DocGap:          artifacts.TypeTemplate,
}

var proposalTitlePrefixes = map[string]string{
	heuristics.H1RepeatedBlock:   "Add rule",
	heuristics.H2MissingStandard: "Record decision",
	heuristics.H3Inconsistent:    "Standardize",
	heuristics.H4SecurityShape:   "Add security rule",
	heuristics.H5Performance:     "Add performance rule",
	heuristics.H6TestGap:         "Add testing skill",
	heuristics.H7DocGap:          "Add doc template",
}

// LearningServiceImpl runs the adaptive learning pipeline: git history →
// analyzer shapes → heuristics → candidates → proposals → user decisions →
// artifacts.
type LearningServiceImpl struct {
	repo      secondary.LearningRepository
	analytics secondary.AnalyticsRepository
	memory    secondary.MemoryRepository
	gitlog    *GitAnalyzer
	cfg       *config.Config
	root      string
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewLearningService creates a LearningService.
func NewLearningService(
	repo secondary.LearningRepository,
	analytics secondary.AnalyticsRepository,
	memory secondary.MemoryRepository,
	gitlog *GitAnalyzer,
	cfg *config.Config,
	root string,
	log zerolog.Logger,
) *LearningServiceImpl {
	return &LearningServiceImpl{
		repo:      repo,
		analytics: analytics,
		memory:    memory,
		gitlog:    gitlog,
		cfg:       cfg,
		root:      root,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Analyze runs the detection pipeline over commits since the stored cursor.
// Below the commit trigger the run is skipped unless forced.
func (s *LearningServiceImpl) Analyze(ctx context.Context, req primary.AnalyzeRequest) (*primary.AnalyzeResponse, error) {
	if !s.cfg.Learning.GlobalEnabled && !req.Force {
		return &primary.AnalyzeResponse{Reason: "learning disabled"}, nil
	}

	since := req.SinceCommit
	state, err := s.repo.AnalysisState(ctx)
	if err != nil {
		return nil, err
	}
	if since == "" && state != nil {
		since = state.LastCommit
	}

	if !req.Force {
		waiting, err := s.inWarmup(ctx, state)
		if err != nil {
			return nil, err
		}
		if waiting {
			return &primary.AnalyzeResponse{
				Reason: fmt.Sprintf("warmup window active (%dh)", s.cfg.Learning.WarmupHours),
			}, nil
		}
	}

	commits, err := s.gitlog.CommitsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	if commits == 0 {
		return &primary.AnalyzeResponse{Reason: "no new commits"}, nil
	}
	if !req.Force && commits < s.cfg.Learning.CommitsPerTrigger {
		return &primary.AnalyzeResponse{
			Reason: fmt.Sprintf("below commit trigger (%d of %d)", commits, s.cfg.Learning.CommitsPerTrigger),
		}, nil
	}

	input, filesAnalyzed, err := s.buildInput(ctx, since)
	if err != nil {
		return nil, err
	}

	detections := heuristics.Detect(input)
	candidates := heuristics.Filter(detections, heuristics.FilterContext{
		InCooldown:              s.cooldownCheck(ctx),
		ExistingRuleFingerprint: s.ruleFingerprintCheck(),
		PriorFactor:             s.priorFactor(ctx),
		NewID:                   s.newID,
		Now:                     s.now().UTC(),
	})

	minConfidence := s.cfg.MinConfidence()
	var kept []heuristics.Candidate
	for _, c := range candidates {
		if c.ConfidenceFinal >= minConfidence {
			kept = append(kept, c)
		}
	}

	for _, c := range kept {
		if err := s.saveCandidate(ctx, c); err != nil {
			return nil, err
		}
	}

	proposals, err := s.generateProposals(ctx, kept)
	if err != nil {
		return nil, err
	}

	head, err := s.gitlog.CurrentHead(ctx)
	if err != nil {
		return nil, err
	}
	total := commits
	warmupStartedAt := s.now().UTC().Format(time.RFC3339)
	if state != nil {
		total += state.TotalCommitsAnalyzed
		if state.WarmupStartedAt != "" {
			warmupStartedAt = state.WarmupStartedAt
		}
	}
	if err := s.repo.SetAnalysisState(ctx, &secondary.AnalysisStateRecord{
		LastCommit:           head,
		LastAnalyzedAt:       s.now().UTC().Format(time.RFC3339),
		TotalCommitsAnalyzed: total,
		WarmupStartedAt:      warmupStartedAt,
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Int("commits", commits).
		Int("detections", len(detections)).
		Int("candidates", len(kept)).
		Int("proposals", len(proposals)).
		Msg("learning analysis complete")

	return &primary.AnalyzeResponse{
		Ran:             true,
		CommitsAnalyzed: commits,
		FilesAnalyzed:   filesAnalyzed,
		Detections:      len(detections),
		Candidates:      len(kept),
		Proposals:       len(proposals),
		Head:            head,
	}, nil
}

// inWarmup reports whether the observation window is still open. The window
// anchors on the first analysis attempt: that attempt seeds the anchor and
// is itself skipped.
func (s *LearningServiceImpl) inWarmup(ctx context.Context, state *secondary.AnalysisStateRecord) (bool, error) {
	if s.cfg.Learning.WarmupHours <= 0 {
		return false, nil
	}
	now := s.now().UTC()
	if state == nil || state.WarmupStartedAt == "" {
		seed := state
		if seed == nil {
			seed = &secondary.AnalysisStateRecord{}
		}
		seed.WarmupStartedAt = now.Format(time.RFC3339)
		if err := s.repo.SetAnalysisState(ctx, seed); err != nil {
			return false, err
		}
		return true, nil
	}
	started, err := time.Parse(time.RFC3339, state.WarmupStartedAt)
	if err != nil {
		// An unparseable anchor never blocks analysis.
		return false, nil
	}
	return now.Sub(started) < time.Duration(s.cfg.Learning.WarmupHours)*time.Hour, nil
}

// buildInput assembles the heuristic input window from git facts. Per-file
// analyzer errors skip the file; the run continues.
func (s *LearningServiceImpl) buildInput(ctx context.Context, since string) (heuristics.Input, int, error) {
	in := heuristics.Input{
		Patterns:   map[string]analyzer.FilePatterns{},
		Sources:    map[string]string{},
		RepoFiles:  map[string]bool{},
		CommitTime: s.now().UTC(),
	}

	added, err := s.gitlog.AddedFiles(ctx, since)
	if err != nil {
		return in, 0, err
	}
	modified, err := s.gitlog.ChangedFiles(ctx, since)
	if err != nil {
		return in, 0, err
	}
	in.NewFiles = added

	tracked, err := s.gitlog.TrackedFiles(ctx)
	if err != nil {
		return in, 0, err
	}
	for _, f := range tracked {
		in.RepoFiles[f] = true
	}

	if ts, err := s.gitlog.LastCommitTime(ctx); err == nil && ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			in.CommitTime = parsed.UTC()
		}
	}

	files := append(append([]string{}, added...), modified...)
	analyzed := 0
	for _, f := range files {
		source, err := s.gitlog.FileAtHead(ctx, f)
		if err != nil {
			s.log.Debug().Err(err).Str("file", f).Msg("skipping unreadable file")
			continue
		}
		patterns := analyzer.Extract(f, []byte(source))
		if patterns.Skipped {
			s.log.Debug().Str("file", f).Str("reason", patterns.SkipReason).Msg("analyzer skipped file")
			continue
		}
		in.Patterns[f] = patterns
		in.Sources[f] = source
		analyzed++
	}
	return in, analyzed, nil
}

func (s *LearningServiceImpl) saveCandidate(ctx context.Context, c heuristics.Candidate) error {
	instances, err := json.Marshal(c.Instances)
	if err != nil {
		instances = []byte("[]")
	}
	return s.repo.SaveCandidate(ctx, &secondary.CandidateRecord{
		ID:              c.ID,
		DetectionType:   c.DetectionType,
		Count:           c.Count,
		ConfidenceRaw:   c.ConfidenceRaw,
		ConfidenceFinal: c.ConfidenceFinal,
		Files:           c.Files,
		Description:     c.Description,
		Instances:       string(instances),
		DetectedAt:      s.now().UTC().Format(time.RFC3339),
		Status:          "pending",
		DescriptionHash: c.DescriptionHash,
	})
}

// generateProposals maps surviving candidates to proposals, capped per
// session, deduplicated by description hash.
func (s *LearningServiceImpl) generateProposals(ctx context.Context, candidates []heuristics.Candidate) ([]*secondary.ProposalRecord, error) {
	var proposals []*secondary.ProposalRecord
	seen := map[string]bool{}

	for _, c := range candidates {
		if len(proposals) >= s.cfg.Learning.MaxProposalsPerSession {
			break
		}
		if seen[c.DescriptionHash] {
			continue
		}
		seen[c.DescriptionHash] = true

		artifactType := heuristicArtifactTypes[c.Heuristic]
		if artifactType == "" {
			artifactType = artifacts.TypeProjectGraph
		}
		title := proposalTitle(c)
		record := &secondary.ProposalRecord{
			ID:              s.newID(),
			CandidateID:     c.ID,
			Type:            artifactType,
			Title:           title,
			Description:     c.Description,
			ProposedContent: proposalBody(c),
			ProposedPath:    artifacts.Path(s.root, artifactType, title),
			Confidence:      c.ConfidenceFinal,
			Status:          "pending",
		}
		if err := s.repo.SaveProposal(ctx, record); err != nil {
			return nil, err
		}
		if err := s.repo.UpdateCandidateStatus(ctx, c.ID, "proposed"); err != nil {
			return nil, err
		}
		proposals = append(proposals, record)
	}
	return proposals, nil
}

// ListProposals returns pending proposals above the confidence floor,
// marking each presented.
func (s *LearningServiceImpl) ListProposals(ctx context.Context, req primary.ListProposalsRequest) ([]*primary.Proposal, error) {
	maxCount := req.MaxCount
	if maxCount <= 0 {
		maxCount = s.cfg.Learning.MaxProposalsPerSession
	}
	minConfidence := req.MinConfidence
	if minConfidence <= 0 {
		minConfidence = s.cfg.MinConfidence()
	}

	records, err := s.repo.ListProposals(ctx, "pending")
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Format(time.RFC3339)
	var out []*primary.Proposal
	for _, r := range records {
		if len(out) >= maxCount {
			break
		}
		if r.Confidence < minConfidence {
			continue
		}
		if err := s.repo.MarkPresented(ctx, r.ID, now); err != nil {
			return nil, err
		}
		out = append(out, proposalToPort(r))
	}
	return out, nil
}

// Decide records the user's verdict. A repeated decision returns the prior
// outcome without re-running side effects. Snooze is a deferral, not a
// terminal state: a snoozed proposal can still be accepted or rejected
// later.
func (s *LearningServiceImpl) Decide(ctx context.Context, req primary.DecideRequest) (*primary.DecideResponse, error) {
	record, err := s.repo.GetProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, apperr.NotFoundf("proposal %q", req.ProposalID)
	}

	if record.Decision != "" && record.Decision != "snooze" {
		return &primary.DecideResponse{
			ProposalID:   record.ID,
			Decision:     record.Decision,
			ArtifactPath: decidedArtifactPath(record),
			AlreadyDone:  true,
		}, nil
	}

	now := s.now().UTC().Format(time.RFC3339)
	switch req.Decision {
	case "accept":
		return s.accept(ctx, record, req.EditedContent, now)
	case "reject", "ignore":
		status := req.Decision + "ed"
		if req.Decision == "ignore" {
			status = "ignored"
		}
		if err := s.repo.RecordDecision(ctx, record.ID, status, req.Decision, now, ""); err != nil {
			return nil, err
		}
		s.recordDecisionEvent(ctx, record, req.Decision, "", 0.5)
		return &primary.DecideResponse{ProposalID: record.ID, Decision: req.Decision}, nil
	case "snooze":
		if err := s.repo.RecordDecision(ctx, record.ID, "snoozed", "snooze", now, ""); err != nil {
			return nil, err
		}
		return &primary.DecideResponse{ProposalID: record.ID, Decision: "snooze"}, nil
	default:
		return nil, apperr.Validationf("unknown decision %q", req.Decision)
	}
}

func (s *LearningServiceImpl) accept(ctx context.Context, record *secondary.ProposalRecord, edited, now string) (*primary.DecideResponse, error) {
	path, err := artifacts.Write(s.root, artifacts.Input{
		ProposalID:  record.ID,
		Type:        record.Type,
		Title:       record.Title,
		Description: record.Description,
		Body:        record.ProposedContent,
		Tags:        []string{"learning", record.Type},
	}, edited)
	if err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := s.repo.RecordDecision(ctx, record.ID, "accepted", "accept", now, edited); err != nil {
		return nil, err
	}

	// Snapshot the failure rate so the rule's effect is measurable later.
	if record.Type == artifacts.TypeRule {
		category := failureCategoryFor(record)
		rate, err := s.analytics.FailuresPerDay(ctx, category, 30)
		if err == nil {
			baseline := &secondary.RuleBaselineRecord{
				ID:                 s.newID(),
				ProposalID:         record.ID,
				RulePath:           path,
				Category:           category,
				BaselineCount:      int(rate * 30),
				BaselineWindowDays: 30,
				CreatedAt:          now,
				CategorySource:     "heuristic",
			}
			if err := s.analytics.CreateBaseline(ctx, baseline); err != nil {
				s.log.Warn().Err(err).Msg("failed to snapshot rule baseline")
			}
		}
	}

	s.recordDecisionEvent(ctx, record, "accept", path, 0.7)
	return &primary.DecideResponse{ProposalID: record.ID, Decision: "accept", ArtifactPath: path}, nil
}

// Stats summarizes the pipeline state.
func (s *LearningServiceImpl) Stats(ctx context.Context) (*primary.LearningStats, error) {
	stats := &primary.LearningStats{
		Enabled:     s.cfg.Learning.GlobalEnabled,
		Sensitivity: s.cfg.Learning.Sensitivity,
	}

	state, err := s.repo.AnalysisState(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		stats.LastCommit = state.LastCommit
		stats.LastAnalyzedAt = state.LastAnalyzedAt
		stats.CommitsAnalyzed = state.TotalCommitsAnalyzed
	}

	all, err := s.repo.ListProposals(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		switch p.Status {
		case "pending", "presented":
			stats.PendingProposals++
		case "accepted":
			stats.AcceptedProposals++
		case "rejected", "ignored":
			stats.RejectedProposals++
		}
	}
	return stats, nil
}

func (s *LearningServiceImpl) cooldownCheck(ctx context.Context) func(string, string) bool {
	return func(detectionType, hash string) bool {
		cooling, err := s.repo.InCooldown(ctx, detectionType, hash, s.cfg.Learning.CooldownDays)
		if err != nil {
			s.log.Warn().Err(err).Msg("cooldown check failed")
			return false
		}
		return cooling
	}
}

func (s *LearningServiceImpl) ruleFingerprintCheck() func(string) bool {
	existing := artifacts.ExistingRuleFingerprints(s.root)
	return func(hash string) bool { return existing[hash] }
}

func (s *LearningServiceImpl) priorFactor(ctx context.Context) func(string) float64 {
	return func(detectionType string) float64 {
		factor, err := s.repo.PriorDecisionFactor(ctx, detectionType)
		if err != nil {
			return 1.0
		}
		return factor
	}
}

// recordDecisionEvent is best-effort; decisions never fail on a memory
// outage.
func (s *LearningServiceImpl) recordDecisionEvent(ctx context.Context, record *secondary.ProposalRecord, decision, artifactPath string, importance float64) {
	if s.memory == nil {
		return
	}
	refs := map[string]string{"proposal_id": record.ID}
	if artifactPath != "" {
		refs["artifact_path"] = artifactPath
	}
	event := &secondary.MemoryEventRecord{
		TS:             s.now().UTC().Format(time.RFC3339Nano),
		Type:           "decision",
		Title:          fmt.Sprintf("Proposal %s: %s", decision, record.Title),
		Text:           record.Description,
		Tags:           []string{"learning", decision},
		Refs:           refs,
		Importance:     importance,
		CreatedAtEpoch: s.now().Unix(),
	}
	if _, err := s.memory.Save(ctx, event); err != nil {
		s.log.Warn().Err(err).Msg("failed to record decision memory event")
	}
}

func proposalTitle(c heuristics.Candidate) string {
	prefix := proposalTitlePrefixes[c.Heuristic]
	if prefix == "" {
		prefix = "Add rule"
	}
	desc := c.Description
	if len(desc) > 50 {
		desc = desc[:47] + "..."
	}
	return prefix + ": " + desc
}

// proposalBody renders the reviewable pattern summary shown to the user.
func proposalBody(c heuristics.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Detected a recurring pattern (%s, %d occurrences across %d files).\n\n",
		c.DetectionType, c.Count, len(c.Files))
	b.WriteString("Files involved:\n")
	for i, f := range c.Files {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if len(c.Instances) > 0 {
		b.WriteString("\nExample instances:\n")
		for i, inst := range c.Instances {
			if i == 5 {
				break
			}
			encoded, err := json.Marshal(inst)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", encoded)
		}
	}
	return b.String()
}

func proposalToPort(r *secondary.ProposalRecord) *primary.Proposal {
	return &primary.Proposal{
		ID:           r.ID,
		Type:         r.Type,
		Title:        r.Title,
		Description:  r.Description,
		Content:      r.ProposedContent,
		ProposedPath: r.ProposedPath,
		Confidence:   r.Confidence,
		Status:       r.Status,
	}
}

func decidedArtifactPath(r *secondary.ProposalRecord) string {
	if r.Decision == "accept" {
		return r.ProposedPath
	}
	return ""
}

// failureCategoryFor picks the analytics category a rule should move.
func failureCategoryFor(r *secondary.ProposalRecord) string {
	title := strings.ToLower(r.Title)
	switch {
	case strings.Contains(title, "security"):
		return "security_issue"
	case strings.Contains(title, "performance"):
		return "performance_issue"
	case strings.Contains(title, "test"):
		return "test_failure"
	default:
		return "lint_error"
	}
}

var _ primary.LearningService = (*LearningServiceImpl)(nil)
