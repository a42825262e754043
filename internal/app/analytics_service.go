package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

// Failure categories accepted by RecordFailure.
var failureCategories = map[string]bool{
	"test_failure":      true,
	"lint_error":        true,
	"type_error":        true,
	"build_failure":     true,
	"runtime_error":     true,
	"security_issue":    true,
	"performance_issue": true,
	"review_must_fix":   true,
}

const defaultAnalyticsWindow = 30

// AnalyticsServiceImpl implements failure analytics over the shared learning
// database, including rule effectiveness against accept-time baselines.
type AnalyticsServiceImpl struct {
	repo  secondary.AnalyticsRepository
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(repo secondary.AnalyticsRepository, log zerolog.Logger) *AnalyticsServiceImpl {
	return &AnalyticsServiceImpl{repo: repo, log: log, now: time.Now, newID: uuid.NewString}
}

// RecordFailure stores a failure event. Events sharing a signature on the
// same UTC day collapse into one row.
func (s *AnalyticsServiceImpl) RecordFailure(ctx context.Context, req primary.FailureReport) (bool, error) {
	if !failureCategories[req.Category] {
		return false, apperr.Validationf("unknown failure category %q", req.Category)
	}

	now := s.now().UTC()
	inserted, err := s.repo.RecordFailure(ctx, &secondary.FailureEventRecord{
		ID:         s.newID(),
		Category:   req.Category,
		FilePath:   req.FilePath,
		Detail:     req.Detail,
		SessionID:  req.SessionID,
		RecordedAt: now.Format(time.RFC3339),
		Signature:  FailureSignature(req.Category, req.FilePath, req.Detail, now),
	})
	if err != nil {
		return false, fmt.Errorf("failed to record failure: %w", err)
	}
	return inserted, nil
}

// FailureSignature computes the per-day dedup key for a failure.
func FailureSignature(category, filePath, detail string, day time.Time) string {
	if len(detail) > 200 {
		detail = detail[:200]
	}
	raw := category + "|" + filePath + "|" + detail + "|" + day.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// Summary totals failures over the trailing window.
func (s *AnalyticsServiceImpl) Summary(ctx context.Context, days int) (*primary.FailureSummary, error) {
	if days <= 0 {
		days = defaultAnalyticsWindow
	}

	byCategory := map[string]int{}
	total := 0
	for category := range failureCategories {
		rate, err := s.repo.FailuresPerDay(ctx, category, days)
		if err != nil {
			return nil, err
		}
		count := int(rate*float64(days) + 0.5)
		if count > 0 {
			byCategory[category] = count
			total += count
		}
	}

	summary := &primary.FailureSummary{
		Total:      total,
		ByCategory: byCategory,
		PeriodDays: days,
	}
	if total > 0 {
		summary.DailyRate = float64(total) / float64(days)
	}
	return summary, nil
}

// Trends buckets failures by UTC date.
func (s *AnalyticsServiceImpl) Trends(ctx context.Context, days int) (map[string]int, error) {
	if days <= 0 {
		days = defaultAnalyticsWindow
	}
	return s.repo.Trends(ctx, days)
}

// Hotspots ranks files by failure count.
func (s *AnalyticsServiceImpl) Hotspots(ctx context.Context, days, limit int) ([]primary.FileHotspot, error) {
	if days <= 0 {
		days = defaultAnalyticsWindow
	}
	if limit <= 0 {
		limit = 10
	}
	hotspots, err := s.repo.Hotspots(ctx, days, limit)
	if err != nil {
		return nil, err
	}
	out := make([]primary.FileHotspot, len(hotspots))
	for i, h := range hotspots {
		out[i] = primary.FileHotspot{FilePath: h.FilePath, Count: h.Count}
	}
	return out, nil
}

// Effectiveness scores each accepted rule: the current failure rate in the
// rule's category against the rate frozen at accept time. Score 1 means the
// failures vanished, 0.5 means nothing changed, 0 means they doubled.
func (s *AnalyticsServiceImpl) Effectiveness(ctx context.Context) ([]*primary.RuleEffectiveness, error) {
	baselines, err := s.repo.ListBaselines(ctx)
	if err != nil {
		return nil, err
	}

	var out []*primary.RuleEffectiveness
	for _, b := range baselines {
		window := b.BaselineWindowDays
		if window <= 0 {
			window = defaultAnalyticsWindow
		}
		current, err := s.repo.FailuresPerDay(ctx, b.Category, window)
		if err != nil {
			return nil, err
		}
		baselineRate := float64(b.BaselineCount) / float64(window)
		score := EffectivenessScore(baselineRate, current)
		out = append(out, &primary.RuleEffectiveness{
			RulePath:     b.RulePath,
			Category:     b.Category,
			BaselineRate: baselineRate,
			CurrentRate:  current,
			Score:        score,
			Verdict:      effectivenessVerdict(score),
		})
	}
	return out, nil
}

// EffectivenessScore maps the current/baseline failure ratio to [0, 1].
func EffectivenessScore(baselineRate, currentRate float64) float64 {
	floor := baselineRate
	if floor < 0.01 {
		floor = 0.01
	}
	score := 1 - (currentRate/floor)/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func effectivenessVerdict(score float64) string {
	switch {
	case score > 0.6:
		return "effective"
	case score >= 0.4:
		return "neutral"
	default:
		return "ineffective"
	}
}

// SystematicProblems flags categories whose failure rate stays high across
// the window.
func (s *AnalyticsServiceImpl) SystematicProblems(ctx context.Context, days, minCount int) ([]primary.SystemicProblem, error) {
	if days <= 0 {
		days = defaultAnalyticsWindow
	}
	if minCount <= 0 {
		minCount = 5
	}

	var out []primary.SystemicProblem
	for category := range failureCategories {
		rate, err := s.repo.FailuresPerDay(ctx, category, days)
		if err != nil {
			return nil, err
		}
		count := int(rate*float64(days) + 0.5)
		if count < minCount {
			continue
		}
		dailyRate := float64(count) / float64(days)
		assessment := "occasional"
		switch {
		case dailyRate > 1.0:
			assessment = "systematic_problem"
		case dailyRate > 0.3:
			assessment = "recurring_issue"
		}
		out = append(out, primary.SystemicProblem{
			Category:   category,
			Count:      count,
			DailyRate:  dailyRate,
			Assessment: assessment,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

var _ primary.AnalyticsService = (*AnalyticsServiceImpl)(nil)
