package server

import (
	"net/http"

	"github.com/example/loom/internal/ports/primary"
)

func (s *Server) handleLearningAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SinceCommit string `json:"since_commit,omitempty"`
		Force       bool   `json:"force,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	resp, err := s.learning.Analyze(r.Context(), primary.AnalyzeRequest{
		SinceCommit: req.SinceCommit,
		Force:       req.Force,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLearningProposals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxCount      int     `json:"max_count,omitempty"`
		MinConfidence float64 `json:"min_confidence,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	proposals, err := s.learning.ListProposals(r.Context(), primary.ListProposalsRequest{
		MaxCount:      req.MaxCount,
		MinConfidence: req.MinConfidence,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (s *Server) handleLearningDecide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposalID    string `json:"proposal_id"`
		Decision      string `json:"decision"`
		EditedContent string `json:"edited_content,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	// Repeat decisions on a settled proposal return 200 with the prior
	// outcome, never an error.
	resp, err := s.learning.Decide(r.Context(), primary.DecideRequest{
		ProposalID:    req.ProposalID,
		Decision:      req.Decision,
		EditedContent: req.EditedContent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.learning.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLearningConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"global_enabled":            s.cfg.Learning.GlobalEnabled,
		"sensitivity":               s.cfg.Learning.Sensitivity,
		"min_confidence":            s.cfg.MinConfidence(),
		"max_proposals_per_session": s.cfg.Learning.MaxProposalsPerSession,
		"cooldown_days":             s.cfg.Learning.CooldownDays,
		"warmup_hours":              s.cfg.Learning.WarmupHours,
		"commits_per_trigger":       s.cfg.Learning.CommitsPerTrigger,
	})
}

func (s *Server) handleAnalyticsFailure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category  string `json:"category"`
		FilePath  string `json:"file_path,omitempty"`
		Detail    string `json:"detail,omitempty"`
		SessionID string `json:"session_id,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	// Failure reports come from hooks; the user workflow never blocks on
	// them, so errors are logged and swallowed.
	if _, err := s.analytics.RecordFailure(r.Context(), primary.FailureReport{
		Category:  req.Category,
		FilePath:  req.FilePath,
		Detail:    req.Detail,
		SessionID: req.SessionID,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failure report dropped")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.analytics.Summary(r.Context(), intQuery(r, "days", 30))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAnalyticsTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := s.analytics.Trends(r.Context(), intQuery(r, "days", 30))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

func (s *Server) handleAnalyticsHotspots(w http.ResponseWriter, r *http.Request) {
	hotspots, err := s.analytics.Hotspots(r.Context(), intQuery(r, "days", 30), intQuery(r, "limit", 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hotspots": hotspots})
}

func (s *Server) handleAnalyticsEffectiveness(w http.ResponseWriter, r *http.Request) {
	rules, err := s.analytics.Effectiveness(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleAnalyticsSystematic(w http.ResponseWriter, r *http.Request) {
	problems, err := s.analytics.SystematicProblems(r.Context(), intQuery(r, "days", 7), intQuery(r, "min_count", 3))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"problems": problems})
}
