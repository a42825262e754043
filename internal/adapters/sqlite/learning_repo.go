package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/ports/secondary"
)

// LearningRepository implements secondary.LearningRepository with SQLite.
type LearningRepository struct {
	db *db.DB
}

// NewLearningRepository creates a new SQLite learning repository.
func NewLearningRepository(database *db.DB) *LearningRepository {
	return &LearningRepository{db: database}
}

// SaveCandidate persists a scored pattern candidate.
func (r *LearningRepository) SaveCandidate(ctx context.Context, c *secondary.CandidateRecord) error {
	filesJSON, err := marshalStrings(c.Files)
	if err != nil {
		return err
	}
	err = r.db.Write(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO pattern_candidates
			 (id, detection_type, count, confidence_raw, confidence_final, files, description, instances, status, description_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.DetectionType, c.Count, c.ConfidenceRaw, c.ConfidenceFinal,
			filesJSON, c.Description, orDefault(c.Instances, "[]"),
			orDefault(c.Status, "pending"), c.DescriptionHash)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save candidate: %w", err)
	}
	return nil
}

const candidateColumns = "id, detection_type, count, confidence_raw, confidence_final, files, description, instances, detected_at, status, description_hash"

// ListCandidates returns candidates with the given status, highest
// confidence first.
func (r *LearningRepository) ListCandidates(ctx context.Context, status string) ([]*secondary.CandidateRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+candidateColumns+" FROM pattern_candidates WHERE status = ? ORDER BY confidence_final DESC",
		status)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var out []*secondary.CandidateRecord
	for rows.Next() {
		var filesJSON string
		var hash sql.NullString
		c := &secondary.CandidateRecord{}
		err := rows.Scan(&c.ID, &c.DetectionType, &c.Count, &c.ConfidenceRaw, &c.ConfidenceFinal,
			&filesJSON, &c.Description, &c.Instances, &c.DetectedAt, &c.Status, &hash)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Files = unmarshalStrings(filesJSON)
		c.DescriptionHash = hash.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCandidateStatus moves a candidate through its lifecycle.
func (r *LearningRepository) UpdateCandidateStatus(ctx context.Context, id, status string) error {
	err := r.db.Write(func(conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			"UPDATE pattern_candidates SET status = ? WHERE id = ?", status, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("candidate %s not found", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update candidate status: %w", err)
	}
	return nil
}

// SaveProposal persists a generated proposal.
func (r *LearningRepository) SaveProposal(ctx context.Context, p *secondary.ProposalRecord) error {
	err := r.db.Write(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO proposals
			 (id, candidate_id, type, title, description, proposed_content, proposed_path, confidence, status, session_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.CandidateID, p.Type, p.Title, p.Description, p.ProposedContent,
			nullable(p.ProposedPath), p.Confidence, orDefault(p.Status, "pending"), nullable(p.SessionID))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}
	return nil
}

const proposalColumns = "id, candidate_id, type, title, description, proposed_content, proposed_path, confidence, status, presented_at, decided_at, decision, edited_content, session_id"

// GetProposal retrieves one proposal.
func (r *LearningRepository) GetProposal(ctx context.Context, id string) (*secondary.ProposalRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+proposalColumns+" FROM proposals WHERE id = ?", id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("proposal %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return p, nil
}

// ListProposals returns proposals, highest confidence first. Empty status
// lists all.
func (r *LearningRepository) ListProposals(ctx context.Context, status string) ([]*secondary.ProposalRecord, error) {
	query := "SELECT " + proposalColumns + " FROM proposals"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY confidence DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var out []*secondary.ProposalRecord
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPresented stamps presented_at and moves the proposal to presented.
func (r *LearningRepository) MarkPresented(ctx context.Context, id, presentedAt string) error {
	err := r.db.Write(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			"UPDATE proposals SET status = 'presented', presented_at = ? WHERE id = ?",
			presentedAt, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark proposal presented: %w", err)
	}
	return nil
}

// RecordDecision stamps the decision fields and final status.
func (r *LearningRepository) RecordDecision(ctx context.Context, id, status, decision, decidedAt, editedContent string) error {
	err := r.db.Write(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			"UPDATE proposals SET status = ?, decision = ?, decided_at = ?, edited_content = ? WHERE id = ?",
			status, decision, decidedAt, nullable(editedContent), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// InCooldown reports whether the pair was rejected or ignored within the
// cooldown window.
func (r *LearningRepository) InCooldown(ctx context.Context, detectionType, descriptionHash string, cooldownDays int) (bool, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -cooldownDays).Format(time.RFC3339)
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposals p
		 JOIN pattern_candidates c ON p.candidate_id = c.id
		 WHERE c.detection_type = ?
		   AND c.description_hash = ?
		   AND p.decision IN ('reject', 'ignore')
		   AND p.decided_at > ?`,
		detectionType, descriptionHash, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}
	return count > 0, nil
}

// PriorDecisionFactor derives the confidence prior from the accept/reject
// history: no history → 1.0, all accepts → 1.5, all rejects → 0.5.
func (r *LearningRepository) PriorDecisionFactor(ctx context.Context, detectionType string) (float64, error) {
	var accepts, rejects int
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN p.decision = 'accept' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN p.decision = 'reject' THEN 1 ELSE 0 END), 0)
		 FROM proposals p
		 JOIN pattern_candidates c ON p.candidate_id = c.id
		 WHERE c.detection_type = ?`,
		detectionType).Scan(&accepts, &rejects)
	if err != nil {
		return 0, fmt.Errorf("failed to compute prior decision factor: %w", err)
	}
	total := accepts + rejects
	if total == 0 {
		return 1.0, nil
	}
	return 0.5 + float64(accepts)/float64(total), nil
}

// AnalysisState returns the incremental cursor, or nil before the first run.
func (r *LearningRepository) AnalysisState(ctx context.Context) (*secondary.AnalysisStateRecord, error) {
	var lastCommit, lastAnalyzedAt, warmupStartedAt sql.NullString
	state := &secondary.AnalysisStateRecord{}
	err := r.db.QueryRowContext(ctx,
		"SELECT last_commit, last_analyzed_at, total_commits_analyzed, warmup_started_at FROM analysis_state WHERE id = 1").
		Scan(&lastCommit, &lastAnalyzedAt, &state.TotalCommitsAnalyzed, &warmupStartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis state: %w", err)
	}
	state.LastCommit = lastCommit.String
	state.LastAnalyzedAt = lastAnalyzedAt.String
	state.WarmupStartedAt = warmupStartedAt.String
	return state, nil
}

// SetAnalysisState advances the incremental cursor.
func (r *LearningRepository) SetAnalysisState(ctx context.Context, state *secondary.AnalysisStateRecord) error {
	err := r.db.Write(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO analysis_state (id, last_commit, last_analyzed_at, total_commits_analyzed, warmup_started_at)
			 VALUES (1, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   last_commit = excluded.last_commit,
			   last_analyzed_at = excluded.last_analyzed_at,
			   total_commits_analyzed = excluded.total_commits_analyzed,
			   warmup_started_at = excluded.warmup_started_at`,
			nullable(state.LastCommit), state.LastAnalyzedAt, state.TotalCommitsAnalyzed,
			nullable(state.WarmupStartedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set analysis state: %w", err)
	}
	return nil
}

func scanProposal(row rowScanner) (*secondary.ProposalRecord, error) {
	var proposedPath, presentedAt, decidedAt, decision, editedContent, sessionID sql.NullString
	p := &secondary.ProposalRecord{}
	err := row.Scan(&p.ID, &p.CandidateID, &p.Type, &p.Title, &p.Description,
		&p.ProposedContent, &proposedPath, &p.Confidence, &p.Status,
		&presentedAt, &decidedAt, &decision, &editedContent, &sessionID)
	if err != nil {
		return nil, err
	}
	p.ProposedPath = proposedPath.String
	p.PresentedAt = presentedAt.String
	p.DecidedAt = decidedAt.String
	p.Decision = decision.String
	p.EditedContent = editedContent.String
	p.SessionID = sessionID.String
	return p, nil
}

var _ secondary.LearningRepository = (*LearningRepository)(nil)
