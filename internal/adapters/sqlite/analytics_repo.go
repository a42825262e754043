package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/ports/secondary"
)

// AnalyticsRepository implements secondary.AnalyticsRepository with SQLite.
type AnalyticsRepository struct {
	db *db.DB
}

// NewAnalyticsRepository creates a new SQLite analytics repository.
func NewAnalyticsRepository(database *db.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: database}
}

// RecordFailure inserts a failure event. Duplicate signatures within the
// same day are dropped via INSERT OR IGNORE; returns whether a row landed.
func (r *AnalyticsRepository) RecordFailure(ctx context.Context, event *secondary.FailureEventRecord) (bool, error) {
	inserted := false
	err := r.db.Write(func(conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO failure_events (id, category, file_path, detail, session_id, recorded_at, signature)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.Category, nullable(event.FilePath), event.Detail,
			nullable(event.SessionID), event.RecordedAt, event.Signature)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record failure: %w", err)
	}
	return inserted, nil
}

// FailuresPerDay returns the average daily failure rate for a category over
// the trailing window.
func (r *AnalyticsRepository) FailuresPerDay(ctx context.Context, category string, windowDays int) (float64, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays).Format(time.RFC3339)
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM failure_events WHERE category = ? AND recorded_at > ?",
		category, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return float64(count) / float64(windowDays), nil
}

// Trends buckets failures by UTC date over the trailing window.
func (r *AnalyticsRepository) Trends(ctx context.Context, windowDays int) (map[string]int, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays).Format(time.RFC3339)
	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(recorded_at, 1, 10) AS day, COUNT(*)
		 FROM failure_events WHERE recorded_at > ?
		 GROUP BY day ORDER BY day`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load failure trends: %w", err)
	}
	defer rows.Close()

	trends := map[string]int{}
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		trends[day] = count
	}
	return trends, rows.Err()
}

// Hotspots returns the files with the most failures in the window.
func (r *AnalyticsRepository) Hotspots(ctx context.Context, windowDays, limit int) ([]secondary.Hotspot, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	if limit <= 0 {
		limit = 10
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays).Format(time.RFC3339)
	rows, err := r.db.QueryContext(ctx,
		`SELECT file_path, COUNT(*) AS n FROM failure_events
		 WHERE recorded_at > ? AND file_path IS NOT NULL
		 GROUP BY file_path ORDER BY n DESC LIMIT ?`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load hotspots: %w", err)
	}
	defer rows.Close()

	var hotspots []secondary.Hotspot
	for rows.Next() {
		var h secondary.Hotspot
		if err := rows.Scan(&h.FilePath, &h.Count); err != nil {
			return nil, fmt.Errorf("failed to scan hotspot: %w", err)
		}
		hotspots = append(hotspots, h)
	}
	return hotspots, rows.Err()
}

// CreateBaseline snapshots the failure rate at rule-accept time.
func (r *AnalyticsRepository) CreateBaseline(ctx context.Context, b *secondary.RuleBaselineRecord) error {
	err := r.db.Write(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO rule_baselines (id, proposal_id, rule_path, category, baseline_count, baseline_window_days, category_source)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.ProposalID, b.RulePath, b.Category, b.BaselineCount,
			orDefaultInt(b.BaselineWindowDays, 30), orDefault(b.CategorySource, "heuristic"))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create rule baseline: %w", err)
	}
	return nil
}

// ListBaselines returns all rule baselines.
func (r *AnalyticsRepository) ListBaselines(ctx context.Context) ([]*secondary.RuleBaselineRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, proposal_id, rule_path, category, baseline_count, baseline_window_days, created_at, category_source
		 FROM rule_baselines ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	defer rows.Close()

	var out []*secondary.RuleBaselineRecord
	for rows.Next() {
		b := &secondary.RuleBaselineRecord{}
		err := rows.Scan(&b.ID, &b.ProposalID, &b.RulePath, &b.Category,
			&b.BaselineCount, &b.BaselineWindowDays, &b.CreatedAt, &b.CategorySource)
		if err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func orDefaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

var _ secondary.AnalyticsRepository = (*AnalyticsRepository)(nil)
