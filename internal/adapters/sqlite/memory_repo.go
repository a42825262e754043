// Package sqlite contains SQLite implementations of the repository ports.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/ports/secondary"
)

// MemoryRepository implements secondary.MemoryRepository with SQLite+FTS5.
type MemoryRepository struct {
	db *db.DB
}

// NewMemoryRepository creates a new SQLite memory repository.
func NewMemoryRepository(database *db.DB) *MemoryRepository {
	return &MemoryRepository{db: database}
}

const memoryColumns = "id, ts, actor, scope, type, text, title, tags, refs, ttl, importance, dedupe_key, project, session_id, created_at_epoch"

// Save persists a memory event. Events with a dedupe key upsert onto the
// existing row, refreshing content but keeping the rowid.
func (r *MemoryRepository) Save(ctx context.Context, event *secondary.MemoryEventRecord) (int64, error) {
	tagsJSON, err := json.Marshal(event.Tags)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tags: %w", err)
	}
	refs := event.Refs
	if refs == nil {
		refs = map[string]string{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal refs: %w", err)
	}

	query := `INSERT INTO memory_events
		(ts, actor, scope, type, text, title, tags, refs, ttl, importance, dedupe_key, project, session_id, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if event.DedupeKey != "" {
		query += ` ON CONFLICT(dedupe_key) DO UPDATE SET
			ts=excluded.ts, text=excluded.text, title=excluded.title,
			tags=excluded.tags, refs=excluded.refs, importance=excluded.importance`
	}
	query += ` RETURNING id`

	var id int64
	err = r.db.Write(func(conn *sql.DB) error {
		return conn.QueryRowContext(ctx, query,
			event.TS, orDefault(event.Actor, "agent"), orDefault(event.Scope, "repo"),
			orDefault(event.Type, "discovery"), event.Text, event.Title,
			string(tagsJSON), string(refsJSON), nullable(event.TTL), event.Importance,
			nullable(event.DedupeKey), nullable(event.Project), nullable(event.SessionID),
			event.CreatedAtEpoch,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save memory event: %w", err)
	}
	return id, nil
}

// GetByID retrieves one event by rowid.
func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*secondary.MemoryEventRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+memoryColumns+" FROM memory_events WHERE id = ?", id)
	event, err := scanMemoryEvent(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("memory event %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory event: %w", err)
	}
	return event, nil
}

// Search runs a full-text query, newest first.
func (r *MemoryRepository) Search(ctx context.Context, query string, filters secondary.MemoryFilters) ([]*secondary.MemoryEventRecord, error) {
	where := []string{"me.id IN (SELECT rowid FROM memory_events_fts WHERE memory_events_fts MATCH ?)"}
	args := []any{ftsQuote(query)}

	if filters.Type != "" {
		where = append(where, "me.type = ?")
		args = append(args, filters.Type)
	}
	if filters.Project != "" {
		where = append(where, "me.project = ?")
		args = append(args, filters.Project)
	}
	if filters.SessionID != "" {
		where = append(where, "me.session_id = ?")
		args = append(args, filters.SessionID)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	sqlText := "SELECT " + prefixColumns("me", memoryColumns) + ` FROM memory_events me
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY me.ts DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search memory events: %w", err)
	}
	defer rows.Close()
	return collectMemoryEvents(rows)
}

// Recent returns the newest events.
func (r *MemoryRepository) Recent(ctx context.Context, limit int) ([]*secondary.MemoryEventRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memory_events ORDER BY ts DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events: %w", err)
	}
	defer rows.Close()
	return collectMemoryEvents(rows)
}

// Timeline returns up to before events preceding the anchor, the anchor, and
// up to after events following it, oldest first.
func (r *MemoryRepository) Timeline(ctx context.Context, anchorID int64, before, after int) ([]*secondary.MemoryEventRecord, error) {
	anchor, err := r.GetByID(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	beforeRows, err := r.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memory_events WHERE ts < ? ORDER BY ts DESC LIMIT ?",
		anchor.TS, before)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}
	defer beforeRows.Close()
	preceding, err := collectMemoryEvents(beforeRows)
	if err != nil {
		return nil, err
	}

	afterRows, err := r.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memory_events WHERE ts > ? ORDER BY ts ASC LIMIT ?",
		anchor.TS, after)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}
	defer afterRows.Close()
	following, err := collectMemoryEvents(afterRows)
	if err != nil {
		return nil, err
	}

	// preceding came back newest-first; reverse into chronological order.
	out := make([]*secondary.MemoryEventRecord, 0, len(preceding)+1+len(following))
	for i := len(preceding) - 1; i >= 0; i-- {
		out = append(out, preceding[i])
	}
	out = append(out, anchor)
	out = append(out, following...)
	return out, nil
}

// Stats returns event counts grouped by type.
func (r *MemoryRepository) Stats(ctx context.Context) (*secondary.MemoryStats, error) {
	stats := &secondary.MemoryStats{ByType: map[string]int{}}

	rows, err := r.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM memory_events GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("failed to load memory stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("failed to scan memory stats: %w", err)
		}
		stats.ByType[typ] = count
		stats.TotalEvents += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load memory stats: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&stats.Sessions); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	return stats, nil
}

// StartSession records the beginning of an agent session.
func (r *MemoryRepository) StartSession(ctx context.Context, session *secondary.SessionRecord) (int64, error) {
	var id int64
	err := r.db.Write(func(conn *sql.DB) error {
		return conn.QueryRowContext(ctx,
			`INSERT INTO sessions (content_session_id, project, initial_prompt) VALUES (?, ?, ?) RETURNING id`,
			session.ContentSessionID, session.Project, nullable(session.InitialPrompt),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// RecentSessions returns the newest sessions.
func (r *MemoryRepository) RecentSessions(ctx context.Context, limit int) ([]*secondary.SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, content_session_id, project, initial_prompt, started_at FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*secondary.SessionRecord
	for rows.Next() {
		var prompt sql.NullString
		record := &secondary.SessionRecord{}
		if err := rows.Scan(&record.ID, &record.ContentSessionID, &record.Project, &prompt, &record.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		record.InitialPrompt = prompt.String
		sessions = append(sessions, record)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryEvent(row rowScanner) (*secondary.MemoryEventRecord, error) {
	var (
		text, title, ttl, dedupeKey, project, sessionID sql.NullString
		tagsJSON, refsJSON                              string
	)
	record := &secondary.MemoryEventRecord{}
	err := row.Scan(&record.ID, &record.TS, &record.Actor, &record.Scope, &record.Type,
		&text, &title, &tagsJSON, &refsJSON, &ttl, &record.Importance,
		&dedupeKey, &project, &sessionID, &record.CreatedAtEpoch)
	if err != nil {
		return nil, err
	}
	record.Text = text.String
	record.Title = title.String
	record.TTL = ttl.String
	record.DedupeKey = dedupeKey.String
	record.Project = project.String
	record.SessionID = sessionID.String
	if err := json.Unmarshal([]byte(tagsJSON), &record.Tags); err != nil {
		record.Tags = nil
	}
	if err := json.Unmarshal([]byte(refsJSON), &record.Refs); err != nil {
		record.Refs = nil
	}
	return record, nil
}

func collectMemoryEvents(rows *sql.Rows) ([]*secondary.MemoryEventRecord, error) {
	var events []*secondary.MemoryEventRecord
	for rows.Next() {
		event, err := scanMemoryEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = prefix + "." + p
	}
	return strings.Join(parts, ", ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var _ secondary.MemoryRepository = (*MemoryRepository)(nil)
