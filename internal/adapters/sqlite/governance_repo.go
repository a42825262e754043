package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/ports/secondary"
)

// GovernanceRepository implements secondary.GovernanceRepository with
// SQLite+FTS5, bm25-ranked.
type GovernanceRepository struct {
	db *db.DB
}

// NewGovernanceRepository creates a new SQLite governance repository.
func NewGovernanceRepository(database *db.DB) *GovernanceRepository {
	return &GovernanceRepository{db: database}
}

// FileHash returns the stored content hash for a path, or "" when the path
// is not indexed.
func (r *GovernanceRepository) FileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		"SELECT file_hash FROM governance_docs WHERE file_path = ? LIMIT 1", path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read file hash: %w", err)
	}
	return hash, nil
}

// ReplaceFile swaps all chunks for a file in one transaction, so the index
// never holds a partial document.
func (r *GovernanceRepository) ReplaceFile(ctx context.Context, path, docType, fileHash string, chunks []secondary.GovernanceChunk) error {
	err := r.db.Tx(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM governance_docs WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to clear old chunks: %w", err)
		}
		for _, chunk := range chunks {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO governance_docs (file_path, chunk_index, title, content, doc_type, file_hash)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				path, chunk.Index, chunk.Title, chunk.Content, docType, fileHash)
			if err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", chunk.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace file %s: %w", path, err)
	}
	return nil
}

// DeleteMissing drops records whose path is not in keep. Returns the number
// of distinct files removed.
func (r *GovernanceRepository) DeleteMissing(ctx context.Context, keep []string) (int, error) {
	removed := 0
	err := r.db.Tx(func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT DISTINCT file_path FROM governance_docs")
		if err != nil {
			return fmt.Errorf("failed to list indexed files: %w", err)
		}
		defer rows.Close()

		keepSet := map[string]bool{}
		for _, k := range keep {
			keepSet[k] = true
		}
		var stale []string
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				return fmt.Errorf("failed to scan indexed file: %w", err)
			}
			if !keepSet[path] {
				stale = append(stale, path)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, path := range stale {
			if _, err := tx.ExecContext(ctx, "DELETE FROM governance_docs WHERE file_path = ?", path); err != nil {
				return fmt.Errorf("failed to delete stale file %s: %w", path, err)
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Search runs a bm25-ranked full-text query, optionally restricted to one
// document type. bm25 scores are negative in SQLite (lower is better); the
// -x/(1-x) mapping keeps the ranking order and bounds scores to [0,1).
func (r *GovernanceRepository) Search(ctx context.Context, query, docType string, topK int) ([]*secondary.GovernanceHit, error) {
	if topK <= 0 {
		topK = 10
	}
	sqlText := `SELECT gd.file_path, gd.chunk_index, gd.title, gd.content, gd.doc_type,
	        -bm25(governance_fts) / (1.0 - bm25(governance_fts)) AS score
	 FROM governance_fts
	 JOIN governance_docs gd ON gd.id = governance_fts.rowid
	 WHERE governance_fts MATCH ?`
	args := []any{ftsQuote(query)}
	if docType != "" {
		sqlText += " AND gd.doc_type = ?"
		args = append(args, docType)
	}
	sqlText += ` ORDER BY bm25(governance_fts) LIMIT ?`
	args = append(args, topK)

	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search governance index: %w", err)
	}
	defer rows.Close()

	var hits []*secondary.GovernanceHit
	for rows.Next() {
		hit := &secondary.GovernanceHit{}
		if err := rows.Scan(&hit.FilePath, &hit.ChunkIndex, &hit.Title, &hit.Content, &hit.DocType, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan governance hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Stats returns document counts grouped by type.
func (r *GovernanceRepository) Stats(ctx context.Context) (*secondary.GovernanceStats, error) {
	stats := &secondary.GovernanceStats{ByType: map[string]int{}}

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT file_path), COUNT(*) FROM governance_docs").Scan(&stats.Files, &stats.Chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to load governance stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT doc_type, COUNT(DISTINCT file_path) FROM governance_docs GROUP BY doc_type")
	if err != nil {
		return nil, fmt.Errorf("failed to load governance stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var docType string
		var count int
		if err := rows.Scan(&docType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan governance stats: %w", err)
		}
		stats.ByType[docType] = count
	}
	return stats, rows.Err()
}

// ftsQuote wraps each term in double quotes so user punctuation cannot break
// the FTS5 query grammar.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	return strings.Join(fields, " ")
}

var _ secondary.GovernanceRepository = (*GovernanceRepository)(nil)
