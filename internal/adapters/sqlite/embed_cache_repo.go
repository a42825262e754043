package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/ports/secondary"
)

// EmbedCacheRepository implements secondary.EmbedCacheRepository with SQLite.
type EmbedCacheRepository struct {
	db *db.DB
}

// NewEmbedCacheRepository creates a new SQLite embed cache repository.
func NewEmbedCacheRepository(database *db.DB) *EmbedCacheRepository {
	return &EmbedCacheRepository{db: database}
}

// Hit reports whether a content hash is cached, bumping its counter.
func (r *EmbedCacheRepository) Hit(ctx context.Context, contentHash string) (bool, error) {
	hit := false
	err := r.db.Write(func(conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			"UPDATE embed_cache SET hit_count = hit_count + 1 WHERE content_hash = ?", contentHash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		hit = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check embed cache: %w", err)
	}
	return hit, nil
}

// Store records that a chunk was embedded.
func (r *EmbedCacheRepository) Store(ctx context.Context, record *secondary.EmbedCacheRecord) error {
	err := r.db.Write(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO embed_cache (content_hash, file_path, chunk_index, model_name)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(content_hash) DO UPDATE SET
			   file_path = excluded.file_path,
			   chunk_index = excluded.chunk_index,
			   model_name = excluded.model_name`,
			record.ContentHash, record.FilePath, record.ChunkIndex, record.ModelName)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store embed cache entry: %w", err)
	}
	return nil
}

// Stats returns entry count and total hits.
func (r *EmbedCacheRepository) Stats(ctx context.Context) (int, int, error) {
	var entries, hits int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM embed_cache").Scan(&entries, &hits)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load embed cache stats: %w", err)
	}
	return entries, hits, nil
}

// Prune drops entries cached more than olderThanDays ago.
func (r *EmbedCacheRepository) Prune(ctx context.Context, olderThanDays int) (int, error) {
	var pruned int64
	err := r.db.Write(func(conn *sql.DB) error {
		// cached_at is stored as %Y-%m-%dT%H:%M:%fZ; the cutoff must use
		// the same format for the string comparison to hold.
		res, err := conn.ExecContext(ctx,
			"DELETE FROM embed_cache WHERE cached_at < strftime('%Y-%m-%dT%H:%M:%fZ', 'now', ?)",
			fmt.Sprintf("-%d days", olderThanDays))
		if err != nil {
			return err
		}
		pruned, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune embed cache: %w", err)
	}
	return int(pruned), nil
}

var _ secondary.EmbedCacheRepository = (*EmbedCacheRepository)(nil)
