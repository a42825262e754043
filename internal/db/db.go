// Package db opens the per-subsystem SQLite databases and applies their
// migrations. Each subsystem keeps its own file under the data directory so
// that a corrupt or locked store never takes the others down with it.
package db

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database file names under the data directory.
const (
	MemoryDBFile     = "memory.db"
	GovernanceDBFile = "governance.db"
	LearningDBFile   = "learning.db"
	EmbedCacheDBFile = "embed_cache.db"
)

const (
	busyRetries = 5
	busyBackoff = 25 * time.Millisecond
)

// DB wraps a sqlite connection with a write mutex. SQLite allows a single
// writer per database; serializing writes in-process keeps SQLITE_BUSY
// retries the exception rather than the rule.
type DB struct {
	*sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path and applies
// the given migration set. The parent directory is created as needed.
func Open(path string, migrations []Migration) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// One writer; the mutex below does the serializing, not the pool.
	conn.SetMaxOpenConns(1)

	db := &DB{DB: conn}
	if err := db.migrate(migrations); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemoryFile opens an in-memory database with the given migrations, for
// tests.
func OpenMemoryFile(migrations []Migration) (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{DB: conn}
	if err := db.migrate(migrations); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens the memory events database under dataDir.
func OpenMemory(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, MemoryDBFile), memoryMigrations)
}

// OpenGovernance opens the governance document index under dataDir.
func OpenGovernance(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, GovernanceDBFile), governanceMigrations)
}

// OpenLearning opens the learning pipeline database under dataDir.
func OpenLearning(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, LearningDBFile), learningMigrations)
}

// OpenEmbedCache opens the embedding cache database under dataDir.
func OpenEmbedCache(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, EmbedCacheDBFile), embedCacheMigrations)
}

// Write runs fn while holding the write mutex, retrying a bounded number of
// times with jittered backoff when SQLite reports the database busy (another
// process may hold the file).
func (d *DB) Write(fn func(*sql.DB) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = fn(d.DB)
		if err == nil || !isBusy(err) {
			return err
		}
		sleep := busyBackoff * time.Duration(1<<attempt)
		sleep += time.Duration(rand.Int63n(int64(busyBackoff)))
		time.Sleep(sleep)
	}
	return fmt.Errorf("database busy after %d retries: %w", busyRetries, err)
}

// Tx runs fn in a transaction under the write mutex, committing on nil and
// rolling back on error.
func (d *DB) Tx(fn func(*sql.Tx) error) error {
	return d.Write(func(conn *sql.DB) error {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
