package db

import "database/sql"

// memoryMigrations defines the memory.db schema: the append-only event log,
// its FTS5 index with content-sync triggers, and the session registry.
var memoryMigrations = []Migration{
	{
		Version: 1,
		Name:    "memory_events_fts_and_sessions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS memory_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					ts TEXT NOT NULL,
					actor TEXT NOT NULL DEFAULT 'agent',
					scope TEXT NOT NULL DEFAULT 'repo',
					type TEXT NOT NULL DEFAULT 'discovery',
					text TEXT,
					title TEXT,
					tags TEXT NOT NULL DEFAULT '[]',
					refs TEXT NOT NULL DEFAULT '{}',
					ttl TEXT,
					importance REAL NOT NULL DEFAULT 0.5,
					dedupe_key TEXT UNIQUE,
					project TEXT,
					session_id TEXT,
					created_at_epoch INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_memory_events_ts ON memory_events(ts)`,
				`CREATE INDEX IF NOT EXISTS idx_memory_events_type ON memory_events(type)`,
				`CREATE INDEX IF NOT EXISTS idx_memory_events_project ON memory_events(project)`,
				`CREATE INDEX IF NOT EXISTS idx_memory_events_session ON memory_events(session_id)`,
				`CREATE INDEX IF NOT EXISTS idx_memory_events_importance ON memory_events(importance)`,
				`CREATE INDEX IF NOT EXISTS idx_memory_events_epoch ON memory_events(created_at_epoch)`,
				`CREATE VIRTUAL TABLE IF NOT EXISTS memory_events_fts USING fts5(
					title,
					text,
					tags,
					content='memory_events',
					content_rowid='id',
					tokenize='porter unicode61'
				)`,
				`CREATE TRIGGER IF NOT EXISTS memory_events_ai AFTER INSERT ON memory_events BEGIN
					INSERT INTO memory_events_fts(rowid, title, text, tags)
					VALUES (new.id, new.title, new.text, new.tags);
				END`,
				`CREATE TRIGGER IF NOT EXISTS memory_events_ad AFTER DELETE ON memory_events BEGIN
					INSERT INTO memory_events_fts(memory_events_fts, rowid, title, text, tags)
					VALUES ('delete', old.id, old.title, old.text, old.tags);
				END`,
				`CREATE TRIGGER IF NOT EXISTS memory_events_au AFTER UPDATE ON memory_events BEGIN
					INSERT INTO memory_events_fts(memory_events_fts, rowid, title, text, tags)
					VALUES ('delete', old.id, old.title, old.text, old.tags);
					INSERT INTO memory_events_fts(rowid, title, text, tags)
					VALUES (new.id, new.title, new.text, new.tags);
				END`,
				`CREATE TABLE IF NOT EXISTS sessions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					content_session_id TEXT NOT NULL,
					project TEXT NOT NULL,
					initial_prompt TEXT,
					started_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
				)`,
			})
		},
	},
}

// governanceMigrations defines the governance.db schema: chunked markdown
// documents keyed by absolute path plus chunk index, with an FTS5 index.
var governanceMigrations = []Migration{
	{
		Version: 1,
		Name:    "governance_docs_and_fts",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS governance_docs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					file_path TEXT NOT NULL,
					chunk_index INTEGER NOT NULL DEFAULT 0,
					title TEXT NOT NULL DEFAULT '',
					content TEXT NOT NULL,
					doc_type TEXT NOT NULL,
					file_hash TEXT NOT NULL,
					indexed_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
					UNIQUE(file_path, chunk_index)
				)`,
				`CREATE VIRTUAL TABLE IF NOT EXISTS governance_fts USING fts5(
					title, content, doc_type,
					content='governance_docs', content_rowid='id',
					tokenize='porter unicode61'
				)`,
				`CREATE TRIGGER IF NOT EXISTS governance_docs_ai AFTER INSERT ON governance_docs BEGIN
					INSERT INTO governance_fts(rowid, title, content, doc_type)
					VALUES (new.id, new.title, new.content, new.doc_type);
				END`,
				`CREATE TRIGGER IF NOT EXISTS governance_docs_ad AFTER DELETE ON governance_docs BEGIN
					INSERT INTO governance_fts(governance_fts, rowid, title, content, doc_type)
					VALUES ('delete', old.id, old.title, old.content, old.doc_type);
				END`,
				`CREATE TRIGGER IF NOT EXISTS governance_docs_au AFTER UPDATE ON governance_docs BEGIN
					INSERT INTO governance_fts(governance_fts, rowid, title, content, doc_type)
					VALUES ('delete', old.id, old.title, old.content, old.doc_type);
					INSERT INTO governance_fts(rowid, title, content, doc_type)
					VALUES (new.id, new.title, new.content, new.doc_type);
				END`,
			})
		},
	},
}

// learningMigrations defines the learning.db schema: detected pattern
// candidates, the proposals surfaced from them, incremental analysis state,
// and the failure analytics tables.
var learningMigrations = []Migration{
	{
		Version: 1,
		Name:    "candidates_proposals_analysis_state",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS pattern_candidates (
					id TEXT PRIMARY KEY,
					detection_type TEXT NOT NULL,
					count INTEGER NOT NULL,
					confidence_raw REAL NOT NULL,
					confidence_final REAL NOT NULL,
					files TEXT NOT NULL DEFAULT '[]',
					description TEXT NOT NULL,
					instances TEXT NOT NULL DEFAULT '[]',
					detected_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
					status TEXT NOT NULL DEFAULT 'pending',
					description_hash TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_pc_status ON pattern_candidates(status)`,
				`CREATE INDEX IF NOT EXISTS idx_pc_type ON pattern_candidates(detection_type)`,
				`CREATE INDEX IF NOT EXISTS idx_pc_confidence ON pattern_candidates(confidence_final)`,
				`CREATE INDEX IF NOT EXISTS idx_pc_hash ON pattern_candidates(description_hash)`,
				`CREATE TABLE IF NOT EXISTS proposals (
					id TEXT PRIMARY KEY,
					candidate_id TEXT NOT NULL,
					type TEXT NOT NULL,
					title TEXT NOT NULL,
					description TEXT NOT NULL,
					proposed_content TEXT NOT NULL,
					proposed_path TEXT,
					confidence REAL NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					presented_at TEXT,
					decided_at TEXT,
					decision TEXT,
					edited_content TEXT,
					session_id TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_prop_status ON proposals(status)`,
				`CREATE INDEX IF NOT EXISTS idx_prop_candidate ON proposals(candidate_id)`,
				`CREATE INDEX IF NOT EXISTS idx_prop_session ON proposals(session_id)`,
				`CREATE INDEX IF NOT EXISTS idx_prop_confidence ON proposals(confidence)`,
				`CREATE TABLE IF NOT EXISTS analysis_state (
					id INTEGER PRIMARY KEY CHECK(id = 1),
					last_commit TEXT,
					last_analyzed_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
					total_commits_analyzed INTEGER NOT NULL DEFAULT 0
				)`,
			})
		},
	},
	{
		Version: 2,
		Name:    "failure_events_and_rule_baselines",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS failure_events (
					id TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					file_path TEXT,
					detail TEXT NOT NULL DEFAULT '',
					session_id TEXT,
					recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
					signature TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS idx_fe_category ON failure_events(category)`,
				`CREATE INDEX IF NOT EXISTS idx_fe_file_path ON failure_events(file_path)`,
				`CREATE INDEX IF NOT EXISTS idx_fe_recorded_at ON failure_events(recorded_at)`,
				`CREATE INDEX IF NOT EXISTS idx_fe_session_id ON failure_events(session_id)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_fe_signature ON failure_events(signature)`,
				`CREATE TABLE IF NOT EXISTS rule_baselines (
					id TEXT PRIMARY KEY,
					proposal_id TEXT NOT NULL,
					rule_path TEXT NOT NULL,
					category TEXT NOT NULL,
					baseline_count INTEGER NOT NULL DEFAULT 0,
					baseline_window_days INTEGER NOT NULL DEFAULT 30,
					created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
					category_source TEXT NOT NULL DEFAULT 'heuristic'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_rb_proposal ON rule_baselines(proposal_id)`,
				`CREATE INDEX IF NOT EXISTS idx_rb_category ON rule_baselines(category)`,
			})
		},
	},
	{
		Version: 3,
		Name:    "analysis_state_warmup",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`ALTER TABLE analysis_state ADD COLUMN warmup_started_at TEXT`,
			})
		},
	},
}

// embedCacheMigrations defines the embed_cache.db schema: content-hash keyed
// records of which chunks have been embedded, with hit counters.
var embedCacheMigrations = []Migration{
	{
		Version: 1,
		Name:    "embed_cache",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS embed_cache (
					content_hash TEXT PRIMARY KEY,
					file_path TEXT NOT NULL,
					chunk_index INTEGER NOT NULL DEFAULT 0,
					model_name TEXT NOT NULL,
					cached_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
					hit_count INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_embed_cache_file ON embed_cache(file_path)`,
				`CREATE INDEX IF NOT EXISTS idx_embed_cache_model ON embed_cache(model_name)`,
			})
		},
	},
}
