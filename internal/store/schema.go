package store

import "database/sql"

// createSchema creates every table if absent. Mirrors the teacher's
// initialize() convention of one CREATE TABLE IF NOT EXISTS block per
// entity, followed by migrations for anything added after first release.
func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			alias TEXT UNIQUE,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			json_canonical TEXT NOT NULL,
			trust_score REAL NOT NULL DEFAULT 0,
			alpha REAL NOT NULL DEFAULT 1,
			beta REAL NOT NULL DEFAULT 1,
			usage_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			invalid INTEGER NOT NULL DEFAULT 0,
			key_insight TEXT,
			when_to_use TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pattern_tags (
			pattern_id TEXT NOT NULL REFERENCES patterns(id),
			tag TEXT NOT NULL,
			PRIMARY KEY (pattern_id, tag)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pattern_tags_tag ON pattern_tags(tag)`,
		`CREATE TABLE IF NOT EXISTS pattern_metadata (
			pattern_id TEXT NOT NULL REFERENCES patterns(id),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (pattern_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS pattern_triggers (
			pattern_id TEXT NOT NULL REFERENCES patterns(id),
			trigger_type TEXT NOT NULL,
			trigger_value TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pattern_triggers_value ON pattern_triggers(trigger_value)`,
		`CREATE TABLE IF NOT EXISTS pattern_vocab (
			pattern_id TEXT NOT NULL REFERENCES patterns(id),
			term TEXT NOT NULL,
			term_type TEXT NOT NULL,
			weight REAL NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pattern_vocab_term ON pattern_vocab(term)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			identifier TEXT,
			title TEXT NOT NULL,
			intent TEXT,
			task_type TEXT,
			status TEXT NOT NULL,
			phase TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			files_touched TEXT,
			errors_encountered TEXT,
			in_flight TEXT,
			phase_handoffs TEXT,
			brief TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_tags (
			task_id TEXT NOT NULL REFERENCES tasks(id),
			tag TEXT NOT NULL,
			PRIMARY KEY (task_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS task_evidence (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id),
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_evidence_task ON task_evidence(task_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS reflections (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			claims_payload TEXT NOT NULL,
			artifacts TEXT,
			received_at TEXT NOT NULL,
			UNIQUE(task_id, content_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			task_id TEXT,
			kind TEXT NOT NULL,
			pattern_id TEXT,
			timestamp TEXT NOT NULL,
			details TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_pattern ON audit_events(pattern_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
