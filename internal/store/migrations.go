package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "conversations: remembered sessions with scoring fields",
		SQL: `
CREATE TABLE conversations (
    id               INTEGER PRIMARY KEY,
    topic            TEXT,
    created_at       INTEGER NOT NULL,
    last_accessed_at INTEGER,
    times_accessed   INTEGER NOT NULL DEFAULT 0,
    importance       INTEGER NOT NULL DEFAULT 5 CHECK (importance BETWEEN 1 AND 10),
    outcome_success  INTEGER,
    retention_score  REAL NOT NULL DEFAULT 1.0,
    priority_score   REAL NOT NULL DEFAULT 0.0,
    cluster_id       INTEGER,
    archived         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_conv_created  ON conversations(created_at);
CREATE INDEX idx_conv_archived ON conversations(archived);
CREATE INDEX idx_conv_retention ON conversations(retention_score);
`,
	},
	{
		Version:     2,
		Description: "knowledge_items: keyed facts with confidence and supersede chain",
		SQL: `
CREATE TABLE knowledge_items (
    id               INTEGER PRIMARY KEY,
    category         TEXT NOT NULL,
    key              TEXT NOT NULL,
    value            TEXT NOT NULL,
    confidence       REAL NOT NULL DEFAULT 0.5,
    importance       INTEGER NOT NULL DEFAULT 5 CHECK (importance BETWEEN 1 AND 10),
    times_accessed   INTEGER NOT NULL DEFAULT 0,
    last_accessed_at INTEGER,
    priority_score   REAL NOT NULL DEFAULT 0.0,
    superseded_by    INTEGER REFERENCES knowledge_items(id),
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE INDEX idx_ki_category   ON knowledge_items(category);
CREATE INDEX idx_ki_cat_key    ON knowledge_items(category, key);
CREATE INDEX idx_ki_superseded ON knowledge_items(superseded_by);
`,
	},
	{
		Version:     3,
		Description: "patterns + relationships: behavioral stats and knowledge edges",
		SQL: `
CREATE TABLE patterns (
    id               INTEGER PRIMARY KEY,
    type             TEXT NOT NULL,
    data_fingerprint TEXT NOT NULL,
    frequency        INTEGER NOT NULL DEFAULT 1,
    success_rate     REAL NOT NULL DEFAULT 0.0,
    last_seen_at     INTEGER NOT NULL,
    created_at       INTEGER NOT NULL,
    UNIQUE (type, data_fingerprint)
);

CREATE TABLE relationships (
    id            INTEGER PRIMARY KEY,
    from_item     INTEGER NOT NULL REFERENCES knowledge_items(id),
    to_item       INTEGER NOT NULL REFERENCES knowledge_items(id),
    relation_type TEXT NOT NULL,
    strength      REAL NOT NULL DEFAULT 0.5,
    verified      INTEGER NOT NULL DEFAULT 0,
    bidirectional INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL
);

CREATE INDEX idx_rel_from ON relationships(from_item);
CREATE INDEX idx_rel_to   ON relationships(to_item);
`,
	},
	{
		Version:     4,
		Description: "conversation_archive: immutable snapshots of archived conversations",
		SQL: `
CREATE TABLE conversation_archive (
    conversation_id  INTEGER PRIMARY KEY,
    topic            TEXT,
    created_at       INTEGER NOT NULL,
    last_accessed_at INTEGER,
    times_accessed   INTEGER NOT NULL,
    importance       INTEGER NOT NULL,
    outcome_success  INTEGER,
    retention_score  REAL NOT NULL,
    priority_score   REAL NOT NULL,
    cluster_id       INTEGER,
    archived_at      INTEGER NOT NULL
);
`,
	},
	{
		Version:     5,
		Description: "merge_audit: pre-merge snapshots for dedup reversibility",
		SQL: `
CREATE TABLE merge_audit (
    id         TEXT PRIMARY KEY,
    primary_id INTEGER NOT NULL,
    merged_ids TEXT NOT NULL,
    strategy   TEXT NOT NULL,
    snapshot   TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_audit_primary ON merge_audit(primary_id);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
