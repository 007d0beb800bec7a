package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Conversation is a remembered session. Scores and the cluster assignment
// are recomputed by consolidation; access fields are bumped by read paths.
type Conversation struct {
	ID             int64
	Topic          string
	CreatedAt      int64 // unix millis; 0 means unknown
	LastAccessedAt *int64
	TimesAccessed  int
	Importance     int // 1-10
	OutcomeSuccess *bool
	RetentionScore float64
	PriorityScore  float64
	ClusterID      *int64
	Archived       bool
}

// RefTime returns the timestamp decay should be measured from: the later
// of last access and creation. Zero means no timestamp is resolvable.
func (c *Conversation) RefTime() int64 {
	ref := c.CreatedAt
	if c.LastAccessedAt != nil && *c.LastAccessedAt > ref {
		ref = *c.LastAccessedAt
	}
	return ref
}

const convColumns = `id, topic, created_at, last_accessed_at, times_accessed,
	importance, outcome_success, retention_score, priority_score, cluster_id, archived`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var (
		c            Conversation
		topic        sql.NullString
		lastAccessed sql.NullInt64
		outcome      sql.NullInt64
		clusterID    sql.NullInt64
	)
	err := row.Scan(&c.ID, &topic, &c.CreatedAt, &lastAccessed, &c.TimesAccessed,
		&c.Importance, &outcome, &c.RetentionScore, &c.PriorityScore, &clusterID, &c.Archived)
	if err != nil {
		return nil, err
	}
	c.Topic = topic.String
	if lastAccessed.Valid {
		c.LastAccessedAt = &lastAccessed.Int64
	}
	if outcome.Valid {
		b := outcome.Int64 != 0
		c.OutcomeSuccess = &b
	}
	if clusterID.Valid {
		c.ClusterID = &clusterID.Int64
	}
	return &c, nil
}

// CreateConversation inserts a new conversation. A zero CreatedAt is
// filled with the current time; importance is clamped to 1-10.
func (db *DB) CreateConversation(c *Conversation) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	if c.Importance < 1 {
		c.Importance = 1
	}
	if c.Importance > 10 {
		c.Importance = 10
	}

	var outcome any
	if c.OutcomeSuccess != nil {
		outcome = boolToInt(*c.OutcomeSuccess)
	}

	result, err := db.Exec(`
		INSERT INTO conversations (topic, created_at, last_accessed_at, times_accessed,
			importance, outcome_success, retention_score, priority_score, cluster_id, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)
	`, c.Topic, c.CreatedAt, c.LastAccessedAt, c.TimesAccessed,
		c.Importance, outcome, c.RetentionScore, c.PriorityScore)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	id, _ := result.LastInsertId()
	c.ID = id
	return nil
}

// GetConversation returns an active (non-archived) conversation by id.
func (db *DB) GetConversation(id int64) (*Conversation, error) {
	row := db.QueryRow(`SELECT `+convColumns+` FROM conversations WHERE id = ? AND archived = 0`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return c, nil
}

// ListActiveConversations returns all non-archived conversations ordered
// by created_at ascending, the order the clusterer expects.
func (db *DB) ListActiveConversations() ([]Conversation, error) {
	rows, err := db.Query(`SELECT ` + convColumns + ` FROM conversations WHERE archived = 0 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// TouchConversation records an access: bumps times_accessed and sets
// last_accessed_at to now. Archived conversations are not touchable.
func (db *DB) TouchConversation(id int64) error {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		UPDATE conversations
		SET times_accessed = times_accessed + 1, last_accessed_at = ?
		WHERE id = ? AND archived = 0
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch conversation %d: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversationPriorities writes a batch of priority scores in one
// transaction so a crash never leaves the batch half-applied.
func (db *DB) SetConversationPriorities(scores map[int64]float64) error {
	return db.batchUpdate("priority_score", scores)
}

// SetConversationRetention writes a batch of retention scores in one transaction.
func (db *DB) SetConversationRetention(scores map[int64]float64) error {
	return db.batchUpdate("retention_score", scores)
}

func (db *DB) batchUpdate(column string, scores map[int64]float64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s update: %w", column, err)
	}

	stmt, err := tx.Prepare(`UPDATE conversations SET ` + column + ` = ? WHERE id = ? AND archived = 0`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare %s update: %w", column, err)
	}
	defer stmt.Close()

	for id, score := range scores {
		if _, err := stmt.Exec(score, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("update %s for %d: %w", column, id, err)
		}
	}
	return tx.Commit()
}

// AssignClusters persists cluster assignments in one transaction.
// Conversations absent from the map get their cluster cleared, so rows
// skipped by the clusterer (missing timestamps) never keep a stale id.
func (db *DB) AssignClusters(assignments map[int64]int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin cluster assign: %w", err)
	}

	if _, err := tx.Exec(`UPDATE conversations SET cluster_id = NULL WHERE archived = 0`); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear clusters: %w", err)
	}

	stmt, err := tx.Prepare(`UPDATE conversations SET cluster_id = ? WHERE id = ? AND archived = 0`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare cluster assign: %w", err)
	}
	defer stmt.Close()

	for id, cluster := range assignments {
		if _, err := stmt.Exec(cluster, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("assign cluster for %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// CountConversations returns (active, archived) conversation counts.
func (db *DB) CountConversations() (active int, archived int, err error) {
	err = db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE archived = 0`).Scan(&active)
	if err != nil {
		return 0, 0, fmt.Errorf("count active conversations: %w", err)
	}
	err = db.QueryRow(`SELECT COUNT(*) FROM conversation_archive`).Scan(&archived)
	if err != nil {
		return 0, 0, fmt.Errorf("count archived conversations: %w", err)
	}
	return active, archived, nil
}

// CountClusters returns the number of distinct clusters over active conversations.
func (db *DB) CountClusters() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(DISTINCT cluster_id) FROM conversations WHERE archived = 0 AND cluster_id IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
