package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ArchiveConversation moves a conversation to cold storage: an immutable
// snapshot is written to conversation_archive and the live row is flagged
// archived, atomically. Archived conversations drop out of every active
// query but are never hard-deleted.
func (db *DB) ArchiveConversation(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}

	row := tx.QueryRow(`SELECT `+convColumns+` FROM conversations WHERE id = ? AND archived = 0`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return ErrNotFound
	}
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("load conversation %d for archive: %w", id, err)
	}

	var outcome any
	if c.OutcomeSuccess != nil {
		outcome = boolToInt(*c.OutcomeSuccess)
	}

	if _, err := tx.Exec(`
		INSERT INTO conversation_archive (conversation_id, topic, created_at, last_accessed_at,
			times_accessed, importance, outcome_success, retention_score, priority_score,
			cluster_id, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Topic, c.CreatedAt, c.LastAccessedAt, c.TimesAccessed, c.Importance,
		outcome, c.RetentionScore, c.PriorityScore, c.ClusterID, time.Now().UnixMilli()); err != nil {
		tx.Rollback()
		return fmt.Errorf("snapshot conversation %d: %w", id, err)
	}

	if _, err := tx.Exec(`UPDATE conversations SET archived = 1, cluster_id = NULL WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("flag conversation %d archived: %w", id, err)
	}

	return tx.Commit()
}

// ArchivedConversation is a frozen snapshot row from conversation_archive.
type ArchivedConversation struct {
	Conversation
	ArchivedAt int64
}

// ListArchivedConversations returns archive snapshots, most recently archived first.
func (db *DB) ListArchivedConversations(limit int) ([]ArchivedConversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT conversation_id, topic, created_at, last_accessed_at, times_accessed,
			importance, outcome_success, retention_score, priority_score, cluster_id, archived_at
		FROM conversation_archive ORDER BY archived_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	var archived []ArchivedConversation
	for rows.Next() {
		var (
			a            ArchivedConversation
			topic        sql.NullString
			lastAccessed sql.NullInt64
			outcome      sql.NullInt64
			clusterID    sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &topic, &a.CreatedAt, &lastAccessed, &a.TimesAccessed,
			&a.Importance, &outcome, &a.RetentionScore, &a.PriorityScore, &clusterID, &a.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		a.Topic = topic.String
		a.Archived = true
		if lastAccessed.Valid {
			a.LastAccessedAt = &lastAccessed.Int64
		}
		if outcome.Valid {
			b := outcome.Int64 != 0
			a.OutcomeSuccess = &b
		}
		if clusterID.Valid {
			a.ClusterID = &clusterID.Int64
		}
		archived = append(archived, a)
	}
	return archived, rows.Err()
}
