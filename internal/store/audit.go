package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MergeAudit captures the pre-merge state of every item in a duplicate
// group so a merge can be audited or reversed by hand.
type MergeAudit struct {
	ID        string
	PrimaryID int64
	MergedIDs []int64
	Strategy  string
	Snapshot  []KnowledgeItem
	CreatedAt int64
}

// MergeResult is the resolved outcome of a duplicate group, computed by
// the deduplicator and applied here in a single transaction.
type MergeResult struct {
	PrimaryID     int64
	Value         string
	Confidence    float64
	TimesAccessed int
	DuplicateIDs  []int64
	Strategy      string
	Snapshot      []KnowledgeItem
}

// ApplyMerge applies a resolved merge atomically: the primary takes the
// merged value, confidence, and summed access count; every duplicate gets
// superseded_by set to the primary; and a merge_audit row is written.
func (db *DB) ApplyMerge(m *MergeResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}

	now := time.Now().UnixMilli()

	// The primary must still be active — it may have been merged away by
	// an earlier group in the same pass.
	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM knowledge_items WHERE id = ? AND superseded_by IS NULL`,
		m.PrimaryID).Scan(&exists)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("check merge primary %d: %w", m.PrimaryID, err)
	}
	if exists == 0 {
		tx.Rollback()
		return fmt.Errorf("merge primary %d: %w", m.PrimaryID, ErrNotFound)
	}

	if _, err := tx.Exec(`
		UPDATE knowledge_items
		SET value = ?, confidence = ?, times_accessed = ?, updated_at = ?
		WHERE id = ?
	`, m.Value, m.Confidence, m.TimesAccessed, now, m.PrimaryID); err != nil {
		tx.Rollback()
		return fmt.Errorf("update merge primary %d: %w", m.PrimaryID, err)
	}

	stmt, err := tx.Prepare(`UPDATE knowledge_items SET superseded_by = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare supersede: %w", err)
	}
	defer stmt.Close()

	for _, dupID := range m.DuplicateIDs {
		if _, err := stmt.Exec(m.PrimaryID, now, dupID); err != nil {
			tx.Rollback()
			return fmt.Errorf("supersede %d: %w", dupID, err)
		}
	}

	mergedJSON, err := json.Marshal(m.DuplicateIDs)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("marshal merged ids: %w", err)
	}
	snapshotJSON, err := json.Marshal(m.Snapshot)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("marshal merge snapshot: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO merge_audit (id, primary_id, merged_ids, strategy, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), m.PrimaryID, string(mergedJSON), m.Strategy, string(snapshotJSON), now); err != nil {
		tx.Rollback()
		return fmt.Errorf("write merge audit: %w", err)
	}

	return tx.Commit()
}

// ListMergeAudits returns merge audit records, newest first.
func (db *DB) ListMergeAudits(limit int) ([]MergeAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, primary_id, merged_ids, strategy, snapshot, created_at
		FROM merge_audit ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list merge audits: %w", err)
	}
	defer rows.Close()

	var audits []MergeAudit
	for rows.Next() {
		var (
			a                    MergeAudit
			mergedJSON, snapJSON string
		)
		if err := rows.Scan(&a.ID, &a.PrimaryID, &mergedJSON, &a.Strategy, &snapJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan merge audit: %w", err)
		}
		if err := json.Unmarshal([]byte(mergedJSON), &a.MergedIDs); err != nil {
			return nil, fmt.Errorf("decode merged ids for audit %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(snapJSON), &a.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for audit %s: %w", a.ID, err)
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// CountMergeAudits returns the total number of merge audit records.
func (db *DB) CountMergeAudits() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM merge_audit`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count merge audits: %w", err)
	}
	return n, nil
}
