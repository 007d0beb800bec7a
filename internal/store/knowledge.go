package store

import (
	"database/sql"
	"fmt"
	"time"
)

// KnowledgeItem is a keyed fact. Items merged away point at their
// replacement via SupersededBy and stop appearing in lookups.
type KnowledgeItem struct {
	ID             int64
	Category       string
	Key            string
	Value          string
	Confidence     float64
	Importance     int
	TimesAccessed  int
	LastAccessedAt *int64
	PriorityScore  float64
	SupersededBy   *int64
	CreatedAt      int64
	UpdatedAt      int64
}

// RefTime returns the later of last access and creation, zero if neither is set.
func (k *KnowledgeItem) RefTime() int64 {
	ref := k.CreatedAt
	if k.LastAccessedAt != nil && *k.LastAccessedAt > ref {
		ref = *k.LastAccessedAt
	}
	return ref
}

const kiColumns = `id, category, key, value, confidence, importance, times_accessed,
	last_accessed_at, priority_score, superseded_by, created_at, updated_at`

func scanKnowledgeItem(row interface{ Scan(...any) error }) (*KnowledgeItem, error) {
	var (
		k            KnowledgeItem
		lastAccessed sql.NullInt64
		superseded   sql.NullInt64
	)
	err := row.Scan(&k.ID, &k.Category, &k.Key, &k.Value, &k.Confidence, &k.Importance,
		&k.TimesAccessed, &lastAccessed, &k.PriorityScore, &superseded, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastAccessed.Valid {
		k.LastAccessedAt = &lastAccessed.Int64
	}
	if superseded.Valid {
		k.SupersededBy = &superseded.Int64
	}
	return &k, nil
}

// CreateKnowledgeItem inserts a new knowledge item.
func (db *DB) CreateKnowledgeItem(k *KnowledgeItem) error {
	now := time.Now().UnixMilli()
	if k.CreatedAt == 0 {
		k.CreatedAt = now
	}
	k.UpdatedAt = now
	if k.Importance < 1 {
		k.Importance = 1
	}
	if k.Importance > 10 {
		k.Importance = 10
	}

	result, err := db.Exec(`
		INSERT INTO knowledge_items (category, key, value, confidence, importance,
			times_accessed, last_accessed_at, priority_score, superseded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, k.Category, k.Key, k.Value, k.Confidence, k.Importance,
		k.TimesAccessed, k.LastAccessedAt, k.PriorityScore, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create knowledge item: %w", err)
	}

	id, _ := result.LastInsertId()
	k.ID = id
	return nil
}

// GetKnowledgeItem returns a knowledge item by id. Superseded items are
// logically deleted and never returned.
func (db *DB) GetKnowledgeItem(id int64) (*KnowledgeItem, error) {
	row := db.QueryRow(`SELECT `+kiColumns+` FROM knowledge_items WHERE id = ? AND superseded_by IS NULL`, id)
	k, err := scanKnowledgeItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge item %d: %w", id, err)
	}
	return k, nil
}

// ListActiveKnowledgeItems returns all non-superseded items ordered by id,
// which is also first-seen order for dedup grouping.
func (db *DB) ListActiveKnowledgeItems() ([]KnowledgeItem, error) {
	rows, err := db.Query(`SELECT ` + kiColumns + ` FROM knowledge_items WHERE superseded_by IS NULL ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge items: %w", err)
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		k, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge item: %w", err)
		}
		items = append(items, *k)
	}
	return items, rows.Err()
}

// FindKnowledgeByCategoryKey returns active items matching category and key
// exactly, used to scope dedup candidates at ingest time.
func (db *DB) FindKnowledgeByCategoryKey(category, key string) ([]KnowledgeItem, error) {
	rows, err := db.Query(`SELECT `+kiColumns+` FROM knowledge_items
		WHERE category = ? AND key = ? AND superseded_by IS NULL ORDER BY id ASC`, category, key)
	if err != nil {
		return nil, fmt.Errorf("find knowledge by category+key: %w", err)
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		k, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge item: %w", err)
		}
		items = append(items, *k)
	}
	return items, rows.Err()
}

// TouchKnowledgeItem records an access on an active item.
func (db *DB) TouchKnowledgeItem(id int64) error {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		UPDATE knowledge_items
		SET times_accessed = times_accessed + 1, last_accessed_at = ?
		WHERE id = ? AND superseded_by IS NULL
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch knowledge item %d: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetKnowledgePriorities writes a batch of priority scores in one transaction.
func (db *DB) SetKnowledgePriorities(scores map[int64]float64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin knowledge priority update: %w", err)
	}

	stmt, err := tx.Prepare(`UPDATE knowledge_items SET priority_score = ? WHERE id = ? AND superseded_by IS NULL`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare knowledge priority update: %w", err)
	}
	defer stmt.Close()

	for id, score := range scores {
		if _, err := stmt.Exec(score, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("update priority for knowledge item %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// StrengthenKnowledge applies the reinforcement rule to every active item
// accessed more than accessThreshold times: confidence +0.1 capped at 1.0,
// importance +1 capped at 10. Runs unconditionally each consolidation pass.
// Returns the number of items strengthened.
func (db *DB) StrengthenKnowledge(accessThreshold int) (int, error) {
	result, err := db.Exec(`
		UPDATE knowledge_items
		SET confidence = MIN(1.0, confidence + 0.1),
		    importance = MIN(10, importance + 1),
		    updated_at = ?
		WHERE times_accessed > ? AND superseded_by IS NULL
	`, time.Now().UnixMilli(), accessThreshold)
	if err != nil {
		return 0, fmt.Errorf("strengthen knowledge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("strengthen rows affected: %w", err)
	}
	return int(n), nil
}

// CountKnowledgeItems returns (active, superseded) item counts.
func (db *DB) CountKnowledgeItems() (active int, superseded int, err error) {
	err = db.QueryRow(`SELECT COUNT(*) FROM knowledge_items WHERE superseded_by IS NULL`).Scan(&active)
	if err != nil {
		return 0, 0, fmt.Errorf("count active knowledge: %w", err)
	}
	err = db.QueryRow(`SELECT COUNT(*) FROM knowledge_items WHERE superseded_by IS NOT NULL`).Scan(&superseded)
	if err != nil {
		return 0, 0, fmt.Errorf("count superseded knowledge: %w", err)
	}
	return active, superseded, nil
}
