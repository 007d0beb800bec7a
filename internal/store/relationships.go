package store

import (
	"fmt"
	"time"
)

// Relationship is an edge between two knowledge items. Relationships are
// never auto-deleted; if an endpoint is superseded the edge goes stale and
// traversers must check SupersededBy on the endpoints.
type Relationship struct {
	ID            int64
	FromItem      int64
	ToItem        int64
	RelationType  string // e.g. "supports", "contradicts", "part_of"
	Strength      float64
	Verified      bool
	Bidirectional bool
	CreatedAt     int64
}

// CreateRelationship inserts an edge. Both endpoints must exist as
// knowledge items (enforced by foreign keys).
func (db *DB) CreateRelationship(r *Relationship) error {
	if r.RelationType == "" {
		return fmt.Errorf("create relationship: relation_type required")
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}

	result, err := db.Exec(`
		INSERT INTO relationships (from_item, to_item, relation_type, strength, verified, bidirectional, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.FromItem, r.ToItem, r.RelationType, r.Strength,
		boolToInt(r.Verified), boolToInt(r.Bidirectional), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}

	id, _ := result.LastInsertId()
	r.ID = id
	return nil
}

// RelationshipsFor returns every edge touching the given item: outgoing
// edges plus incoming bidirectional ones.
func (db *DB) RelationshipsFor(itemID int64) ([]Relationship, error) {
	rows, err := db.Query(`
		SELECT id, from_item, to_item, relation_type, strength, verified, bidirectional, created_at
		FROM relationships
		WHERE from_item = ? OR (to_item = ? AND bidirectional = 1)
		ORDER BY id ASC
	`, itemID, itemID)
	if err != nil {
		return nil, fmt.Errorf("relationships for %d: %w", itemID, err)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var (
			r                  Relationship
			verified, bidirect int
		)
		if err := rows.Scan(&r.ID, &r.FromItem, &r.ToItem, &r.RelationType,
			&r.Strength, &verified, &bidirect, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		r.Verified = verified != 0
		r.Bidirectional = bidirect != 0
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// VerifyRelationship marks an edge as verified.
func (db *DB) VerifyRelationship(id int64) error {
	result, err := db.Exec(`UPDATE relationships SET verified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("verify relationship %d: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
