package store

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"
)

// Pattern tracks recurring structural payloads. Dedup at write time is
// exact-match on (type, data_fingerprint) only — no fuzzy matching.
type Pattern struct {
	ID              int64
	Type            string
	DataFingerprint string
	Frequency       int
	SuccessRate     float64
	LastSeenAt      int64
	CreatedAt       int64
}

// Fingerprint hashes a structural payload into a stable dedup key.
func Fingerprint(payload []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(payload))
}

// ObservePattern records one occurrence of a (type, fingerprint) pair.
// First occurrence creates the pattern with success_rate equal to the
// outcome; later occurrences bump frequency and fold the outcome into a
// running weighted average:
//
//	successRate = (successRate*freqOld + outcome) / freqNew
func (db *DB) ObservePattern(ptype, fingerprint string, success bool) (*Pattern, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin observe pattern: %w", err)
	}

	now := time.Now().UnixMilli()
	outcome := 0.0
	if success {
		outcome = 1.0
	}

	var p Pattern
	err = tx.QueryRow(`
		SELECT id, type, data_fingerprint, frequency, success_rate, last_seen_at, created_at
		FROM patterns WHERE type = ? AND data_fingerprint = ?
	`, ptype, fingerprint).Scan(&p.ID, &p.Type, &p.DataFingerprint, &p.Frequency,
		&p.SuccessRate, &p.LastSeenAt, &p.CreatedAt)

	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(`
			INSERT INTO patterns (type, data_fingerprint, frequency, success_rate, last_seen_at, created_at)
			VALUES (?, ?, 1, ?, ?, ?)
		`, ptype, fingerprint, outcome, now, now)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("insert pattern: %w", err)
		}
		id, _ := result.LastInsertId()
		p = Pattern{ID: id, Type: ptype, DataFingerprint: fingerprint,
			Frequency: 1, SuccessRate: outcome, LastSeenAt: now, CreatedAt: now}

	case err != nil:
		tx.Rollback()
		return nil, fmt.Errorf("lookup pattern: %w", err)

	default:
		freqNew := p.Frequency + 1
		p.SuccessRate = (p.SuccessRate*float64(p.Frequency) + outcome) / float64(freqNew)
		p.Frequency = freqNew
		p.LastSeenAt = now

		if _, err := tx.Exec(`
			UPDATE patterns SET frequency = ?, success_rate = ?, last_seen_at = ? WHERE id = ?
		`, p.Frequency, p.SuccessRate, p.LastSeenAt, p.ID); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("update pattern %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit observe pattern: %w", err)
	}
	return &p, nil
}

// GetPattern returns a pattern by (type, fingerprint).
func (db *DB) GetPattern(ptype, fingerprint string) (*Pattern, error) {
	var p Pattern
	err := db.QueryRow(`
		SELECT id, type, data_fingerprint, frequency, success_rate, last_seen_at, created_at
		FROM patterns WHERE type = ? AND data_fingerprint = ?
	`, ptype, fingerprint).Scan(&p.ID, &p.Type, &p.DataFingerprint, &p.Frequency,
		&p.SuccessRate, &p.LastSeenAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern: %w", err)
	}
	return &p, nil
}

// CountPatterns returns the number of distinct patterns.
func (db *DB) CountPatterns() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM patterns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return n, nil
}
