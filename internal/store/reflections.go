package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/benredmond/apex-sub002/internal/logging"
)

// ContentHash computes the idempotency key for a reflection: a SHA-256
// digest over (task_id, claims), per §4.6 step 5.
func ContentHash(taskID, claims string) string {
	h := sha256.Sum256([]byte(taskID + "\x00" + claims))
	return hex.EncodeToString(h[:])
}

// ReflectionExists reports whether a reflection with this content hash has
// already been stored for the task, for the idempotency check.
func (s *Store) ReflectionExists(taskID, contentHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM reflections WHERE task_id = ? AND content_hash = ?`,
		taskID, contentHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking reflection idempotency: %w", err)
	}
	return count > 0, nil
}

// TrustUpdate is one pattern's recomputed trust, applied inside
// StoreReflection's write transaction.
type TrustUpdate struct {
	PatternID string
	Alpha     float64
	Beta      float64
	Score     float64
	Success   bool
}

// ReflectionTransaction bundles everything §4.1's single write transaction
// for a reflection must apply atomically.
type ReflectionTransaction struct {
	Reflection   Reflection
	TrustUpdates []TrustUpdate
	NewPatterns  []Pattern
	AntiPatterns []Pattern
	PatternsUsed []string // pattern ids to record one audit_event{kind=pattern_used} each
}

// StoreReflection applies an entire reflection transaction atomically:
// the reflection record, trust updates, new/anti pattern inserts, and
// pattern_used audit events. Returns ErrAlreadyPersisted-equivalent
// behavior via the boolean persisted return when idempotency is hit
// inside the same transaction (a race against ReflectionExists).
func (s *Store) StoreReflection(rt ReflectionTransaction) (persisted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM reflections WHERE task_id = ? AND content_hash = ?`,
		rt.Reflection.TaskID, rt.Reflection.ContentHash).Scan(&existing); err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	if rt.Reflection.ID == "" {
		return false, fmt.Errorf("%w: reflection id required", ErrInvalidState)
	}
	if rt.Reflection.ReceivedAt.IsZero() {
		rt.Reflection.ReceivedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`INSERT INTO reflections (id, task_id, outcome, content_hash, claims_payload, artifacts, received_at)
		VALUES (?,?,?,?,?,?,?)`,
		rt.Reflection.ID, rt.Reflection.TaskID, string(rt.Reflection.Outcome), rt.Reflection.ContentHash,
		rt.Reflection.ClaimsPayload, rt.Reflection.Artifacts, rt.Reflection.ReceivedAt.Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("storing reflection: %w", err)
	}

	for _, u := range rt.TrustUpdates {
		if u.Alpha < 1 || u.Beta < 1 {
			return false, fmt.Errorf("%w: trust update alpha/beta must be >= 1 for %s", ErrInvalidState, u.PatternID)
		}
		successIncrement := 0
		if u.Success {
			successIncrement = 1
		}
		res, err := tx.Exec(`UPDATE patterns SET alpha=?, beta=?, trust_score=?, usage_count=usage_count+1,
				success_count=success_count+?, updated_at=? WHERE id = ? AND invalid = 0`,
			u.Alpha, u.Beta, u.Score, successIncrement, time.Now().UTC().Format(time.RFC3339Nano), u.PatternID)
		if err != nil {
			return false, fmt.Errorf("applying trust update for %s: %w", u.PatternID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, fmt.Errorf("%w: pattern %s not found or quarantined", ErrNotFound, u.PatternID)
		}
	}

	for _, p := range append(append([]Pattern{}, rt.NewPatterns...), rt.AntiPatterns...) {
		if err := insertNewPatternLocked(tx, p); err != nil {
			return false, fmt.Errorf("inserting pattern %s: %w", p.ID, err)
		}
	}

	for _, pid := range rt.PatternsUsed {
		if _, err := tx.Exec(`INSERT INTO audit_events (id, task_id, kind, pattern_id, timestamp, details)
			VALUES (?,?,?,?,?,?)`,
			fmt.Sprintf("audit_%s_%s", rt.Reflection.ID, pid), rt.Reflection.TaskID, "pattern_used", pid,
			time.Now().UTC().Format(time.RFC3339Nano), ""); err != nil {
			return false, fmt.Errorf("writing audit event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing reflection: %w", err)
	}
	logging.Reflect("reflection %s persisted for task %s", rt.Reflection.ID, rt.Reflection.TaskID)
	return true, nil
}

func insertNewPatternLocked(tx *sql.Tx, p Pattern) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	invalidInt := 0
	if p.Invalid {
		invalidInt = 1
	}
	_, err := tx.Exec(`INSERT INTO patterns (id, alias, type, title, summary, json_canonical, trust_score,
			alpha, beta, usage_count, success_count, invalid, key_insight, when_to_use, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, nullableString(p.Alias), string(p.Type), p.Title, p.Summary, p.JSONCanonical, p.TrustScore,
		p.Alpha, p.Beta, p.UsageCount, p.SuccessCount, invalidInt, nullableString(p.KeyInsight),
		nullableString(p.WhenToUse), p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	for _, tag := range p.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO pattern_tags(pattern_id, tag) VALUES (?, ?)`, p.ID, tag); err != nil {
			return err
		}
	}
	return reindexFTS(tx, p, p.Tags)
}

// StoreAuditEvent records a standalone audit event, e.g. a quarantine.
func (s *Store) StoreAuditEvent(e AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO audit_events (id, task_id, kind, pattern_id, timestamp, details)
		VALUES (?,?,?,?,?,?)`,
		e.ID, nullableString(e.TaskID), e.Kind, nullableString(e.PatternID), e.Timestamp.Format(time.RFC3339Nano), e.Details)
	if err != nil {
		return fmt.Errorf("storing audit event: %w", err)
	}
	return nil
}

// AntiPatternCandidates returns ANTI-type patterns with their usage count
// over a rolling window (approximated here via usage_count since the
// audit log doesn't retain every historical hit), for the reflection
// response's anti_candidates field.
func (s *Store) AntiPatternCandidates(windowDays int) ([]Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays).Format(time.RFC3339Nano)
	rows, err := s.db.Query(`SELECT `+patternColumns+` FROM patterns
		WHERE type = ? AND invalid = 0 AND updated_at >= ? ORDER BY usage_count DESC`,
		string(PatternAnti), cutoff)
	if err != nil {
		return nil, fmt.Errorf("anti pattern candidates: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
