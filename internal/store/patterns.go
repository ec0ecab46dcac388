package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benredmond/apex-sub002/internal/logging"
)

const patternColumns = `id, alias, type, title, summary, json_canonical, trust_score, alpha, beta,
	usage_count, success_count, invalid, key_insight, when_to_use, created_at, updated_at`

func scanPattern(row interface {
	Scan(dest ...any) error
}) (Pattern, error) {
	var p Pattern
	var alias, keyInsight, whenToUse sql.NullString
	var invalid int
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &alias, &p.Type, &p.Title, &p.Summary, &p.JSONCanonical,
		&p.TrustScore, &p.Alpha, &p.Beta, &p.UsageCount, &p.SuccessCount, &invalid,
		&keyInsight, &whenToUse, &createdAt, &updatedAt)
	if err != nil {
		return Pattern{}, err
	}
	p.Alias = alias.String
	p.KeyInsight = keyInsight.String
	p.WhenToUse = whenToUse.String
	p.Invalid = invalid != 0
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return p, nil
}

// Get resolves id_or_alias to a Pattern, or ErrNotFound. Alias collisions
// with an existing id resolve to the id per §4.1's edge-case rule.
func (s *Store) Get(idOrAlias string) (Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+patternColumns+` FROM patterns WHERE id = ?`, idOrAlias)
	p, err := scanPattern(row)
	if err == nil {
		p.Tags, _ = s.tagsForLocked(p.ID)
		return p, nil
	}
	if err != sql.ErrNoRows {
		return Pattern{}, fmt.Errorf("get pattern: %w", err)
	}

	row = s.db.QueryRow(`SELECT `+patternColumns+` FROM patterns WHERE alias = ?`, idOrAlias)
	p, err = scanPattern(row)
	if err == sql.ErrNoRows {
		return Pattern{}, ErrNotFound
	}
	if err != nil {
		return Pattern{}, fmt.Errorf("get pattern by alias: %w", err)
	}
	p.Tags, _ = s.tagsForLocked(p.ID)
	return p, nil
}

func (s *Store) tagsForLocked(patternID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT tag FROM pattern_tags WHERE pattern_id = ? ORDER BY tag`, patternID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// List returns a paginated, filtered set of patterns.
func (s *Store) List(filter Filter, orderBy string, descending bool, limit, offset int) ([]Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildWhere(filter)
	order := sanitizeOrderColumn(orderBy)
	dir := "ASC"
	if descending {
		dir = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM patterns %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		patternColumns, where, order, dir)
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		p.Tags, _ = s.tagsForLocked(p.ID)
		out = append(out, p)
	}
	return out, rows.Err()
}

func sanitizeOrderColumn(col string) string {
	switch col {
	case "trust_score", "usage_count", "created_at", "updated_at", "success_count":
		return col
	default:
		return "updated_at"
	}
}

// buildWhere renders a Filter as a SQL WHERE clause (AND-combined) plus
// bind args. Tag filtering uses an EXISTS subquery since tags live in a
// normalized join table.
func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, "type IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.MinTrust > 0 {
		clauses = append(clauses, "trust_score >= ?")
		args = append(args, f.MinTrust)
	}
	if f.Valid != nil {
		if *f.Valid {
			clauses = append(clauses, "invalid = 0")
		} else {
			clauses = append(clauses, "invalid = 1")
		}
	}
	for _, tag := range f.Tags {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM pattern_tags pt WHERE pt.pattern_id = patterns.id AND LOWER(pt.tag) = LOWER(?))`)
		args = append(args, tag)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Count returns the number of patterns matching filter.
func (s *Store) Count(filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildWhere(filter)
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM patterns `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return count, nil
}

// AggregateStats returns counts, averages, and type distribution for a filter.
func (s *Store) AggregateStats(filter Filter) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := buildWhere(filter)
	stats := Stats{TypeCounts: map[PatternType]int{}}

	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(AVG(trust_score),0), COALESCE(AVG(usage_count),0) FROM patterns `+where, args...)
	if err := row.Scan(&stats.Count, &stats.AvgTrust, &stats.AvgUsageCount); err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}

	rows, err := s.db.Query(`SELECT type, COUNT(*) FROM patterns `+where+` GROUP BY type`, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate type distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return Stats{}, err
		}
		stats.TypeCounts[PatternType(t)] = n
	}
	return stats, rows.Err()
}

// GetMetadata bulk-fetches metadata rows for the given pattern ids.
func (s *Store) GetMetadata(ids []string) (map[string][]PatternMetadata, error) {
	return bulkFetch(s, ids, "pattern_metadata", func(rows *sql.Rows) (string, any, error) {
		var m PatternMetadata
		if err := rows.Scan(&m.PatternID, &m.Key, &m.Value); err != nil {
			return "", nil, err
		}
		return m.PatternID, m, nil
	})
}

// GetTriggers bulk-fetches triggers for the given pattern ids, ordered by
// descending priority per §3.
func (s *Store) GetTriggers(ids []string) (map[string][]PatternTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(ids) == 0 {
		return map[string][]PatternTrigger{}, nil
	}
	placeholders, args := idsPlaceholder(ids)
	rows, err := s.db.Query(`SELECT pattern_id, trigger_type, trigger_value, priority FROM pattern_triggers
		WHERE pattern_id IN (`+placeholders+`) ORDER BY pattern_id, priority DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("get triggers: %w", err)
	}
	defer rows.Close()

	out := map[string][]PatternTrigger{}
	for rows.Next() {
		var t PatternTrigger
		if err := rows.Scan(&t.PatternID, &t.TriggerType, &t.TriggerValue, &t.Priority); err != nil {
			return nil, err
		}
		out[t.PatternID] = append(out[t.PatternID], t)
	}
	return out, rows.Err()
}

// GetVocab bulk-fetches weighted vocabulary terms for the given pattern ids.
func (s *Store) GetVocab(ids []string) (map[string][]PatternVocab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(ids) == 0 {
		return map[string][]PatternVocab{}, nil
	}
	placeholders, args := idsPlaceholder(ids)
	rows, err := s.db.Query(`SELECT pattern_id, term, term_type, weight FROM pattern_vocab
		WHERE pattern_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get vocab: %w", err)
	}
	defer rows.Close()

	out := map[string][]PatternVocab{}
	for rows.Next() {
		var v PatternVocab
		if err := rows.Scan(&v.PatternID, &v.Term, &v.TermType, &v.Weight); err != nil {
			return nil, err
		}
		out[v.PatternID] = append(out[v.PatternID], v)
	}
	return out, rows.Err()
}

func idsPlaceholder(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func bulkFetch(s *Store, ids []string, table string, scan func(*sql.Rows) (string, any, error)) (map[string][]PatternMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string][]PatternMetadata{}
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := idsPlaceholder(ids)
	rows, err := s.db.Query(`SELECT pattern_id, key, value FROM `+table+` WHERE pattern_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("bulk fetch %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		id, val, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out[id] = append(out[id], val.(PatternMetadata))
	}
	return out, rows.Err()
}

// UpsertPattern inserts or fully replaces a pattern's core row, tags, and
// FTS index entry inside one transaction. Rejects writes when the
// existing row has invalid=1, unless this call is clearing the flag.
func (s *Store) UpsertPattern(p Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.SuccessCount > p.UsageCount {
		return fmt.Errorf("%w: success_count %d exceeds usage_count %d", ErrInvalidState, p.SuccessCount, p.UsageCount)
	}
	if p.Alpha < 1 || p.Beta < 1 {
		return fmt.Errorf("%w: alpha/beta must be >= 1", ErrInvalidState)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingInvalid sql.NullInt64
	err = tx.QueryRow(`SELECT invalid FROM patterns WHERE id = ?`, p.ID).Scan(&existingInvalid)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("checking existing invalid flag: %w", err)
	}
	if err == nil && existingInvalid.Int64 != 0 && p.Invalid {
		return fmt.Errorf("%w: pattern %s is quarantined", ErrInvalidState, p.ID)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	invalidInt := 0
	if p.Invalid {
		invalidInt = 1
	}
	_, err = tx.Exec(`INSERT INTO patterns (id, alias, type, title, summary, json_canonical, trust_score,
			alpha, beta, usage_count, success_count, invalid, key_insight, when_to_use, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			alias=excluded.alias, type=excluded.type, title=excluded.title, summary=excluded.summary,
			json_canonical=excluded.json_canonical, trust_score=excluded.trust_score, alpha=excluded.alpha,
			beta=excluded.beta, usage_count=excluded.usage_count, success_count=excluded.success_count,
			invalid=excluded.invalid, key_insight=excluded.key_insight, when_to_use=excluded.when_to_use,
			updated_at=excluded.updated_at`,
		p.ID, nullableString(p.Alias), string(p.Type), p.Title, p.Summary, p.JSONCanonical, p.TrustScore,
		p.Alpha, p.Beta, p.UsageCount, p.SuccessCount, invalidInt, nullableString(p.KeyInsight),
		nullableString(p.WhenToUse), p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting pattern: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM pattern_tags WHERE pattern_id = ?`, p.ID); err != nil {
		return err
	}
	sortedTags := append([]string(nil), p.Tags...)
	sort.Strings(sortedTags)
	for _, tag := range sortedTags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO pattern_tags(pattern_id, tag) VALUES (?, ?)`, p.ID, strings.ToLower(tag)); err != nil {
			return err
		}
	}

	if err := reindexFTS(tx, p, sortedTags); err != nil {
		return err
	}

	logging.StoreDebug("upserted pattern %s (type=%s)", p.ID, p.Type)
	return tx.Commit()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// reindexFTS replaces this pattern's row in patterns_fts, if FTS5 is
// available; it is a no-op otherwise (search falls back to LIKE).
func reindexFTS(tx *sql.Tx, p Pattern, tags []string) error {
	var exists int
	err := tx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='patterns_fts'`).Scan(&exists)
	if err != nil || exists == 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM patterns_fts WHERE id = ?`, p.ID); err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO patterns_fts(id, title, summary, tags) VALUES (?, ?, ?, ?)`,
		p.ID, p.Title, p.Summary, strings.Join(tags, " "))
	return err
}

// UpdateTrust persists a recomputed (alpha, beta, trust_score) for a
// pattern, bumping usage/success counters atomically.
func (s *Store) UpdateTrust(id string, alpha, beta, score float64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alpha < 1 || beta < 1 {
		return fmt.Errorf("%w: alpha/beta must be >= 1", ErrInvalidState)
	}

	successIncrement := 0
	if success {
		successIncrement = 1
	}
	res, err := s.db.Exec(`UPDATE patterns SET alpha=?, beta=?, trust_score=?, usage_count=usage_count+1,
			success_count=success_count+?, updated_at=? WHERE id = ? AND invalid = 0`,
		alpha, beta, score, successIncrement, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("updating trust: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	logging.TrustDebug("pattern %s trust updated to %.4f", id, score)
	return nil
}
