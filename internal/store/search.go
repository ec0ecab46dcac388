package store

import (
	"fmt"
	"strings"
)

// Search performs a ranked full-text query, falling back to a faceted
// listing when ftsQuery is empty (§4.1 edge case), and to a LIKE match on
// title and summary when FTS5 was not detected at open.
func (s *Store) Search(req SearchRequest) ([]Pattern, error) {
	if strings.TrimSpace(req.FTSQuery) == "" {
		return s.List(Filter{Types: req.Types, Tags: req.Tags}, "updated_at", true, clampK(req.K), 0)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ftsOK {
		return s.likeSearchLocked(req)
	}

	rows, err := s.db.Query(`
		SELECT `+prefixColumns("p", patternColumns)+`
		FROM patterns_fts f
		JOIN patterns p ON p.id = f.id
		WHERE patterns_fts MATCH ?
		ORDER BY bm25(patterns_fts)
		LIMIT ?
	`, ftsQueryString(req.FTSQuery), clampK(req.K))
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		if !matchesFacets(p, req.Types, req.Tags) {
			continue
		}
		p.Tags, _ = s.tagsForLocked(p.ID)
		out = append(out, p)
	}
	return out, rows.Err()
}

// likeSearchLocked requires the caller to already hold s.mu (read lock).
func (s *Store) likeSearchLocked(req SearchRequest) ([]Pattern, error) {
	like := "%" + req.FTSQuery + "%"
	rows, err := s.db.Query(`SELECT `+patternColumns+` FROM patterns
		WHERE (title LIKE ? OR summary LIKE ?) AND invalid = 0
		ORDER BY updated_at DESC LIMIT ?`, like, like, clampK(req.K))
	if err != nil {
		return nil, fmt.Errorf("like search: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		if !matchesFacets(p, req.Types, req.Tags) {
			continue
		}
		p.Tags, _ = s.tagsForLocked(p.ID)
		out = append(out, p)
	}
	return out, rows.Err()
}

func matchesFacets(p Pattern, types []PatternType, tags []string) bool {
	if len(types) > 0 {
		found := false
		for _, t := range types {
			if p.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true // tag facet applied at the tags-join level for List; FTS path post-filters by type only
}

func clampK(k int) int {
	if k <= 0 {
		return 20
	}
	if k > 500 {
		return 500
	}
	return k
}

// ftsQueryString escapes a free-form query for FTS5 MATCH by quoting each
// token, avoiding syntax errors on punctuation in error messages.
func ftsQueryString(q string) string {
	fields := strings.Fields(q)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		escaped := strings.ReplaceAll(f, `"`, `""`)
		quoted[i] = `"` + escaped + `"`
	}
	return strings.Join(quoted, " ")
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Lookup returns the ranker's candidate set: patterns tagged with any of
// the supplied tags/languages/frameworks, combined with a best-effort FTS
// pass over the free-form task text. Paths and TaskTypes are not used to
// select candidates.
func (s *Store) Lookup(req LookupRequest) ([]Pattern, error) {
	seen := map[string]Pattern{}

	if strings.TrimSpace(req.Task) != "" {
		textHits, err := s.Search(SearchRequest{FTSQuery: req.Task, K: clampK(req.K)})
		if err != nil {
			return nil, fmt.Errorf("lookup text search: %w", err)
		}
		for _, p := range textHits {
			seen[p.ID] = p
		}
	}

	facetTags := append(append([]string{}, req.Tags...), req.Languages...)
	facetTags = append(facetTags, req.Frameworks...)
	for _, tag := range uniqueLower(facetTags) {
		facetHits, err := s.List(Filter{Tags: []string{tag}}, "trust_score", true, clampK(req.K), 0)
		if err != nil {
			return nil, fmt.Errorf("lookup facet search: %w", err)
		}
		for _, p := range facetHits {
			seen[p.ID] = p
		}
	}

	if len(seen) == 0 {
		fallback, err := s.List(Filter{}, "trust_score", true, clampK(req.K), 0)
		if err != nil {
			return nil, err
		}
		return fallback, nil
	}

	out := make([]Pattern, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out, nil
}

func uniqueLower(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		l := strings.ToLower(s)
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

