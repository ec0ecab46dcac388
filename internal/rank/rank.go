// Package rank implements the weighted multi-factor scoring described in
// §4.4: FTS relevance, facet/trigger matches, trust, locality, and
// recency combine into one bounded score per candidate, with session
// bias terms and a deterministic tie-break. Grounded on the teacher's
// scoring helpers in internal/store/reflection_search.go
// (lexicalScore's floor-and-blend pattern), generalized from a single
// lexical term into the full weighted-term sum the ranker needs.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/benredmond/apex-sub002/internal/signals"
	"github.com/benredmond/apex-sub002/internal/store"
)

// Weights are the §4.4 scoring weights, exposed for configuration/testing.
type Weights struct {
	FTS     float64
	Facet   float64
	Trigger float64
	Trust   float64
	Locality float64
	Recency float64
}

// DefaultWeights matches §4.4 exactly.
var DefaultWeights = Weights{
	FTS:      0.25,
	Facet:    0.20,
	Trigger:  0.20,
	Trust:    0.20,
	Locality: 0.10,
	Recency:  0.05,
}

const (
	sessionRecentBias = 0.05
	sessionFailedBias = -0.10
	complementaryBonus = 0.03
)

// complementaryPairs lists tag pairs that add a small positive
// interaction term when both appear across the candidate+signals facets,
// e.g. an API pattern paired with error-handling guidance.
var complementaryPairs = map[string]string{
	"api":   "error_handling",
	"test":  "mock",
	"cache": "invalidation",
}

// Candidate is a pattern plus the retrieval-time facts the ranker needs
// beyond the Pattern row itself.
type Candidate struct {
	Pattern      store.Pattern
	FTSRank      float64 // normalized [0,1], 0 if not from an FTS hit
	Triggers     []store.PatternTrigger
	TrustValue   float64
	TrustConfidence float64
}

// Scored is a candidate plus its computed score, ready for pack assembly.
type Scored struct {
	Candidate Candidate
	Score     float64
}

// Rank scores and orders candidates against signals, applying session
// bias, complementary-pair bonuses, and the deterministic tie-break.
func Rank(candidates []Candidate, sig signals.Signals, weights Weights, now time.Time) []Scored {
	scored := make([]Scored, 0, len(candidates))
	hasErrorContext := len(sig.ErrorTypes) > 0 || len(sig.ErrorCodes) > 0

	activeTags := activeFacetSet(sig)

	for _, c := range candidates {
		score := 0.0
		score += weights.FTS * clamp01(c.FTSRank)
		score += weights.Facet * facetScore(c.Pattern, sig)

		triggerWeight := weights.Trigger
		if hasErrorContext {
			triggerWeight *= 1.5 // error triggers dominate when error_context is non-empty
		}
		score += triggerWeight * triggerScore(c, sig)

		trustTerm := c.TrustValue - 0.5*(1-c.TrustConfidence)
		score += weights.Trust * clamp01(trustTerm)

		score += weights.Locality * localityScore(c.Pattern, sig)
		score += weights.Recency * recencyScore(c.Pattern.UpdatedAt, now)

		score += sessionBias(c.Pattern.ID, sig)
		score += complementaryBonusFor(c.Pattern, activeTags)

		scored = append(scored, Scored{Candidate: c, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return less(scored[i], scored[j])
	})
	return scored
}

// less implements the ranked ordering: higher score first, then the
// deterministic tie-break (higher trust, then more recent updated_at,
// then lexicographic id), per §4.4.
func less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Candidate.TrustValue != b.Candidate.TrustValue {
		return a.Candidate.TrustValue > b.Candidate.TrustValue
	}
	if !a.Candidate.Pattern.UpdatedAt.Equal(b.Candidate.Pattern.UpdatedAt) {
		return a.Candidate.Pattern.UpdatedAt.After(b.Candidate.Pattern.UpdatedAt)
	}
	return a.Candidate.Pattern.ID < b.Candidate.Pattern.ID
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func facetScore(p store.Pattern, sig signals.Signals) float64 {
	matches := 0.0
	total := 0.0

	total++
	for _, lang := range sig.Languages {
		if hasTag(p.Tags, lang) {
			matches++
			break
		}
	}
	total++
	for _, fw := range sig.Frameworks {
		if hasTag(p.Tags, fw.Name) {
			matches++
			break
		}
	}
	total++
	if len(sig.Languages) == 0 && len(sig.Frameworks) == 0 {
		total--
	}

	if total == 0 {
		return 0
	}
	return matches / total
}

func hasTag(tags []string, value string) bool {
	value = strings.ToLower(value)
	for _, t := range tags {
		if strings.ToLower(t) == value {
			return true
		}
	}
	return false
}

func triggerScore(c Candidate, sig signals.Signals) float64 {
	if len(c.Triggers) == 0 {
		return 0
	}
	best := 0
	maxPriority := 0
	for _, trig := range c.Triggers {
		if trig.Priority > maxPriority {
			maxPriority = trig.Priority
		}
		switch trig.TriggerType {
		case store.TriggerError:
			for _, code := range sig.ErrorCodes {
				if strings.EqualFold(code, trig.TriggerValue) {
					best = maxInt(best, trig.Priority+1)
				}
			}
			for _, et := range sig.ErrorTypes {
				if strings.EqualFold(et, trig.TriggerValue) {
					best = maxInt(best, trig.Priority+1)
				}
			}
		case store.TriggerKeyword, store.TriggerScenario:
			for _, lang := range sig.Languages {
				if strings.EqualFold(lang, trig.TriggerValue) {
					best = maxInt(best, trig.Priority+1)
				}
			}
		}
	}
	if best == 0 {
		return 0
	}
	return clamp01(float64(best) / float64(maxPriority+1))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func localityScore(p store.Pattern, sig signals.Signals) float64 {
	if len(sig.Paths) == 0 {
		return 0
	}
	for _, metaPath := range p.Tags {
		for _, sigPath := range sig.Paths {
			if sharesPrefix(metaPath, sigPath) {
				return 1
			}
		}
	}
	return 0
}

func sharesPrefix(a, b string) bool {
	aDir := dirOf(a)
	bDir := dirOf(b)
	return aDir != "" && strings.HasPrefix(bDir, aDir)
}

func dirOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return ""
	}
	return path[:idx]
}

func recencyScore(updatedAt time.Time, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / 180)
}

func sessionBias(patternID string, sig signals.Signals) float64 {
	for _, id := range sig.RecentPatterns {
		if id == patternID {
			return sessionRecentBias
		}
	}
	for _, id := range sig.FailedPatterns {
		if id == patternID {
			return sessionFailedBias
		}
	}
	return 0
}

func activeFacetSet(sig signals.Signals) map[string]bool {
	active := map[string]bool{}
	for _, lang := range sig.Languages {
		active[strings.ToLower(lang)] = true
	}
	for _, fw := range sig.Frameworks {
		active[strings.ToLower(fw.Name)] = true
	}
	return active
}

func complementaryBonusFor(p store.Pattern, activeTags map[string]bool) float64 {
	for _, tag := range p.Tags {
		lower := strings.ToLower(tag)
		if partner, ok := complementaryPairs[lower]; ok && activeTags[partner] {
			return complementaryBonus
		}
		for k, v := range complementaryPairs {
			if v == lower && activeTags[k] {
				return complementaryBonus
			}
		}
	}
	return 0
}
