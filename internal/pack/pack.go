// Package pack assembles a size-bounded PatternPack from a ranked
// candidate sequence, per §4.5: serialize in rank order, drop the
// snippet before dropping the item, stop once nothing more fits, and
// record how many items were considered/included/truncated.
package pack

import (
	"encoding/json"

	"github.com/benredmond/apex-sub002/internal/rank"
)

const (
	DefaultMaxSizeBytes = 8192
	MinSizeBytes        = 1024
	MaxSizeBytes        = 65536
	maxSummaryChars     = 200
)

// Item is the compressed projection of one pattern included in a pack.
type Item struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Trust   float64  `json:"trust"`
	Tags    []string `json:"tags"`
	Score   float64  `json:"score"`
	Snippet string   `json:"snippet,omitempty"`
}

// Pack is the assembled, size-bounded response object.
type Pack struct {
	Items                 []Item `json:"items"`
	TotalItemsConsidered   int    `json:"total_items_considered"`
	Included               int    `json:"included"`
	TruncatedSummaryCount  int    `json:"truncated_summary_count"`
}

// SnippetExtractor returns the single best code snippet for a pattern, or
// "" if none is available. Kept as an injected function so the pack
// package doesn't need to know about json_canonical's internal shape.
type SnippetExtractor func(jsonCanonical string) string

// Assemble builds a Pack bounded by maxSizeBytes, clamped to
// [MinSizeBytes, MaxSizeBytes].
func Assemble(ranked []rank.Scored, maxSizeBytes int, snippetOf SnippetExtractor) Pack {
	maxSizeBytes = clampBudget(maxSizeBytes)

	result := Pack{TotalItemsConsidered: len(ranked)}
	size := baseEnvelopeSize()

	for _, r := range ranked {
		p := r.Candidate.Pattern
		summary, truncated := truncateSummary(p.Summary)
		item := Item{
			ID:      p.ID,
			Type:    string(p.Type),
			Title:   p.Title,
			Summary: summary,
			Trust:   r.Candidate.TrustValue,
			Tags:    p.Tags,
			Score:   r.Score,
		}
		if snippetOf != nil {
			item.Snippet = snippetOf(p.JSONCanonical)
		}

		isFirst := len(result.Items) == 0

		full := itemSize(item)
		if size+full > maxSizeBytes && item.Snippet != "" {
			item.Snippet = ""
			full = itemSize(item)
		}
		if size+full <= maxSizeBytes || isFirst {
			size += full
			if truncated {
				result.TruncatedSummaryCount++
			}
			result.Items = append(result.Items, item)
			continue
		}

		break
	}

	result.Included = len(result.Items)
	return result
}

func clampBudget(n int) int {
	if n < MinSizeBytes {
		return MinSizeBytes
	}
	if n > MaxSizeBytes {
		return MaxSizeBytes
	}
	if n == 0 {
		return DefaultMaxSizeBytes
	}
	return n
}

func truncateSummary(s string) (string, bool) {
	if len(s) <= maxSummaryChars {
		return s, false
	}
	return s[:maxSummaryChars-len("…")] + "…", true
}

func itemSize(item Item) int {
	b, err := json.Marshal(item)
	if err != nil {
		return 0
	}
	return len(b)
}

func baseEnvelopeSize() int {
	b, _ := json.Marshal(Pack{})
	return len(b)
}
