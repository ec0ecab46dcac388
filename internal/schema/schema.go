// Package schema implements the request schema IR described in §9: a
// field/type/constraint description compiled (in practice, interpreted
// directly — no pack of validator libraries was found across the example
// corpus, so this hand-rolled IR is the justified exception documented
// in DESIGN.md) into a validator producing {path, code, message} errors
// as data rather than exceptions.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/benredmond/apex-sub002/internal/apierr"
)

// Kind enumerates the field types the IR understands.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStringSlice
	KindObject
)

// Field describes one request field's type and constraints.
type Field struct {
	Path       string
	Kind       Kind
	Required   bool
	MinLen     int
	MaxLen     int
	Min        float64
	Max        float64
	Enum       []string
	MaxItems   int
	ItemRegexp *regexp.Regexp
}

// Result is the outcome of validating a request against a set of Fields.
type Result struct {
	Errors []apierr.FieldError
}

func (r Result) OK() bool { return len(r.Errors) == 0 }

func (r *Result) add(path, code, message string) {
	r.Errors = append(r.Errors, apierr.FieldError{Path: path, Code: code, Message: message})
}

// ValidateString checks a required/optional string field against length
// and enum constraints.
func ValidateString(r *Result, f Field, value string, present bool) {
	if !present {
		if f.Required {
			r.add(f.Path, "required", fmt.Sprintf("%s is required", f.Path))
		}
		return
	}
	if f.MinLen > 0 && len(value) < f.MinLen {
		r.add(f.Path, "too_short", fmt.Sprintf("%s must be at least %d characters", f.Path, f.MinLen))
	}
	if f.MaxLen > 0 && len(value) > f.MaxLen {
		r.add(f.Path, "too_long", fmt.Sprintf("%s must be at most %d characters", f.Path, f.MaxLen))
	}
	if len(f.Enum) > 0 && !contains(f.Enum, value) {
		r.add(f.Path, "invalid_enum", enumMessage(f.Path, value, f.Enum))
	}
}

// ValidateNumber checks a float64 field against its [Min, Max] range.
func ValidateNumber(r *Result, f Field, value float64, present bool) {
	if !present {
		if f.Required {
			r.add(f.Path, "required", fmt.Sprintf("%s is required", f.Path))
		}
		return
	}
	if value < f.Min || value > f.Max {
		r.add(f.Path, "out_of_range", fmt.Sprintf("%s must be between %v and %v", f.Path, f.Min, f.Max))
	}
}

// SanitizeTags lowercases, filters to [a-z0-9-]+, and truncates to at
// most 15 entries, per §6. Idempotent: SanitizeTags(SanitizeTags(x)) ==
// SanitizeTags(x).
var tagPattern = regexp.MustCompile(`[^a-z0-9-]+`)

func SanitizeTags(tags []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range tags {
		clean := tagPattern.ReplaceAllString(strings.ToLower(t), "")
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
		if len(out) == 15 {
			break
		}
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// enumMessage builds the "invalid outcome" style message §7 requires:
// enumerate legal values and suggest the closest one by edit distance.
func enumMessage(path, value string, enum []string) string {
	closest := closestMatch(value, enum)
	return fmt.Sprintf("%s must be one of [%s]; did you mean %q?", path, strings.Join(enum, ", "), closest)
}

func closestMatch(value string, candidates []string) string {
	best := candidates[0]
	bestDist := levenshtein(value, best)
	for _, c := range candidates[1:] {
		if d := levenshtein(value, c); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = min3(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
		}
	}
	return d[la][lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
