// Package idgen generates opaque identifiers for patterns, tasks, and
// reflection events, following the teacher's practice of using
// google/uuid rather than hand-rolled random strings.
package idgen

import "github.com/google/uuid"

// New returns a fresh opaque identifier. Callers must not parse structure
// out of the returned string beyond treating it as a stable, unique token.
func New() string {
	return uuid.NewString()
}

// NewPrefixed returns a fresh identifier with a short type prefix, e.g.
// "pat_3f9a..." or "task_3f9a...", to aid log readability without
// encoding any semantics callers should rely on.
func NewPrefixed(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Valid reports whether s looks like an identifier this package could have
// minted: non-empty and at least 8 characters, matching the spec's opaque
// ID length floor.
func Valid(s string) bool {
	return len(s) >= 8
}
