package store

import "errors"

// ErrNotFound is returned when a lookup by id/alias finds nothing.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidState is returned for constraint violations: invalid=1 writes
// rejected, alpha/beta out of range, success_count > usage_count, etc.
var ErrInvalidState = errors.New("store: invalid state")

// ErrPhaseViolation is returned when a task lifecycle operation is
// attempted from a phase that does not permit it (e.g. complete outside
// DOCUMENTER).
var ErrPhaseViolation = errors.New("store: phase violation")
