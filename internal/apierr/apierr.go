// Package apierr defines the error taxonomy of §7: a stable machine code
// plus a sanitized, bounded message, propagated as tagged result values
// to the transport boundary rather than thrown as exceptions (§9).
package apierr

import (
	"fmt"
	"strings"
)

// Code is one of the stable machine-readable error codes from §7.
type Code string

const (
	InvalidParams  Code = "INVALID_PARAMS"
	NotFound       Code = "NOT_FOUND"
	RateLimited    Code = "RATE_LIMITED"
	PhaseViolation Code = "PHASE_VIOLATION"
	InvalidState   Code = "INVALID_STATE"
	ToolExecution  Code = "TOOL_EXECUTION"
	Internal       Code = "INTERNAL"
)

const maxMessageLen = 200

// FieldError is one entry in an INVALID_PARAMS error's field list.
type FieldError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the structured error carried to the transport boundary.
type Error struct {
	ErrCode Code         `json:"code"`
	Msg     string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Msg)
}

// New builds an Error, sanitizing and bounding the message per §7.
func New(code Code, format string, args ...any) *Error {
	return &Error{ErrCode: code, Msg: sanitize(fmt.Sprintf(format, args...))}
}

// WithFields attaches INVALID_PARAMS field errors.
func (e *Error) WithFields(fields []FieldError) *Error {
	e.Fields = fields
	return e
}

// sanitize collapses an error message to a single line, strips absolute
// paths and anything resembling a secret, and bounds its length.
func sanitize(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = redactPaths(msg)
	msg = redactSecrets(msg)
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen-1] + "…"
	}
	return msg
}

func redactPaths(msg string) string {
	fields := strings.Fields(msg)
	for i, f := range fields {
		if strings.HasPrefix(f, "/") && strings.Count(f, "/") > 1 {
			fields[i] = "<path>"
		}
	}
	return strings.Join(fields, " ")
}

var secretMarkers = []string{"key=", "token=", "secret=", "password=", "Bearer "}

func redactSecrets(msg string) string {
	for _, marker := range secretMarkers {
		from := 0
		for {
			idx := strings.Index(msg[from:], marker)
			if idx == -1 {
				break
			}
			idx += from
			end := idx + len(marker)
			for end < len(msg) && msg[end] != ' ' {
				end++
			}
			msg = msg[:idx] + marker + "<redacted>" + msg[end:]
			from = idx + len(marker) + len("<redacted>")
		}
	}
	return msg
}

// FromError wraps a plain Go error as an INTERNAL apierr.Error unless it
// already is one.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(Internal, "%s", err.Error())
}
