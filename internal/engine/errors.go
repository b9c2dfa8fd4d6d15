package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/xforms/internal/ir"
)

// RuntimeError represents an error detected while a session runs.
//
// Runtime errors include:
//   - Re-entrant mutation: a mutation requested while a pass is settling
//   - Unknown language: SetActiveLanguage named no declared language
//   - Invalid mutation: a replayed record the session cannot apply
//   - Form mismatch: a replay against a form with a different hash
//
// Structural errors from the document (unknown refs, repeat bounds) are
// returned unwrapped as *instance.StructuralError.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session, when known.
	SessionID string

	// Ref is the node the failing request addressed, when any.
	Ref ir.Reference

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeReentrantMutation indicates a mutation arrived while a settling
	// pass was running, typically from inside a change notification.
	ErrCodeReentrantMutation RuntimeErrorCode = "REENTRANT_MUTATION"

	// ErrCodeUnknownLanguage indicates the requested language is not declared.
	ErrCodeUnknownLanguage RuntimeErrorCode = "UNKNOWN_LANGUAGE"

	// ErrCodeInvalidMutation indicates a journaled mutation cannot be applied.
	ErrCodeInvalidMutation RuntimeErrorCode = "INVALID_MUTATION"

	// ErrCodeFormMismatch indicates a replay targets a different form.
	ErrCodeFormMismatch RuntimeErrorCode = "FORM_MISMATCH"
)

// ErrReentrantMutation is returned by every mutation that arrives while
// another one is still settling. Compare with errors.Is.
var ErrReentrantMutation = &RuntimeError{
	Code:    ErrCodeReentrantMutation,
	Message: "mutation requested while a settling pass is running",
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.SessionID != "" && e.Ref != "" {
		return fmt.Sprintf("%s: %s (session=%s, ref=%s)", e.Code, e.Message, e.SessionID, e.Ref)
	}
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s (ref=%s)", e.Code, e.Message, e.Ref)
	}
	if e.SessionID != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.SessionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsReentrantError returns true if err rejected a re-entrant mutation.
// Uses errors.As to handle wrapped errors.
func IsReentrantError(err error) bool {
	return hasCode(err, ErrCodeReentrantMutation)
}

// IsUnknownLanguageError returns true if err names an undeclared language.
func IsUnknownLanguageError(err error) bool {
	return hasCode(err, ErrCodeUnknownLanguage)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewUnknownLanguageError creates a RuntimeError for an undeclared language.
func NewUnknownLanguageError(sessionID, name string, declared []string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeUnknownLanguage,
		Message:   fmt.Sprintf("language %q is not declared by the form", name),
		SessionID: sessionID,
		Details: map[string]string{
			"declared": fmt.Sprintf("%q", declared),
		},
	}
}

// NewFormMismatchError creates a RuntimeError for a replay whose journal
// was recorded against another form.
func NewFormMismatchError(sessionID, want, got string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeFormMismatch,
		Message:   "journal was recorded against a different form",
		SessionID: sessionID,
		Details: map[string]string{
			"recorded_hash": want,
			"form_hash":     got,
		},
	}
}
