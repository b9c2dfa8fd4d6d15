package bind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/xforms/internal/ir"
)

// ErrorCode categorizes registry errors.
type ErrorCode string

const (
	// ErrCodeInvalidBind indicates a bind that cannot be registered.
	ErrCodeInvalidBind ErrorCode = "INVALID_BIND"

	// ErrCodeCycleDetected indicates a dependency cycle among binds.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
)

// RegistrationError reports a bind that cannot be registered: a malformed
// nodeset or expression, an unknown type, or a nodeset matching no node.
// Err carries the underlying cause (e.g. *xpath.ParseError) when there is one.
type RegistrationError struct {
	Nodeset string
	Attr    Attr
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	var b strings.Builder
	b.WriteString(string(ErrCodeInvalidBind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Attr != "" {
		fmt.Fprintf(&b, " (nodeset=%s, attr=%s)", e.Nodeset, e.Attr)
	} else {
		fmt.Fprintf(&b, " (nodeset=%s)", e.Nodeset)
	}
	return b.String()
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// CycleError reports a dependency cycle. Path lists the nodesets along one
// cycle, starting and ending at the same nodeset.
type CycleError struct {
	Path []ir.Reference
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s: %s", ErrCodeCycleDetected, strings.Join(parts, " -> "))
}

// IsCycleError reports whether err is a CycleError.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// IsRegistrationError reports whether err is a RegistrationError.
func IsRegistrationError(err error) bool {
	var re *RegistrationError
	return errors.As(err, &re)
}
