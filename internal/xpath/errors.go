package xpath

import (
	"errors"
	"fmt"
)

// ParseError reports malformed expression text.
// Pos is the 0-based byte offset of the offending token in Expr.
type ParseError struct {
	Expr    string
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d in %q: %s", e.Pos, e.Expr, e.Message)
}

// EvalErrorCode categorizes evaluation failures.
type EvalErrorCode string

const (
	// ErrCodeArity indicates a function was called with the wrong number of arguments.
	ErrCodeArity EvalErrorCode = "ARITY"

	// ErrCodeType indicates an argument of the wrong value kind.
	ErrCodeType EvalErrorCode = "TYPE"

	// ErrCodeUnknownFunction indicates a call to a function outside the library.
	ErrCodeUnknownFunction EvalErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeUnknownInstance indicates instance('id') named an unknown source.
	ErrCodeUnknownInstance EvalErrorCode = "UNKNOWN_INSTANCE"
)

// EvalError is a failure of one evaluation. Callers that run many
// evaluations recover from it by substituting the language's error value.
type EvalError struct {
	Code     EvalErrorCode
	Function string
	Message  string
}

func (e *EvalError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s(): %s", e.Code, e.Function, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsParseError reports whether err is a ParseError.
// Uses errors.As to handle wrapped errors.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsEvalError reports whether err is an EvalError.
// Uses errors.As to handle wrapped errors.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

func arityError(fn string, got int, want string) *EvalError {
	return &EvalError{
		Code:     ErrCodeArity,
		Function: fn,
		Message:  fmt.Sprintf("expected %s argument(s), got %d", want, got),
	}
}

func typeError(fn string, msg string) *EvalError {
	return &EvalError{Code: ErrCodeType, Function: fn, Message: msg}
}
