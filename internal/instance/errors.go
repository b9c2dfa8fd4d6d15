package instance

import (
	"errors"
	"fmt"

	"github.com/roach88/xforms/internal/ir"
)

// StructuralErrorCode categorizes structural errors.
type StructuralErrorCode string

const (
	// ErrCodeNotFound indicates no node exists at the reference.
	ErrCodeNotFound StructuralErrorCode = "NOT_FOUND"

	// ErrCodeNotALeaf indicates a value was set on a node that holds none.
	ErrCodeNotALeaf StructuralErrorCode = "NOT_A_LEAF"

	// ErrCodeNotARange indicates a repeat operation on a non-repeat node.
	ErrCodeNotARange StructuralErrorCode = "NOT_A_RANGE"

	// ErrCodeNotAnInstance indicates a reference that does not address one
	// repeat instance.
	ErrCodeNotAnInstance StructuralErrorCode = "NOT_AN_INSTANCE"

	// ErrCodeIndexOutOfRange indicates a repeat position outside the range.
	ErrCodeIndexOutOfRange StructuralErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeInvalidCount indicates a non-positive instance count.
	ErrCodeInvalidCount StructuralErrorCode = "INVALID_COUNT"

	// ErrCodeMaxExceeded indicates a repeat would grow past its declared max.
	ErrCodeMaxExceeded StructuralErrorCode = "MAX_EXCEEDED"
)

// StructuralError reports an operation on a node that does not exist or
// cannot take the operation. The document is unchanged when one is returned.
type StructuralError struct {
	Code    StructuralErrorCode
	Ref     ir.Reference
	Message string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s (ref=%s)", e.Code, e.Message, e.Ref)
}

// IsStructuralError reports whether err is a StructuralError.
// Uses errors.As to handle wrapped errors.
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is a NOT_FOUND StructuralError.
func IsNotFound(err error) bool {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Code == ErrCodeNotFound
	}
	return false
}

func structural(code StructuralErrorCode, ref ir.Reference, format string, args ...any) *StructuralError {
	return &StructuralError{Code: code, Ref: ref, Message: fmt.Sprintf(format, args...)}
}
