package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/compiler"
	"github.com/roach88/xforms/internal/ir"
)

// LoadError represents an error that occurred before a form could be
// checked at all: a missing file, a directory, an unreadable path.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBadFlag     = "E008" // Malformed flag value

	// Bind graph errors
	ErrCodeInvalidBind = "E301" // Bind cannot be registered
	ErrCodeCycle       = "E302" // Dependency cycle among binds

	// Runtime errors
	ErrCodeEval     = "E401" // Expression failed to parse or evaluate
	ErrCodeMutation = "E402" // Mutation rejected by the session
	ErrCodeReplay   = "E403" // Journal cannot be replayed
)

// LoadForm loads and compiles the form in a single .cue file.
//
// A missing path yields a *LoadError with ErrCodeNotFound. CUE syntax and
// schema failures are returned as *compiler.CompileError, which callers
// treat as an invalid form rather than a command error.
func LoadForm(path string) (*ir.FormDef, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("form file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing form file: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a file: %s", path)}
	}
	if filepath.Ext(path) != ".cue" {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("not a CUE file: %s", path)}
	}
	return compiler.LoadFormFile(path)
}

// CheckForm runs every static check on a compiled form: validation rules
// first, then, when those pass, bind registration and cycle detection.
// Returns the registry of a valid form; a nil registry means errs holds
// at least one error.
func CheckForm(form *ir.FormDef) (*bind.Registry, []compiler.ValidationError) {
	if errs := compiler.Validate(form); len(errs) > 0 {
		return nil, errs
	}
	reg, err := bind.Load(form)
	if err != nil {
		return nil, []compiler.ValidationError{bindValidationError(err)}
	}
	return reg, nil
}

// bindValidationError converts a registry error into the validation error
// shape the commands report.
func bindValidationError(err error) compiler.ValidationError {
	var (
		ce *bind.CycleError
		re *bind.RegistrationError
	)
	switch {
	case errors.As(err, &ce):
		return compiler.ValidationError{Field: "binds", Message: ce.Error(), Code: ErrCodeCycle}
	case errors.As(err, &re):
		return compiler.ValidationError{Field: "binds", Message: re.Error(), Code: ErrCodeInvalidBind}
	}
	return compiler.ValidationError{Field: "binds", Message: err.Error(), Code: ErrCodeGeneric}
}

// compileValidationError converts a compile failure into a validation
// error carrying its source line.
func compileValidationError(err error) (compiler.ValidationError, int) {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return compiler.ValidationError{Field: ce.Field, Message: ce.Message, Code: ErrCodeLoadFailed}, lineOf(ce.Pos)
	}
	return compiler.ValidationError{Field: "form", Message: err.Error(), Code: ErrCodeLoadFailed}, 0
}

// lineOf extracts the line number from a token.Pos.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// loadCheckedForm loads a form and fails unless it passes every check.
// It is the entry point of commands that need a runnable form.
func loadCheckedForm(path string) (*ir.FormDef, *bind.Registry, error) {
	form, err := LoadForm(path)
	if err != nil {
		return nil, nil, asCommandError(err)
	}
	reg, errs := CheckForm(form)
	if len(errs) > 0 {
		return nil, nil, NewExitError(ExitCommandError,
			fmt.Sprintf("form %s is invalid: %s (run validate for details)", path, errs[0].Error()))
	}
	return form, reg, nil
}

// asCommandError wraps a load failure as a command error.
func asCommandError(err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return NewExitError(ExitCommandError, le.Error())
	}
	return WrapExitError(ExitCommandError, "failed to load form", err)
}

// requireFile fails with a command error unless path names an existing
// regular file.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: database not found: %s", ErrCodeNotFound, path))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s: error accessing %s", ErrCodeNotFound, path), err)
	}
	if info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: not a file: %s", ErrCodeNotFound, path))
	}
	return nil
}
