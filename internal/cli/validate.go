package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/xforms/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Form   string                     `json:"form"`
	Valid  bool                       `json:"valid"`
	Binds  int                        `json:"binds,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <form.cue>",
		Short: "Check a form without running it",
		Long: `Check a CUE form: schema, validation rules, bind registration and
dependency cycles.

Exit codes:
  0 - Form is valid
  1 - Form is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	form, err := LoadForm(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		// Syntax and schema failures make the form invalid
		verr, line := compileValidationError(err)
		return outputValidationErrors(formatter, path, []compiler.ValidationError{verr}, []int{line})
	}

	formatter.VerboseLog("Compiled form %q: %d bind(s)", form.ID, len(form.Binds))

	reg, errs := CheckForm(form)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, path, errs, nil)
	}

	formatter.VerboseLog("Bind graph: %d entries, %d edges", len(reg.Entries()), len(reg.Edges()))

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Form: form.ID, Valid: true, Binds: len(reg.Entries())})
	}
	fmt.Fprintf(formatter.Writer, "✓ Form %s is valid (%d bind entries)\n", form.ID, len(reg.Entries()))
	return nil
}

// outputValidateError outputs a single command error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs validation errors. lines, when given,
// holds the source line of each error (0 when unknown).
func outputValidationErrors(formatter *OutputFormatter, path string, errs []compiler.ValidationError, lines []int) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Form: path, Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := writeJSON(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for i, err := range errs {
		if i < len(lines) && lines[i] > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", lines[i])
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
