package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/xforms/internal/compiler"
	"github.com/roach88/xforms/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds a compiled form and its content hash.
type CompilationResult struct {
	FormHash string      `json:"form_hash"`
	Form     *ir.FormDef `json:"form"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Nodes     int
	Repeats   int
	Binds     int
	Secondary int
	Languages int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <form.cue>",
		Short: "Compile a CUE form to its JSON definition",
		Long: `Compile a CUE form to the JSON form definition the engine loads.

The compiler parses the CUE file, checks it against the form schema and
prints the definition with its content hash. The hash identifies the form
in session journals; replay refuses a form whose hash differs.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	form, err := LoadForm(path)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	formatter.VerboseLog("Compiled form %q from %s", form.ID, path)

	hash, err := ir.FormHash(form)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	result := &CompilationResult{FormHash: hash, Form: form}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeFormToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
	}

	return outputCompileSuccess(formatter, result, calculateStats(form), opts.Output)
}

// calculateStats computes summary statistics from a compiled form.
func calculateStats(form *ir.FormDef) CompilationStats {
	stats := CompilationStats{
		Binds:     len(form.Binds),
		Secondary: len(form.Secondary),
		Languages: len(form.Languages),
	}
	var count func(n *ir.NodeDef)
	count = func(n *ir.NodeDef) {
		stats.Nodes++
		if n.Kind == ir.KindRepeat {
			stats.Repeats++
		}
		for i := range n.Children {
			count(&n.Children[i])
		}
	}
	count(&form.Root)
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled form %s\n\n", result.Form.ID)
	fmt.Fprintf(formatter.Writer, "  hash:      %s\n", result.FormHash)
	fmt.Fprintf(formatter.Writer, "  nodes:     %d (%d repeat(s))\n", stats.Nodes, stats.Repeats)
	fmt.Fprintf(formatter.Writer, "  binds:     %d\n", stats.Binds)
	fmt.Fprintf(formatter.Writer, "  secondary: %d\n", stats.Secondary)
	fmt.Fprintf(formatter.Writer, "  languages: %d\n", stats.Languages)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote form definition to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a compilation error.
// Compilation errors are command-level errors (exit code 2).
func outputCompileError(formatter *OutputFormatter, err error) error {
	code, message := parseCompileError(err)
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return ErrCodeLoadFailed, compileErr.Error()
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeFormToFile writes the compilation result as indented JSON.
func writeFormToFile(result *CompilationResult, filename string) error {
	// Use standard JSON with indentation for readability
	// (canonical JSON without indentation is used only for hashing)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling form: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
