package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/xforms/internal/engine"
	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Context  string
	Sets     []string // ref=value assignments applied before evaluating
	Language string
}

// EvalResult holds the value of an evaluated expression.
type EvalResult struct {
	Expr    string       `json:"expr"`
	Context ir.Reference `json:"context,omitempty"`
	Type    string       `json:"type"`
	Value   string       `json:"value"`
	Nodes   []string     `json:"nodes,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <form.cue> <expr>",
		Short: "Evaluate an XPath expression against a form",
		Long: `Load a form, optionally set values, and evaluate an XPath expression
against the settled document.

The context node defaults to the document element. Node-set results
print their string-value; --verbose lists the nodes.

Examples:
  xforms eval form.cue "sum(/data/rep/x)"
  xforms eval form.cue "../x * 2" --context "/data/rep[2]/double"
  xforms eval form.cue "/data/c" --set /data/a=5`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "reference of the context node")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "set a leaf before evaluating (ref=value, repeatable)")
	cmd.Flags().StringVar(&opts.Language, "lang", "", "active language")

	return cmd
}

func runEval(opts *EvalOptions, path, expr string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	form, _, err := loadCheckedForm(path)
	if err != nil {
		return err
	}
	assignments, err := parseAssignments(opts.Sets)
	if err != nil {
		return err
	}

	sess, err := engine.Load(ctx, form, engine.WithLogger(newLogger(opts.RootOptions, cmd)))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session", err)
	}
	if opts.Language != "" {
		if _, err := sess.SetActiveLanguage(ctx, opts.Language); err != nil {
			_ = formatter.Error(ErrCodeMutation, err.Error(), nil)
			return WrapExitError(ExitCommandError, "set language", err)
		}
	}
	for _, a := range assignments {
		if _, err := sess.SetValue(ctx, a.Ref, a.Value); err != nil {
			_ = formatter.Error(ErrCodeMutation, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("set %s", a.Ref), err)
		}
	}

	contextRef := ir.Reference(opts.Context)
	v, err := sess.Evaluate(expr, contextRef)
	if err != nil {
		_ = formatter.Error(ErrCodeEval, err.Error(), nil)
		if instance.IsStructuralError(err) {
			return WrapExitError(ExitCommandError, "bad context", err)
		}
		// An expression that does not parse or evaluate is a failed check
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}

	result := EvalResult{
		Expr:    expr,
		Context: contextRef,
		Type:    valueType(v),
		Value:   xpath.ToString(v),
	}
	if ns, ok := v.(xpath.NodeSet); ok {
		for _, n := range ns {
			result.Nodes = append(result.Nodes, nodeLabel(n))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, result.Value)
	if opts.Verbose {
		fmt.Fprintf(formatter.GetErrWriter(), "type: %s\n", result.Type)
		for _, n := range result.Nodes {
			fmt.Fprintf(formatter.GetErrWriter(), "  %s\n", n)
		}
	}
	return nil
}

// valueType names the XPath type of v.
func valueType(v xpath.Value) string {
	switch v.(type) {
	case xpath.NodeSet:
		return "node-set"
	case xpath.Number:
		return "number"
	case xpath.Boolean:
		return "boolean"
	}
	return "string"
}

// nodeLabel identifies a node in eval output: its reference when it is a
// node of the primary document, its name otherwise.
func nodeLabel(n xpath.Node) string {
	if in, ok := n.(*instance.Node); ok {
		return string(in.Ref())
	}
	return n.NodeName()
}

// Assignment is one --set ref=value flag.
type Assignment struct {
	Ref   ir.Reference
	Value string
}

// parseAssignments parses ref=value flags. The value may be empty or
// contain '='; the reference must parse.
func parseAssignments(flags []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(flags))
	for _, f := range flags {
		ref, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("%s: invalid --set %q: want ref=value", ErrCodeBadFlag, f))
		}
		parsed, err := ir.ParseReference(ref)
		if err != nil || parsed == "" {
			if err == nil {
				err = errors.New("empty reference")
			}
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: invalid --set %q", ErrCodeBadFlag, f), err)
		}
		out = append(out, Assignment{Ref: parsed, Value: value})
	}
	return out, nil
}
