package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/xforms/internal/engine"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Sets     []string // ref=value
	Adds     []string // repeat refs
	Removes  []string // instance refs
	Language string

	// IDGenerator allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// RunResult holds the final state of a run.
type RunResult struct {
	SessionID    string            `json:"session_id"`
	FormID       string            `json:"form_id"`
	Language     string            `json:"language,omitempty"`
	Seq          int64             `json:"seq"`
	EvalErrors   int               `json:"eval_errors"`
	SnapshotHash string            `json:"snapshot_hash"`
	Nodes        []ir.NodeSnapshot `json:"nodes"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <form.cue>",
		Short: "Run a form session and print its final state",
		Long: `Load a form, apply mutations and print every node's final state.

Mutations are applied in this order: --lang, then each --add, then each
--set, then each --remove. Adding first lets --set target new instances.
With --db the session is journaled to SQLite (created if missing) and can
be replayed later with the replay command.

Example:
  xforms run form.cue --set /data/a=3
  xforms run form.cue --db ./sessions.db --add /data/rep --set "/data/rep[3]/x=4"
  xforms run form.cue --lang "Français (fr)" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "set a leaf value (ref=value, repeatable)")
	cmd.Flags().StringArrayVar(&opts.Adds, "add", nil, "append one instance to a repeat (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Removes, "remove", nil, "remove a repeat instance, e.g. /data/rep[2] (repeatable)")
	cmd.Flags().StringVar(&opts.Language, "lang", "", "switch the active language")

	return cmd
}

func runSession(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)
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
	adds, err := parseRefs("--add", opts.Adds)
	if err != nil {
		return err
	}
	removes, err := parseRefs("--remove", opts.Removes)
	if err != nil {
		return err
	}

	ids := opts.IDGenerator
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	sessionOpts := []engine.SessionOption{
		engine.WithLogger(logger),
		engine.WithIDGenerator(ids),
	}

	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		sessionOpts = append(sessionOpts, engine.WithJournal(st))
	}

	sess, err := engine.Load(ctx, form, sessionOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session", err)
	}

	evalErrors := 0
	apply := func(what string, fn func() (engine.PassResult, error)) error {
		res, err := fn()
		if err != nil {
			_ = formatter.Error(ErrCodeMutation, err.Error(), map[string]any{"mutation": what})
			return WrapExitError(ExitFailure, fmt.Sprintf("mutation %s rejected", what), err)
		}
		evalErrors += res.EvalErrors
		formatter.VerboseLog("seq %d: %s (evaluated %d, changed %d)", res.Seq, what, res.Evaluated, len(res.Changes))
		return nil
	}

	if opts.Language != "" {
		if err := apply("lang "+opts.Language, func() (engine.PassResult, error) {
			return sess.SetActiveLanguage(ctx, opts.Language)
		}); err != nil {
			return err
		}
	}
	for _, ref := range adds {
		if err := apply("add "+string(ref), func() (engine.PassResult, error) {
			return sess.AddRepeatInstances(ctx, ref, 1)
		}); err != nil {
			return err
		}
	}
	for _, a := range assignments {
		if err := apply("set "+string(a.Ref), func() (engine.PassResult, error) {
			return sess.SetValue(ctx, a.Ref, a.Value)
		}); err != nil {
			return err
		}
	}
	for _, ref := range removes {
		if err := apply("remove "+string(ref), func() (engine.PassResult, error) {
			return sess.RemoveRepeatInstance(ctx, ref)
		}); err != nil {
			return err
		}
	}

	nodes := sess.Snapshot()
	hash, err := ir.SnapshotHash(nodes)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash snapshot", err)
	}
	result := RunResult{
		SessionID:    sess.ID(),
		FormID:       form.ID,
		Language:     sess.ActiveLanguage(),
		Seq:          sess.Seq(),
		EvalErrors:   evalErrors,
		SnapshotHash: hash,
		Nodes:        nodes,
	}
	logger.Debug("run finished", slog.String("session", result.SessionID), slog.Int64("seq", result.Seq))

	if formatter.Format == "json" {
		return writeJSON(formatter.Writer, CLIResponse{Status: "ok", Data: result, SessionID: result.SessionID})
	}
	outputRunText(formatter, result)
	return nil
}

func outputRunText(formatter *OutputFormatter, r RunResult) {
	w := formatter.Writer
	fmt.Fprintf(w, "Session %s (form %s, seq %d)\n", r.SessionID, r.FormID, r.Seq)
	if r.Language != "" {
		fmt.Fprintf(w, "Language: %s\n", r.Language)
	}
	fmt.Fprintln(w)
	for _, n := range r.Nodes {
		fmt.Fprintf(w, "  %-32s %s\n", n.Ref, formatNode(n))
	}
	fmt.Fprintln(w)
	if r.EvalErrors > 0 {
		fmt.Fprintf(w, "Evaluation errors: %d (see log)\n", r.EvalErrors)
	}
	fmt.Fprintf(w, "Snapshot: %s\n", r.SnapshotHash)
}

// formatNode renders a node's value and flags on one line, listing only
// the flags that differ from a plain editable node.
func formatNode(n ir.NodeSnapshot) string {
	s := n.Kind
	if n.Kind == "leaf" {
		s = fmt.Sprintf("%q", n.Value)
	}
	if !n.Relevant {
		s += " [non-relevant]"
	}
	if n.Readonly {
		s += " [readonly]"
	}
	if n.Required {
		s += " [required]"
	}
	if !n.Valid {
		s += " [invalid]"
	}
	if n.Label != "" {
		s += fmt.Sprintf(" label=%q", n.Label)
	}
	if n.Hint != "" {
		s += fmt.Sprintf(" hint=%q", n.Hint)
	}
	return s
}

// parseRefs parses reference flags.
func parseRefs(flag string, values []string) ([]ir.Reference, error) {
	out := make([]ir.Reference, 0, len(values))
	for _, v := range values {
		ref, err := ir.ParseReference(v)
		if err != nil || ref == "" {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("%s: invalid %s %q", ErrCodeBadFlag, flag, v))
		}
		out = append(out, ref)
	}
	return out, nil
}
