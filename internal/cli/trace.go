package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	SessionID string
	Ref       string // optional - history of one node
}

// TraceEntry is one mutation of a session with the pass it caused. The
// load pass has seq 0 and kind "load".
type TraceEntry struct {
	Seq        int64             `json:"seq"`
	Kind       string            `json:"kind"`
	Ref        ir.Reference      `json:"ref,omitempty"`
	Value      string            `json:"value,omitempty"`
	Count      int               `json:"count,omitempty"`
	At         int               `json:"at,omitempty"`
	Affected   int               `json:"affected"`
	EvalErrors int               `json:"eval_errors"`
	Changes    []ir.NodeSnapshot `json:"changes,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  ir.SessionRecord   `json:"session"`
	Timeline []TraceEntry       `json:"timeline,omitempty"`
	History  []store.NodeChange `json:"history,omitempty"`
	Stats    TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Mutations  int `json:"mutations"`
	Passes     int `json:"passes"`
	Changes    int `json:"changes"`
	EvalErrors int `json:"eval_errors"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a session",
		Long: `Show what a journaled session did: each mutation with the pass it
caused and the nodes that pass changed.

Without --session, lists the journaled sessions. With --ref, shows every
state one node was reported in. References are positional: after a repeat
renumbers, a reference addresses whichever instance held that position.

Examples:
  xforms trace --db ./sessions.db
  xforms trace --db ./sessions.db --session 0190...
  xforms trace --db ./sessions.db --session 0190... --ref /data/total
  xforms trace --db ./sessions.db --session 0190... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session to trace")
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "show the history of one node")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.SessionID == "" {
		if opts.Ref != "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: --ref requires --session", ErrCodeBadFlag))
		}
		return listSessions(ctx, opts, st, cmd)
	}

	rec, err := st.ReadSession(ctx, opts.SessionID)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("session %s", opts.SessionID), err)
	}
	mutations, err := st.ReadMutations(ctx, rec.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read mutations", err)
	}
	passes, err := st.ReadPasses(ctx, rec.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read passes", err)
	}

	result := TraceResult{Session: rec, Stats: TraceStats{Mutations: len(mutations), Passes: len(passes)}}
	for _, p := range passes {
		result.Stats.Changes += len(p.Changes)
		result.Stats.EvalErrors += p.EvalErrors
	}

	if opts.Ref != "" {
		ref, err := ir.ParseReference(opts.Ref)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("%s: invalid --ref", ErrCodeBadFlag), err)
		}
		result.History, err = st.NodeHistory(ctx, rec.ID, ref)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read node history", err)
		}
	} else {
		result.Timeline = buildTimeline(mutations, passes)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, SessionID: rec.ID})
	}
	outputTraceText(cmd, result, opts.Ref, opts.Verbose)
	return nil
}

// buildTimeline pairs each pass with the mutation of the same seq.
func buildTimeline(mutations []ir.MutationRecord, passes []ir.PassRecord) []TraceEntry {
	bySeq := make(map[int64]ir.MutationRecord, len(mutations))
	for _, m := range mutations {
		bySeq[m.Seq] = m
	}

	timeline := make([]TraceEntry, 0, len(passes))
	for _, p := range passes {
		entry := TraceEntry{
			Seq:        p.Seq,
			Kind:       "load",
			Affected:   p.Affected,
			EvalErrors: p.EvalErrors,
			Changes:    p.Changes,
		}
		if m, ok := bySeq[p.Seq]; ok {
			entry.Kind = string(m.Kind)
			entry.Ref = m.Ref
			entry.Value = m.Value
			entry.Count = m.Count
			entry.At = m.At
		}
		timeline = append(timeline, entry)
	}
	return timeline
}

func listSessions(ctx context.Context, opts *TraceOptions, st *store.Store, cmd *cobra.Command) error {
	records, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: records})
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(w, "%s  form=%s", rec.ID, rec.FormID)
		if rec.Language != "" {
			fmt.Fprintf(w, " language=%q", rec.Language)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, ref string, verbose bool) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Session: %s (form %s)\n", result.Session.ID, result.Session.FormID)
	if verbose {
		fmt.Fprintf(w, "Form hash: %s\n", result.Session.FormHash)
	}
	fmt.Fprintln(w)

	if ref != "" {
		fmt.Fprintf(w, "History of %s:\n", ref)
		if len(result.History) == 0 {
			fmt.Fprintln(w, "  (never reported)")
		}
		for _, c := range result.History {
			fmt.Fprintf(w, "  [seq %d] %s\n", c.Seq, formatNode(c.Snapshot))
		}
		return
	}

	fmt.Fprintln(w, "Timeline:")
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  [seq %d] %s", e.Seq, e.Kind)
		switch ir.MutationKind(e.Kind) {
		case ir.MutationSetValue:
			fmt.Fprintf(w, " %s = %q", e.Ref, e.Value)
		case ir.MutationAddRepeat:
			fmt.Fprintf(w, " %s ×%d", e.Ref, e.Count)
			if e.At > 0 {
				fmt.Fprintf(w, " at %d", e.At)
			}
		case ir.MutationRemoveRepeat:
			fmt.Fprintf(w, " %s", e.Ref)
		case ir.MutationSetLanguage:
			fmt.Fprintf(w, " %q", e.Value)
		}
		fmt.Fprintf(w, " → evaluated %d, changed %d\n", e.Affected, len(e.Changes))
		if verbose {
			for _, c := range e.Changes {
				fmt.Fprintf(w, "      %-28s %s\n", c.Ref, formatNode(c))
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Stats:")
	fmt.Fprintf(w, "  Mutations: %d\n", result.Stats.Mutations)
	fmt.Fprintf(w, "  Passes: %d\n", result.Stats.Passes)
	fmt.Fprintf(w, "  Changes: %d\n", result.Stats.Changes)
	if result.Stats.EvalErrors > 0 {
		fmt.Fprintf(w, "  Evaluation errors: %d\n", result.Stats.EvalErrors)
	}
}
