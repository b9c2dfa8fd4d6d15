package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/xforms/internal/engine"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	Form      string
	SessionID string // optional - specific session only
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	SessionID    string             `json:"session_id"`
	Mutations    int                `json:"mutations"`
	Passes       int                `json:"passes"`
	SnapshotHash string             `json:"snapshot_hash"`
	Identical    bool               `json:"identical"`
	Divergences  []store.Divergence `json:"divergences,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions     []ReplaySessionResult `json:"sessions"`
	Total        int                   `json:"total"`
	Skipped      int                   `json:"skipped"`
	AllIdentical bool                  `json:"all_identical"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled sessions and verify they settle identically",
		Long: `Replay journaled sessions against a form and compare every replayed
pass with the recorded one.

Without --session, every session recorded for the form is replayed;
sessions of other forms are skipped.

Exit codes:
  0 - Every replayed session is identical to its journal
  1 - At least one session diverged
  2 - Command error (database not found, form changed, etc.)

Examples:
  xforms replay --db ./sessions.db --form form.cue
  xforms replay --db ./sessions.db --form form.cue --session 0190...
  xforms replay --db ./sessions.db --form form.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Form, "form", "", "path to the form the sessions ran (required)")
	_ = cmd.MarkFlagRequired("form")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	form, _, err := loadCheckedForm(opts.Form)
	if err != nil {
		return err
	}
	hash, err := ir.FormHash(form)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash form", err)
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	// Get sessions to process
	var records []ir.SessionRecord
	if opts.SessionID != "" {
		rec, err := st.ReadSession(ctx, opts.SessionID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("session %s", opts.SessionID), err)
		}
		records = []ir.SessionRecord{rec}
	} else {
		records, err = st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	result := ReplayResult{Sessions: []ReplaySessionResult{}, AllIdentical: true}
	for _, rec := range records {
		if opts.SessionID == "" && rec.FormHash != hash {
			formatter.VerboseLog("Skipping session %s: form %s", rec.ID, rec.FormID)
			result.Skipped++
			continue
		}
		_, report, err := st.ReplaySession(ctx, form, rec.ID, engine.WithLogger(logger))
		if err != nil {
			_ = formatter.Error(ErrCodeReplay, err.Error(), map[string]string{"session_id": rec.ID})
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", rec.ID), err)
		}
		sr := ReplaySessionResult{
			SessionID:    report.SessionID,
			Mutations:    report.Mutations,
			Passes:       report.Passes,
			SnapshotHash: report.SnapshotHash,
			Identical:    report.Identical(),
			Divergences:  report.Divergences,
		}
		result.Sessions = append(result.Sessions, sr)
		result.Total++
		if !sr.Identical {
			result.AllIdentical = false
		}
	}

	// Output results
	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// openExisting opens a journal database that must already exist. Opening
// a missing path would silently create an empty journal.
func openExisting(path string) (*store.Store, error) {
	if err := requireFile(path); err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllIdentical {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DIVERGED",
			Message: "replay diverged from the journal",
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.AllIdentical {
		// Divergence = exit code 1
		return NewExitError(ExitFailure, "replay diverged from the journal")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Total == 0 {
		fmt.Fprintln(w, "No sessions found for this form.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.Total)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Identical {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Session: %s\n", status, s.SessionID)
		fmt.Fprintf(w, "  Mutations: %d, passes: %d\n", s.Mutations, s.Passes)
		if verbose {
			fmt.Fprintf(w, "  Snapshot: %s\n", s.SnapshotHash)
		}

		for _, d := range s.Divergences {
			fmt.Fprintf(w, "  Diverged at seq %d:\n%s\n", d.Seq, d.Diff)
		}
		fmt.Fprintln(w)
	}

	if result.AllIdentical {
		fmt.Fprintln(w, "✓ All sessions replay identically")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	// Divergence = exit code 1
	return NewExitError(ExitFailure, "replay diverged from the journal")
}
