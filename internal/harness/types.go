package harness

import (
	"fmt"

	"github.com/roach88/xforms/internal/ir"
)

// TraceEvent is one settled pass of a scenario run, or one rejected
// mutation. Step is 0 for the load, i for the scenario's i-th step.
type TraceEvent struct {
	Step       int               `json:"step"`
	Op         string            `json:"op"`
	Ref        ir.Reference      `json:"ref,omitempty"`
	Seq        int64             `json:"seq"`
	Evaluated  int               `json:"evaluated"`
	EvalErrors int               `json:"eval_errors"`
	Changes    []ir.NodeSnapshot `json:"changes,omitempty"`
	Removed    []ir.Reference    `json:"removed,omitempty"`

	// Error is the code of a rejected mutation; the event then carries no
	// pass.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expectations match.
	Pass bool `json:"pass"`

	// SessionID is the id the session ran under.
	SessionID string `json:"session_id"`

	// Trace contains one event per pass or rejected mutation, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// SnapshotHash is the hash of the final document state. Empty when
	// the form failed to load.
	SnapshotHash string `json:"snapshot_hash,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(sessionID string) *Result {
	return &Result{
		Pass:      true,
		SessionID: sessionID,
		Trace:     []TraceEvent{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddErrorf is AddError with formatting.
func (r *Result) AddErrorf(format string, args ...any) {
	r.AddError(fmt.Sprintf(format, args...))
}
