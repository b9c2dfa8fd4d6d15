package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
)

// ExpectError is returned when a node expectation fails.
// It includes detailed context to help debug the failure.
type ExpectError struct {
	Where    string       // "initial" or "steps[i]"
	Ref      ir.Reference // Node the expectation addresses
	Field    string       // Property that differs
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
}

// Error implements the error interface.
func (e *ExpectError) Error() string {
	return fmt.Sprintf("%s: %s %s: expected %s, got %s", e.Where, e.Ref, e.Field, e.Expected, e.Actual)
}

// checkExpects evaluates expects against the session's current state and
// records every failure in result. References are checked in sorted order
// so failure output is deterministic.
func (h *Harness) checkExpects(result *Result, where string, expects map[ir.Reference]NodeExpect) {
	refs := make([]ir.Reference, 0, len(expects))
	for ref := range expects {
		refs = append(refs, ref)
	}
	slices.Sort(refs)

	for _, ref := range refs {
		snap, err := h.session.Read(ref)
		for _, e := range CheckNode(where, ref, expects[ref], snap, err) {
			result.AddError(e.Error())
		}
	}
}

// CheckNode compares one node read against an expectation. readErr is the
// error the read returned; a NOT_FOUND error satisfies an absent
// expectation and fails every other one.
func CheckNode(where string, ref ir.Reference, want NodeExpect, got ir.NodeSnapshot, readErr error) []*ExpectError {
	fail := func(field, expected, actual string) *ExpectError {
		return &ExpectError{Where: where, Ref: ref, Field: field, Expected: expected, Actual: actual}
	}

	if readErr != nil {
		if want.Absent && instance.IsNotFound(readErr) {
			return nil
		}
		return []*ExpectError{fail("node", "present", readErr.Error())}
	}
	if want.Absent {
		return []*ExpectError{fail("node", "absent", "present")}
	}

	var errs []*ExpectError
	checkString := func(field string, want *string, got string) {
		if want != nil && *want != got {
			errs = append(errs, fail(field, fmt.Sprintf("%q", *want), fmt.Sprintf("%q", got)))
		}
	}
	checkBool := func(field string, want *bool, got bool) {
		if want != nil && *want != got {
			errs = append(errs, fail(field, fmt.Sprint(*want), fmt.Sprint(got)))
		}
	}
	checkString("value", want.Value, got.Value)
	checkBool("relevant", want.Relevant, got.Relevant)
	checkBool("readonly", want.Readonly, got.Readonly)
	checkBool("required", want.Required, got.Required)
	checkBool("valid", want.Valid, got.Valid)
	checkString("label", want.Label, got.Label)
	checkString("hint", want.Hint, got.Hint)
	return errs
}

// FormatTrace renders a trace one event per line, for failure output.
func FormatTrace(trace []TraceEvent) string {
	var buf strings.Builder
	for _, ev := range trace {
		fmt.Fprintf(&buf, "[%d] %s", ev.Step, ev.Op)
		if ev.Ref != "" {
			fmt.Fprintf(&buf, " %s", ev.Ref)
		}
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s\n", ev.Error)
			continue
		}
		fmt.Fprintf(&buf, " seq=%d evaluated=%d changed=%d", ev.Seq, ev.Evaluated, len(ev.Changes))
		if len(ev.Removed) > 0 {
			fmt.Fprintf(&buf, " removed=%d", len(ev.Removed))
		}
		if ev.EvalErrors > 0 {
			fmt.Fprintf(&buf, " eval_errors=%d", ev.EvalErrors)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
