package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/compiler"
	"github.com/roach88/xforms/internal/engine"
	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/testutil"
)

// ErrCodeInvalidForm is the error code of a form that fails to compile or
// validate.
const ErrCodeInvalidForm = "INVALID_FORM"

// InvalidFormError collects the validation errors of a form.
type InvalidFormError struct {
	Path   string
	Errors []compiler.ValidationError
}

// Error implements the error interface.
func (e *InvalidFormError) Error() string {
	return fmt.Sprintf("%s: %s: %d validation errors, first: %s",
		ErrCodeInvalidForm, e.Path, len(e.Errors), e.Errors[0].Error())
}

// Harness is the test execution engine.
// It drives one session with a fixed session id and an in-memory journal.
type Harness struct {
	form    *ir.FormDef
	session *engine.Session
	journal *engine.MemoryJournal
	ids     *testutil.FixedSessionGenerator
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Compile and validate the form
// 2. Load a session, recording the initial pass
// 3. Check initial expectations
// 4. Apply steps, checking each step's expectations
// 5. Replay the journal and compare final snapshot hashes
//
// Failed expectations are reported in the result; the returned error is
// reserved for scenarios that cannot run at all, such as a form that
// fails to load when no load error is expected.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	ids := testutil.NewFixedSessionGenerator(scenario.SessionID)
	result := NewResult(ids.Generate())

	h := &Harness{
		ids:     ids,
		journal: &engine.MemoryJournal{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	err := h.load(ctx, scenario)

	if scenario.ExpectLoadError != "" {
		switch got := ErrorCode(err); {
		case err == nil:
			result.AddErrorf("load: expected error %s, form loaded", scenario.ExpectLoadError)
		case got != scenario.ExpectLoadError:
			result.AddErrorf("load: expected error %s, got %s (%v)", scenario.ExpectLoadError, got, err)
		default:
			result.Trace = append(result.Trace, TraceEvent{Op: OpLoad, Error: got})
		}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form %s: %w", scenario.Form, err)
	}

	initial := h.journal.Passes[0]
	result.Trace = append(result.Trace, TraceEvent{
		Op:         OpLoad,
		Evaluated:  initial.Affected,
		EvalErrors: initial.EvalErrors,
		Changes:    initial.Changes,
	})
	h.checkExpects(result, "initial", scenario.Initial)

	for i := range scenario.Steps {
		h.runStep(ctx, i+1, &scenario.Steps[i], result)
	}

	hash, err := ir.SnapshotHash(h.session.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to hash final snapshot: %w", err)
	}
	result.SnapshotHash = hash

	if err := h.verifyReplay(ctx, hash); err != nil {
		result.AddError(err.Error())
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"steps", len(scenario.Steps),
		"pass", result.Pass,
	)
	return result, nil
}

// load compiles, validates and loads the scenario's form.
func (h *Harness) load(ctx context.Context, scenario *Scenario) error {
	form, err := compiler.LoadFormFile(scenario.Form)
	if err != nil {
		return err
	}
	if errs := compiler.Validate(form); len(errs) > 0 {
		return &InvalidFormError{Path: scenario.Form, Errors: errs}
	}
	sess, err := engine.Load(ctx, form,
		engine.WithIDGenerator(h.ids),
		engine.WithJournal(h.journal),
		engine.WithLogger(h.logger),
		engine.WithPreferredLanguages(scenario.Languages...),
	)
	if err != nil {
		return err
	}
	h.form = form
	h.session = sess
	return nil
}

// runStep applies one step, traces it and checks its expectations.
func (h *Harness) runStep(ctx context.Context, n int, step *Step, result *Result) {
	label := fmt.Sprintf("steps[%d]", n-1)
	event := TraceEvent{Step: n, Op: step.Op()}

	var res engine.PassResult
	var err error
	switch event.Op {
	case OpSet:
		event.Ref = step.Set.Ref
		res, err = h.session.SetValue(ctx, step.Set.Ref, step.Set.Value)
	case OpAddRepeat:
		event.Ref = step.AddRepeat.Ref
		res, err = h.session.AddRepeatInstancesAt(ctx, step.AddRepeat.Ref, step.AddRepeat.Count, step.AddRepeat.At)
	case OpRemoveRepeat:
		event.Ref = step.RemoveRepeat
		res, err = h.session.RemoveRepeatInstance(ctx, step.RemoveRepeat)
	case OpLanguage:
		res, err = h.session.SetActiveLanguage(ctx, step.Language)
	default:
		result.AddErrorf("%s: no operation", label)
		return
	}

	if err != nil {
		event.Error = ErrorCode(err)
		result.Trace = append(result.Trace, event)
		if step.ExpectError == "" {
			result.AddErrorf("%s: %s %s: unexpected error: %v", label, event.Op, event.Ref, err)
		} else if event.Error != step.ExpectError {
			result.AddErrorf("%s: expected error %s, got %s", label, step.ExpectError, event.Error)
		}
		return
	}

	event.Seq = res.Seq
	event.Evaluated = res.Evaluated
	event.EvalErrors = res.EvalErrors
	event.Changes = res.Changes
	event.Removed = res.Removed
	result.Trace = append(result.Trace, event)

	if step.ExpectError != "" {
		result.AddErrorf("%s: expected error %s, mutation succeeded", label, step.ExpectError)
		return
	}
	h.checkExpects(result, label, step.Expect)

	h.logger.Debug("step applied", "step", n, "op", event.Op, "seq", res.Seq)
}

// verifyReplay rebuilds the session from its journal and compares the
// final snapshot hash against want.
func (h *Harness) verifyReplay(ctx context.Context, want string) error {
	replayed, err := engine.Replay(ctx, h.form, h.journal.Sessions[0], h.journal.Mutations,
		engine.WithLogger(h.logger))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	got, err := ir.SnapshotHash(replayed.Snapshot())
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if got != want {
		return fmt.Errorf("replay: final snapshot hash %s, want %s", got, want)
	}
	return nil
}

// ErrorCode returns the code an error reports, as scenarios name it:
// runtime and structural codes, CYCLE_DETECTED, INVALID_BIND or
// INVALID_FORM. Errors without a code map to "ERROR"; nil maps to "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var (
		re  *engine.RuntimeError
		se  *instance.StructuralError
		ce  *bind.CycleError
		be  *bind.RegistrationError
		fe  *InvalidFormError
		cpe *compiler.CompileError
	)
	switch {
	case errors.As(err, &re):
		return string(re.Code)
	case errors.As(err, &se):
		return string(se.Code)
	case errors.As(err, &ce):
		return string(bind.ErrCodeCycleDetected)
	case errors.As(err, &be):
		return string(bind.ErrCodeInvalidBind)
	case errors.As(err, &fe), errors.As(err, &cpe):
		return ErrCodeInvalidForm
	}
	return "ERROR"
}
