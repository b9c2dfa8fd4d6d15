package engine

// # Replay
//
// A session is a pure function of its form and its mutation journal:
// evaluation reads nothing but the document, secondary instances and the
// active language, and seq numbers come from the logical clock. Replay
// therefore runs the ordinary mutation path; there is no replay mode.
//
// ## Replay Flow
//
//	[SessionRecord] → check form hash → Load (same id and language)
//	                                      ↓
//	                           [MutationRecord seq 1..n]
//	                                      ↓
//	                           Apply → settle → compare seq
//
// The final snapshot, and its ir.SnapshotHash, equal those of the recorded
// session.

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/xforms/internal/ir"
)

// Replay rebuilds the session rec describes by loading form and applying
// mutations in seq order.
//
// It fails with FORM_MISMATCH when form does not hash to rec.FormHash and
// with INVALID_MUTATION when the journal skips a seq number or a mutation
// no longer applies.
func Replay(ctx context.Context, form *ir.FormDef, rec ir.SessionRecord, mutations []ir.MutationRecord, opts ...SessionOption) (*Session, error) {
	hash, err := ir.FormHash(form)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", rec.ID, err)
	}
	if hash != rec.FormHash {
		return nil, NewFormMismatchError(rec.ID, rec.FormHash, hash)
	}

	opts = append(slices.Clone(opts), WithIDGenerator(NewFixedGenerator(rec.ID)))
	if rec.Language != "" {
		if _, ok := form.Language(rec.Language); !ok {
			return nil, NewUnknownLanguageError(rec.ID, rec.Language, form.LanguageNames())
		}
		opts = append(opts, withLanguage(rec.Language))
	}
	s, err := Load(ctx, form, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", rec.ID, err)
	}

	ordered := slices.Clone(mutations)
	slices.SortStableFunc(ordered, func(a, b ir.MutationRecord) int {
		return int(a.Seq - b.Seq)
	})
	for _, m := range ordered {
		res, err := s.Apply(ctx, m)
		if err != nil {
			return nil, &RuntimeError{
				Code:      ErrCodeInvalidMutation,
				Message:   fmt.Sprintf("mutation %d (%s) failed: %v", m.Seq, m.Kind, err),
				SessionID: rec.ID,
				Ref:       m.Ref,
			}
		}
		if res.Seq != m.Seq {
			return nil, &RuntimeError{
				Code:      ErrCodeInvalidMutation,
				Message:   fmt.Sprintf("journal seq %d replayed as %d", m.Seq, res.Seq),
				SessionID: rec.ID,
				Ref:       m.Ref,
			}
		}
	}
	s.logger.Info("session replayed", "session", rec.ID, "mutations", len(ordered), "seq", s.Seq())
	return s, nil
}
