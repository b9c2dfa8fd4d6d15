package engine

import (
	"context"

	"github.com/roach88/xforms/internal/ir"
)

// Journal receives a session's audit trail: the session header, every
// mutation, and the outcome of every pass. internal/store implements it on
// SQLite; Replay consumes the mutations it recorded.
//
// Failures are logged by the session and never roll back a settled pass.
type Journal interface {
	RecordSession(ctx context.Context, rec ir.SessionRecord) error
	RecordMutation(ctx context.Context, rec ir.MutationRecord) error
	RecordPass(ctx context.Context, rec ir.PassRecord) error
}

// MemoryJournal keeps records in memory. Tests and the harness use it.
type MemoryJournal struct {
	Sessions  []ir.SessionRecord
	Mutations []ir.MutationRecord
	Passes    []ir.PassRecord
}

func (j *MemoryJournal) RecordSession(_ context.Context, rec ir.SessionRecord) error {
	j.Sessions = append(j.Sessions, rec)
	return nil
}

func (j *MemoryJournal) RecordMutation(_ context.Context, rec ir.MutationRecord) error {
	j.Mutations = append(j.Mutations, rec)
	return nil
}

func (j *MemoryJournal) RecordPass(_ context.Context, rec ir.PassRecord) error {
	j.Passes = append(j.Passes, rec)
	return nil
}

type nopJournal struct{}

func (nopJournal) RecordSession(context.Context, ir.SessionRecord) error   { return nil }
func (nopJournal) RecordMutation(context.Context, ir.MutationRecord) error { return nil }
func (nopJournal) RecordPass(context.Context, ir.PassRecord) error         { return nil }
