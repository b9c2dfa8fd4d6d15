package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/xforms/internal/engine"
	"github.com/roach88/xforms/internal/ir"
)

// ReplayReport compares a journaled session with its replay.
type ReplayReport struct {
	SessionID    string       `json:"session_id"`
	Mutations    int          `json:"mutations"`
	Passes       int          `json:"passes"`
	SnapshotHash string       `json:"snapshot_hash"`
	Divergences  []Divergence `json:"divergences,omitempty"`
}

// Identical reports whether every replayed pass matched its record.
func (r *ReplayReport) Identical() bool { return len(r.Divergences) == 0 }

// Divergence is a pass whose replay differs from the journal.
type Divergence struct {
	Seq  int64  `json:"seq"`
	Diff string `json:"diff"`
}

// ReplaySession rebuilds session id from the journal and checks that each
// replayed pass reports the same changes the recorded pass did.
//
// The replay journals into memory, never into the store. The returned
// session holds the final state.
func (s *Store) ReplaySession(ctx context.Context, form *ir.FormDef, id string, opts ...engine.SessionOption) (*engine.Session, *ReplayReport, error) {
	rec, err := s.ReadSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	mutations, err := s.ReadMutations(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: %w", id, err)
	}
	recorded, err := s.ReadPasses(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: %w", id, err)
	}

	mem := &engine.MemoryJournal{}
	opts = append(slices.Clone(opts), engine.WithJournal(mem))
	session, err := engine.Replay(ctx, form, rec, mutations, opts...)
	if err != nil {
		return nil, nil, err
	}

	hash, err := ir.SnapshotHash(session.Snapshot())
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: %w", id, err)
	}
	report := &ReplayReport{
		SessionID:    id,
		Mutations:    len(mutations),
		Passes:       len(mem.Passes),
		SnapshotHash: hash,
		Divergences:  comparePasses(recorded, mem.Passes),
	}
	return session, report, nil
}

// comparePasses pairs passes by seq. A pass present on only one side is a
// divergence too.
func comparePasses(recorded, replayed []ir.PassRecord) []Divergence {
	bySeq := make(map[int64]ir.PassRecord, len(replayed))
	for _, p := range replayed {
		bySeq[p.Seq] = p
	}

	var out []Divergence
	for _, want := range recorded {
		got, ok := bySeq[want.Seq]
		if !ok {
			out = append(out, Divergence{Seq: want.Seq, Diff: "pass missing from replay"})
			continue
		}
		delete(bySeq, want.Seq)
		if diff := cmp.Diff(normalizePass(want), normalizePass(got)); diff != "" {
			out = append(out, Divergence{Seq: want.Seq, Diff: diff})
		}
	}
	for _, p := range replayed {
		if _, extra := bySeq[p.Seq]; extra {
			out = append(out, Divergence{Seq: p.Seq, Diff: "pass missing from journal"})
		}
	}
	return out
}

// normalizePass drops the fields storage does not round-trip exactly: an
// empty change list reads back as nil.
func normalizePass(p ir.PassRecord) ir.PassRecord {
	if len(p.Changes) == 0 {
		p.Changes = nil
	}
	return p
}
