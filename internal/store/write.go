package store

import (
	"context"
	"fmt"

	"github.com/roach88/xforms/internal/ir"
)

// RecordSession inserts a session header.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a replay journaling
// into the same store keeps the original header.
func (s *Store) RecordSession(ctx context.Context, rec ir.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, form_id, form_hash, language)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.FormID,
		rec.FormHash,
		rec.Language,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// RecordMutation inserts a mutation record.
// Uses ON CONFLICT DO NOTHING for idempotency - duplicate (session, seq)
// pairs are silently ignored.
//
// Note: The session referenced by SessionID must exist (foreign key constraint).
func (s *Store) RecordMutation(ctx context.Context, rec ir.MutationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutations (session_id, seq, kind, ref, value, repeat_count, insert_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		rec.SessionID,
		rec.Seq,
		string(rec.Kind),
		string(rec.Ref),
		rec.Value,
		rec.Count,
		rec.At,
	)
	if err != nil {
		return fmt.Errorf("record mutation %d: %w", rec.Seq, err)
	}
	return nil
}

// RecordPass inserts a pass and its node changes in one transaction.
// A pass that is already recorded is left untouched, changes included.
func (s *Store) RecordPass(ctx context.Context, rec ir.PassRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record pass %d: begin tx: %w", rec.Seq, err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO passes (session_id, seq, affected, eval_errors)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		rec.SessionID,
		rec.Seq,
		rec.Affected,
		rec.EvalErrors,
	)
	if err != nil {
		return fmt.Errorf("record pass %d: %w", rec.Seq, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record pass %d: rows affected: %w", rec.Seq, err)
	}
	if rows == 0 {
		return nil
	}

	for i, snap := range rec.Changes {
		data, err := marshalSnapshot(snap)
		if err != nil {
			return fmt.Errorf("record pass %d: %w", rec.Seq, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO node_changes (session_id, seq, ord, ref, snapshot)
			VALUES (?, ?, ?, ?, ?)
		`,
			rec.SessionID,
			rec.Seq,
			i,
			string(snap.Ref),
			data,
		)
		if err != nil {
			return fmt.Errorf("record pass %d: change %s: %w", rec.Seq, snap.Ref, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record pass %d: commit: %w", rec.Seq, err)
	}
	return nil
}
