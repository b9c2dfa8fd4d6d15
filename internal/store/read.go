package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/xforms/internal/ir"
)

// ReadSession retrieves a session header by id.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (ir.SessionRecord, error) {
	var rec ir.SessionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, form_id, form_hash, language
		FROM sessions
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.FormID, &rec.FormHash, &rec.Language)
	if err != nil {
		return ir.SessionRecord{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns every session header ordered by id COLLATE BINARY.
// Session ids are UUIDv7, so this is also creation order.
//
// Returns an empty slice (not nil) if the store holds no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]ir.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, form_hash, language
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ir.SessionRecord{}
	for rows.Next() {
		var rec ir.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.FormID, &rec.FormHash, &rec.Language); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadMutations returns a session's mutations ordered by seq.
//
// Returns an empty slice (not nil) if the session has no mutations.
func (s *Store) ReadMutations(ctx context.Context, sessionID string) ([]ir.MutationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, ref, value, repeat_count, insert_at
		FROM mutations
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	mutations := []ir.MutationRecord{}
	for rows.Next() {
		var (
			m    ir.MutationRecord
			kind string
			ref  string
		)
		if err := rows.Scan(&m.SessionID, &m.Seq, &kind, &ref, &m.Value, &m.Count, &m.At); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		m.Kind = ir.MutationKind(kind)
		m.Ref = ir.Reference(ref)
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return mutations, nil
}

// ReadPasses returns a session's passes ordered by seq, each with its node
// changes in document order.
//
// Returns an empty slice (not nil) if the session has no passes.
func (s *Store) ReadPasses(ctx context.Context, sessionID string) ([]ir.PassRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, affected, eval_errors
		FROM passes
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	passes := []ir.PassRecord{}
	index := make(map[int64]int)
	for rows.Next() {
		var p ir.PassRecord
		if err := rows.Scan(&p.SessionID, &p.Seq, &p.Affected, &p.EvalErrors); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		index[p.Seq] = len(passes)
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	rows.Close()

	changes, err := s.db.QueryContext(ctx, `
		SELECT seq, snapshot
		FROM node_changes
		WHERE session_id = ?
		ORDER BY seq ASC, ord ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query node changes: %w", err)
	}
	defer changes.Close()

	for changes.Next() {
		var (
			seq  int64
			data string
		)
		if err := changes.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scan node change: %w", err)
		}
		snap, err := unmarshalSnapshot(data)
		if err != nil {
			return nil, fmt.Errorf("pass %d: %w", seq, err)
		}
		i, ok := index[seq]
		if !ok {
			return nil, fmt.Errorf("node change for unknown pass %d", seq)
		}
		passes[i].Changes = append(passes[i].Changes, snap)
	}
	if err := changes.Err(); err != nil {
		return nil, fmt.Errorf("iterate node changes: %w", err)
	}
	return passes, nil
}

// NodeChange is one recorded state of a node.
type NodeChange struct {
	Seq      int64
	Snapshot ir.NodeSnapshot
}

// NodeHistory returns every state the node at ref was reported in, ordered
// by seq. References are positional: after a repeat renumbers, ref
// addresses whichever instance held that position at the time.
//
// Returns an empty slice (not nil) if the node never changed.
func (s *Store) NodeHistory(ctx context.Context, sessionID string, ref ir.Reference) ([]NodeChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, snapshot
		FROM node_changes
		WHERE session_id = ? AND ref = ?
		ORDER BY seq ASC
	`, sessionID, string(ref))
	if err != nil {
		return nil, fmt.Errorf("query node history: %w", err)
	}
	defer rows.Close()

	history := []NodeChange{}
	for rows.Next() {
		var (
			c    NodeChange
			data string
		)
		if err := rows.Scan(&c.Seq, &data); err != nil {
			return nil, fmt.Errorf("scan node change: %w", err)
		}
		if c.Snapshot, err = unmarshalSnapshot(data); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node history: %w", err)
	}
	return history, nil
}

// LastSeq returns the highest mutation seq recorded for a session, 0 when
// only the load was recorded.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM mutations WHERE session_id = ?
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}
