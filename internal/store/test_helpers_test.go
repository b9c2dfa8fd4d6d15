package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/xforms/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedSession records a session header with fixed form fields.
func seedSession(t *testing.T, s *Store, id string) ir.SessionRecord {
	t.Helper()
	rec := ir.SessionRecord{ID: id, FormID: "chain", FormHash: "test-hash", Language: ""}
	if err := s.RecordSession(context.Background(), rec); err != nil {
		t.Fatalf("RecordSession() failed: %v", err)
	}
	return rec
}

func snapshot(ref ir.Reference, value string) ir.NodeSnapshot {
	return ir.NodeSnapshot{Ref: ref, Kind: "leaf", Value: value, Relevant: true, Valid: true}
}
