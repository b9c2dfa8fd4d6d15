package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/xforms/internal/ir"
)

// marshalSnapshot converts a node snapshot to canonical JSON TEXT for
// storage. Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalSnapshot(snap ir.NodeSnapshot) (string, error) {
	data, err := ir.MarshalCanonical(snap.CanonicalMap())
	if err != nil {
		return "", fmt.Errorf("marshal snapshot %s: %w", snap.Ref, err)
	}
	return string(data), nil
}

// unmarshalSnapshot parses canonical JSON TEXT back into a snapshot.
// Label and hint are omitted from the JSON when empty and come back empty.
func unmarshalSnapshot(data string) (ir.NodeSnapshot, error) {
	var snap ir.NodeSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return ir.NodeSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
