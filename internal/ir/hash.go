package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainForm     = "xforms/form/v1"
	DomainSnapshot = "xforms/snapshot/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FormHash computes the content-addressed identity of a form definition.
// The journal records it so a session is never replayed against a
// different form.
func FormHash(form *FormDef) (string, error) {
	generic, err := ToCanonical(form)
	if err != nil {
		return "", fmt.Errorf("FormHash: %w", err)
	}
	canonical, err := MarshalCanonical(generic)
	if err != nil {
		return "", fmt.Errorf("FormHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainForm, canonical), nil
}

// SnapshotHash computes a digest over a set of node snapshots.
// Replay compares digests to decide whether two sessions ended identically.
func SnapshotHash(snaps []NodeSnapshot) (string, error) {
	list := make([]any, len(snaps))
	for i, s := range snaps {
		list[i] = s.CanonicalMap()
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// MustFormHash is like FormHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFormHash(form *FormDef) string {
	h, err := FormHash(form)
	if err != nil {
		panic(err)
	}
	return h
}
