// Package store provides SQLite-backed durable storage for form session
// journals.
//
// The store implements engine.Journal as an append-only log with:
//   - Sessions: one header per session (form id, form hash, language)
//   - Mutations: every external mutation, keyed by (session, seq)
//   - Passes: the outcome of every settling pass, seq 0 being the load
//   - Node changes: the snapshots each pass reported, in document order
//
// # Critical Patterns
//
// Logical Identity and Time
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Enables deterministic replay regardless of wall time
//
// Deterministic Query Results
//   - Queries order by seq ASC (and ord ASC for node changes)
//   - Session listings order by id COLLATE BINARY
//
// Idempotent Writes
//   - Re-recording an existing (session, seq) is a no-op, so a journal
//     can be written again by a replay without failing
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Snapshots are stored as canonical JSON (internal/ir/canonical.go) so a
// stored pass hashes the same as the live one.
package store
