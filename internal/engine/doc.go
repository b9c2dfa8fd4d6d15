// Package engine runs form sessions: it keeps a document's computed
// attributes consistent with its binds as values and repeats change.
//
// ARCHITECTURE:
//
// Units and Subscriptions:
// Every structural node of the document gets a unit pointing at its bind
// entry. Each unit subscribes to the patterns its entry's expressions read
// (see bind.Dependency), so the readers of a changed node are found by
// looking up the node's ancestor-or-self patterns and checking repeat pins.
//
// Mutation Flow:
// 1. The mutation is applied to the document (SetValue, repeat add/remove,
// language switch); a structural error leaves everything unchanged
// 2. The mutation is stamped with the next seq from the Clock and journaled
// 3. The affected units are seeded into the graph
// 4. Settle evaluates seeds and their transitive readers in rank order,
// each unit at most once
// 5. Changed nodes are journaled and reported to watchers in document order
//
// The engine is single-threaded per session. Sessions share nothing and can
// run on separate goroutines.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Mutations are stamped with a monotonic seq from Clock.Next(). Seq 0 is
// the initial pass. NEVER use wall-clock timestamps for ordering.
//
// Deterministic Scheduling:
// Units evaluate in (bind rank, document order). Change sets are reported
// in document order. No randomness, no concurrency, no map iteration order
// reaches an observer.
package engine
