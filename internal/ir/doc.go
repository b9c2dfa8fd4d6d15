// Package ir provides the parsed form representation consumed by the xforms core.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// IR the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Form definitions arrive already parsed; ir never reads files
//   - Structural addresses are plain strings (Reference) so they stay hashable
//   - All JSON tags use snake_case
//   - Journal records carry logical clocks (seq) only, never wall-clock time
package ir
