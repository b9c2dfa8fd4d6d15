// Package bind implements the bind registry: the per-nodeset bundles of
// computed-attribute expressions, their static dependencies, and the
// evaluation order the scheduler follows.
//
// Building a registry is a fixed sequence:
//
//  1. Register every declared bind (expressions are parsed here; a
//     malformed expression fails the form)
//  2. FillGaps synthesizes an implicit entry for every template node that
//     has no explicit bind, so relevance inheritance has a unit at every level
//  3. Analyze extracts dependencies, rejects cycles and computes the order
//
// Load runs all three for a parsed form.
//
// CRITICAL: Entries are keyed by pattern (references without positional
// predicates). One entry serves every repeat instance of its template node.
package bind
