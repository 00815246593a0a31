// Package event defines the shared event shapes for the treaty
// reconciliation pipeline.
//
// Every source (bot feed, archive snapshot deltas, census deletion markers)
// is normalized into a NormalizedEvent before merging. The reconciliation
// engine replays the merged stream and emits ReconciledEvents, which add
// sequence, identity, grounding, and noise metadata.
//
// CRITICAL PATTERNS:
//
// Unordered pairs:
// A treaty relationship is unordered. Every record carries the pair both as
// (from, to) and as (pair_min_id, pair_max_id) with min <= max. All state
// keys and groupings use the normalized pair.
//
// Deterministic identity:
// Event IDs are content-addressed via SHA-256 with domain separation over a
// canonical field encoding (see hash.go). Identical logical events produce
// identical IDs across runs.
package event
