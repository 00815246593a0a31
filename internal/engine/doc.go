// Package engine implements the treaty reconciliation core.
//
// The engine merges normalized event streams from sources with different
// trust levels, replays them against live per-pair treaty state, infers
// facts the sources never state outright (missing treaty types, expiries,
// deletions), and emits a canonical time-ordered event log. Post-passes
// remove sensor noise and collapse glitch churn, and a final pass derives
// the day-bucketed frame index used for scrubbing playback.
//
// ARCHITECTURE:
//
// Single-threaded replay:
// Every stage needs the full, correctly ordered output of the previous one,
// and the tracker is mutated in strict event order, so the whole pipeline is
// one synchronous computation. There is no wall clock anywhere: "now" is
// always the logical timestamp of the item being processed.
//
// CRITICAL PATTERNS:
//
// Deterministic merge order:
// The merged stream sorts by (timestamp, source priority, sub-sequence,
// source ref). Directly observed bot events outrank snapshot deltas, which
// outrank census deletion markers at the same instant. The sub-sequence is
// assigned at normalization time so synthetic upgrade/downgrade pairs order
// correctly without leaning on sort stability.
//
// Lazy expiry:
// Due expirations flush before each item is processed, plus one unbounded
// flush after the stream ends. Inferred cancellations are timestamped at the
// expiry instant, which can precede the triggering item, so the final log is
// re-sorted by (timestamp, event_sequence, event_id).
//
// No silent fabrication:
// Every inference beyond the documented rules is flagged for auditability.
package engine
