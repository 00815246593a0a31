// Package ingest adapts the three materialized input sets into normalized
// event streams:
//
//   - bot records: directly observed treaty announcements relayed by a bot,
//     including upgraded/downgraded records that expand into a
//     cancelled/signed pair
//   - archive snapshots: periodic graph captures, diffed pairwise into
//     signed/cancelled delta events and used for grounding
//   - census rosters: daily membership presence, turned into deletion
//     markers when an alliance disappears for a confirmation window
//
// Inputs arrive fully materialized; nothing here fetches or parses raw
// upstream payloads. Malformed individual records are dropped with warning
// flags; a file that cannot be decoded at all is a fatal error.
package ingest
