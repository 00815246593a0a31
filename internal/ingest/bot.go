package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/calyptra/treatyline/internal/event"
)

// BotRecord is one normalized bot-relayed treaty announcement, as produced
// by the upstream bot-message parser.
type BotRecord struct {
	Timestamp          string `json:"timestamp"`
	Action             string `json:"action"`
	TreatyType         string `json:"treaty_type"`
	FromAllianceID     int64  `json:"from_alliance_id"`
	FromAllianceName   string `json:"from_alliance_name"`
	ToAllianceID       int64  `json:"to_alliance_id"`
	ToAllianceName     string `json:"to_alliance_name"`
	TimeRemainingTurns *int   `json:"time_remaining_turns"`
}

// NormalizeBot canonicalizes bot records into the shared event shape.
//
// Per-record problems (missing action, unparseable timestamp, non-positive
// alliance ids, upgrade records without an OLD->NEW type) drop the record
// with a warning flag and never abort the run.
//
// upgraded/downgraded records expand into two synthetic events at the same
// timestamp sharing one source ref: a cancelled on the old type (SubSeq 0)
// followed by a signed on the new type (SubSeq 1). The explicit SubSeq keeps
// merge order independent of sort-algorithm stability.
func NormalizeBot(records []BotRecord) ([]event.NormalizedEvent, []event.Flag) {
	events := make([]event.NormalizedEvent, 0, len(records))
	var flags []event.Flag

	for idx, rec := range records {
		ref := fmt.Sprintf("bot:%d", idx)

		action := event.CanonicalAction(rec.Action)
		if action == "" {
			flags = append(flags, event.WarningFlag("missing_action", ref, map[string]any{
				"record_index": idx,
			}))
			continue
		}

		ts, err := parseTimestamp(rec.Timestamp)
		if err != nil {
			flags = append(flags, event.WarningFlag("invalid_timestamp", ref, map[string]any{
				"record_index": idx,
				"value":        rec.Timestamp,
			}))
			continue
		}

		if rec.FromAllianceID <= 0 || rec.ToAllianceID <= 0 {
			flags = append(flags, event.WarningFlag("missing_alliance_id", ref, map[string]any{
				"record_index": idx,
			}))
			continue
		}

		minID, maxID := event.NormPair(rec.FromAllianceID, rec.ToAllianceID)
		treatyType := event.NormTreatyType(rec.TreatyType)

		base := event.NormalizedEvent{
			Timestamp:          ts,
			FromID:             rec.FromAllianceID,
			FromName:           event.CleanName(rec.FromAllianceName),
			ToID:               rec.ToAllianceID,
			ToName:             event.CleanName(rec.ToAllianceName),
			PairMinID:          minID,
			PairMaxID:          maxID,
			Source:             event.SourceBot,
			SourceRef:          ref,
			Confidence:         event.ConfidenceHigh,
			TimeRemainingTurns: rec.TimeRemainingTurns,
		}

		rawAction := strings.ToLower(strings.TrimSpace(rec.Action))
		if rawAction == "upgraded" || rawAction == "downgraded" {
			oldType, newType, ok := splitArrowType(treatyType)
			if !ok {
				flags = append(flags, event.WarningFlag("upgrade_without_arrow_type", ref, map[string]any{
					"record_index": idx,
					"value":        treatyType,
				}))
				continue
			}
			flags = flagNonCanonicalType(flags, oldType, ref, idx)
			flags = flagNonCanonicalType(flags, newType, ref, idx)
			cancel := base
			cancel.Action = event.ActionCancelled
			cancel.TreatyType = oldType
			cancel.SubSeq = 0
			sign := base
			sign.Action = event.ActionSigned
			sign.TreatyType = newType
			sign.SubSeq = 1
			events = append(events, cancel, sign)
			continue
		}

		flags = flagNonCanonicalType(flags, treatyType, ref, idx)
		ev := base
		ev.Action = action
		ev.TreatyType = treatyType
		events = append(events, ev)
	}

	return events, flags
}

// flagNonCanonicalType records an info flag for a treaty type token outside
// the known category set. Empty and UNKNOWN types are left to inference and
// never flagged; the event itself is always kept.
func flagNonCanonicalType(flags []event.Flag, treatyType, ref string, idx int) []event.Flag {
	if treatyType == "" || treatyType == "UNKNOWN" || event.CanonicalTypes[treatyType] {
		return flags
	}
	return append(flags, event.InfoFlag("non_canonical_treaty_type", ref, map[string]any{
		"record_index": idx,
		"treaty_type":  treatyType,
	}))
}

// splitArrowType splits an "OLD->NEW" upgrade type into its halves.
func splitArrowType(treatyType string) (oldType, newType string, ok bool) {
	left, right, found := strings.Cut(treatyType, "->")
	if !found {
		return "", "", false
	}
	return event.NormTreatyType(left), event.NormTreatyType(right), true
}

// parseTimestamp accepts RFC 3339 with or without sub-second precision and
// normalizes to UTC.
func parseTimestamp(raw string) (time.Time, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	ts, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return ts.UTC(), nil
}
