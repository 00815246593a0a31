package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/calyptra/treatyline/internal/event"
)

// groupKey buckets reconciled events by relationship for the post-passes.
type groupKey struct {
	minID, maxID int64
	treatyType   string
}

// FilterNoise marks matched opposite-action pairs on the same relationship
// as noise: two adjacent same-group events whose actions are signed and
// cancelled (either order), both bot-sourced, within the window. Marked
// records are removed unless keepNoise is set, in which case they stay with
// noise_filtered=true.
//
// The log must already be in final order; adjacency is positional within
// each (pair, type) group.
func FilterNoise(events []event.ReconciledEvent, windowHours int, keepNoise bool) ([]event.ReconciledEvent, []event.Flag) {
	if windowHours < 1 {
		windowHours = 1
	}
	window := time.Duration(windowHours) * time.Hour
	reason := fmt.Sprintf("opposite_action_within_%dh", windowHours)

	groups := groupIndexes(events)
	var flags []event.Flag

	for _, key := range sortedGroupKeys(groups) {
		idxs := groups[key]
		for i := 1; i < len(idxs); i++ {
			prev := &events[idxs[i-1]]
			curr := &events[idxs[i]]
			if !oppositePair(prev.Action, curr.Action) {
				continue
			}
			if prev.Source != event.SourceBot || curr.Source != event.SourceBot {
				continue
			}
			delta := curr.Timestamp.Sub(prev.Timestamp)
			if delta < 0 || delta > window {
				continue
			}
			prev.NoiseFiltered = true
			prev.NoiseReason = reason
			curr.NoiseFiltered = true
			curr.NoiseReason = reason
			flags = append(flags, event.InfoFlag("noise_pair_filtered", "", map[string]any{
				"pair":          []int64{key.minID, key.maxID},
				"treaty_type":   key.treatyType,
				"prev_event_id": prev.EventID,
				"curr_event_id": curr.EventID,
			}))
		}
	}

	if keepNoise {
		return events, flags
	}
	kept := events[:0:0]
	for _, ev := range events {
		if !ev.NoiseFiltered {
			kept = append(kept, ev)
		}
	}
	return kept, flags
}

func oppositePair(a, b event.Action) bool {
	return (a == event.ActionSigned && b == event.ActionCancelled) ||
		(a == event.ActionCancelled && b == event.ActionSigned)
}

func groupIndexes(events []event.ReconciledEvent) map[groupKey][]int {
	groups := make(map[groupKey][]int)
	for idx, ev := range events {
		key := groupKey{ev.PairMinID, ev.PairMaxID, ev.TreatyType}
		groups[key] = append(groups[key], idx)
	}
	return groups
}

// sortedGroupKeys orders group iteration so flag output is deterministic.
func sortedGroupKeys(groups map[groupKey][]int) []groupKey {
	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].minID != keys[j].minID {
			return keys[i].minID < keys[j].minID
		}
		if keys[i].maxID != keys[j].maxID {
			return keys[i].maxID < keys[j].maxID
		}
		return keys[i].treatyType < keys[j].treatyType
	})
	return keys
}
