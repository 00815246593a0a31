package engine

import (
	"sort"
	"time"

	"github.com/calyptra/treatyline/internal/event"
)

// ChurnOptions tunes the churn collapser. The thresholds are empirically
// chosen and deliberately configuration, not derived invariants.
type ChurnOptions struct {
	// WindowMinutes bounds how far a cluster may stretch from its first
	// event.
	WindowMinutes int
	// MinEvents is the smallest cluster eligible for collapsing.
	MinEvents int
	// MaxNet caps |signed - cancelled|; directional runs are preserved.
	MaxNet int
	// MinRepeatedTimestamp is how many events must share one instant for a
	// cluster to count as a burst.
	MinRepeatedTimestamp int
}

// DefaultChurnOptions mirrors the tuning that works on the production feed.
func DefaultChurnOptions() ChurnOptions {
	return ChurnOptions{
		WindowMinutes:        10,
		MinEvents:            20,
		MaxNet:               2,
		MinRepeatedTimestamp: 4,
	}
}

// CollapseChurn removes dense, near-zero-net signed/cancelled oscillation on
// a single relationship, keeping only the cluster's net effect.
//
// Targets glitchy upgrade/downgrade storms that expand into symmetric
// signed/cancelled floods after normalization. A cluster collapses only
// when every condition holds: it is large enough, contains both actions,
// has at least MinRepeatedTimestamp events on one instant, crams its events
// into at most max(MinRepeatedTimestamp, size/3) distinct instants, and has
// |net| <= MaxNet. The last net signed (or cancelled) events survive;
// everything else in the cluster is dropped with one info flag describing
// the cluster.
func CollapseChurn(events []event.ReconciledEvent, opts ChurnOptions) ([]event.ReconciledEvent, []event.Flag) {
	window := time.Duration(max(1, opts.WindowMinutes)) * time.Minute
	minimum := max(2, opts.MinEvents)

	// Only bot-sourced signed/cancelled records participate; everything
	// else is untouchable by this pass.
	eligible := make(map[groupKey][]int)
	for idx, ev := range events {
		if ev.Source != event.SourceBot {
			continue
		}
		if ev.Action != event.ActionSigned && ev.Action != event.ActionCancelled {
			continue
		}
		key := groupKey{ev.PairMinID, ev.PairMaxID, ev.TreatyType}
		eligible[key] = append(eligible[key], idx)
	}

	var flags []event.Flag
	remove := make(map[int]bool)

	for _, key := range sortedGroupKeys(eligible) {
		idxs := eligible[key]
		if len(idxs) < minimum {
			continue
		}

		for start := 0; start < len(idxs); {
			// Greedy cluster: extend while the next event is still within
			// the window of the cluster's first event.
			end := start
			startTS := events[idxs[start]].Timestamp
			for end+1 < len(idxs) && events[idxs[end+1]].Timestamp.Sub(startTS) <= window {
				end++
			}
			cluster := idxs[start : end+1]
			start = end + 1

			if removed, flag, ok := collapseCluster(events, key, cluster, minimum, opts); ok {
				for _, idx := range removed {
					remove[idx] = true
				}
				flags = append(flags, flag)
			}
		}
	}

	if len(remove) == 0 {
		return events, flags
	}
	kept := events[:0:0]
	for idx, ev := range events {
		if !remove[idx] {
			kept = append(kept, ev)
		}
	}
	return kept, flags
}

// collapseCluster applies the qualifying conditions to one cluster and
// returns the indexes to remove plus the describing flag.
func collapseCluster(events []event.ReconciledEvent, key groupKey, cluster []int, minimum int, opts ChurnOptions) ([]int, event.Flag, bool) {
	if len(cluster) < minimum {
		return nil, event.Flag{}, false
	}

	var signed, cancelled []int
	timestampCounts := make(map[time.Time]int)
	for _, idx := range cluster {
		switch events[idx].Action {
		case event.ActionSigned:
			signed = append(signed, idx)
		case event.ActionCancelled:
			cancelled = append(cancelled, idx)
		}
		timestampCounts[events[idx].Timestamp]++
	}
	if len(signed) == 0 || len(cancelled) == 0 {
		return nil, event.Flag{}, false
	}

	maxSameTimestamp := 0
	for _, n := range timestampCounts {
		maxSameTimestamp = max(maxSameTimestamp, n)
	}
	// True bursts cram many events into very few instants; both checks
	// together keep ordinary high activity out of reach.
	minRepeated := max(2, opts.MinRepeatedTimestamp)
	if maxSameTimestamp < minRepeated {
		return nil, event.Flag{}, false
	}
	if len(timestampCounts) > max(minRepeated, len(cluster)/3) {
		return nil, event.Flag{}, false
	}

	net := len(signed) - len(cancelled)
	if abs(net) > opts.MaxNet {
		return nil, event.Flag{}, false
	}

	keep := make(map[int]bool)
	if net > 0 {
		for _, idx := range signed[len(signed)-net:] {
			keep[idx] = true
		}
	} else if net < 0 {
		for _, idx := range cancelled[len(cancelled)+net:] {
			keep[idx] = true
		}
	}

	var removed []int
	for _, idx := range cluster {
		if !keep[idx] {
			removed = append(removed, idx)
		}
	}
	if len(removed) == 0 {
		return nil, event.Flag{}, false
	}
	sort.Ints(removed)

	flag := event.InfoFlag("churn_cluster_collapsed", "", map[string]any{
		"pair":                      []int64{key.minID, key.maxID},
		"treaty_type":               key.treatyType,
		"window_start":              events[cluster[0]].Timestamp,
		"window_end":                events[cluster[len(cluster)-1]].Timestamp,
		"cluster_events":            len(cluster),
		"signed_events":             len(signed),
		"cancelled_events":          len(cancelled),
		"max_same_timestamp_events": maxSameTimestamp,
		"unique_timestamps":         len(timestampCounts),
		"removed_events":            len(removed),
		"kept_events":               len(cluster) - len(removed),
		"net_action_balance":        net,
	})
	return removed, flag, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
