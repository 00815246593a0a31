package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/calyptra/treatyline/internal/event"
)

// CensusRoster is one census window's observed membership: the alliances
// that had at least one member on that day.
type CensusRoster struct {
	Day         string  `json:"day"`
	AllianceIDs []int64 `json:"alliance_ids"`
}

// DeletionMarkers derives deletion markers from census rosters.
//
// An alliance present on one census day and then absent for confirmWindows
// consecutive days is considered deleted; the marker is timestamped at the
// first absent day. At most one marker is emitted per alliance. Fewer than
// confirmWindows+1 census days can never confirm a deletion, so no markers
// are produced.
//
// Markers come back as NormalizedEvents with action alliance_zero_members and
// both endpoints set to the vanished alliance; the reconciler expands them
// against its live state.
func DeletionMarkers(rosters []CensusRoster, confirmWindows int) ([]event.NormalizedEvent, []event.Flag, error) {
	if confirmWindows < 1 {
		confirmWindows = 1
	}

	var flags []event.Flag
	presence := make(map[int64]map[time.Time]struct{})
	daySet := make(map[time.Time]struct{})

	for i, roster := range rosters {
		day, err := time.Parse("2006-01-02", roster.Day)
		if err != nil {
			return nil, nil, fmt.Errorf("census roster %d: parse day %q: %w", i, roster.Day, err)
		}
		day = day.UTC()
		daySet[day] = struct{}{}
		for _, id := range roster.AllianceIDs {
			if id <= 0 {
				flags = append(flags, event.WarningFlag("census_invalid_alliance_id", fmt.Sprintf("census:%s", roster.Day), map[string]any{
					"value": id,
				}))
				continue
			}
			if presence[id] == nil {
				presence[id] = make(map[time.Time]struct{})
			}
			presence[id][day] = struct{}{}
		}
	}

	days := make([]time.Time, 0, len(daySet))
	for day := range daySet {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if len(days) < confirmWindows+1 {
		return nil, flags, nil
	}

	ids := make([]int64, 0, len(presence))
	for id := range presence {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var markers []event.NormalizedEvent
	for _, id := range ids {
		present := presence[id]
		for idx := 1; idx+confirmWindows <= len(days); idx++ {
			if _, ok := present[days[idx-1]]; !ok {
				continue
			}
			confirmed := true
			for _, day := range days[idx : idx+confirmWindows] {
				if _, ok := present[day]; ok {
					confirmed = false
					break
				}
			}
			if !confirmed {
				continue
			}
			ts := days[idx]
			markers = append(markers, event.NormalizedEvent{
				Timestamp:  ts,
				Action:     event.ActionZeroMembers,
				FromID:     id,
				ToID:       id,
				PairMinID:  id,
				PairMaxID:  id,
				Source:     event.SourceCensus,
				SourceRef:  fmt.Sprintf("alliances:%d:%s", id, ts.Format("2006-01-02")),
				Confidence: event.ConfidenceMedium,
				Inferred:   true,
			})
			break
		}
	}

	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].Timestamp.Before(markers[j].Timestamp)
	})
	return markers, flags, nil
}
