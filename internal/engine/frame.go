package engine

import (
	"sort"

	"github.com/calyptra/treatyline/internal/event"
)

// FrameIndexSchemaVersion identifies the frame-index artifact layout.
// Readers must reject any other version rather than guess compatibility.
const FrameIndexSchemaVersion = 1

// EdgeRecord describes one edge allocation: the signed event that created
// it plus the relationship it represents. An edge's id is its position in
// the edge dictionary.
type EdgeRecord struct {
	EventIndex int64  `json:"event_index" msgpack:"event_index"`
	PairMinID  int64  `json:"pair_min_id" msgpack:"pair_min_id"`
	PairMaxID  int64  `json:"pair_max_id" msgpack:"pair_max_id"`
	TreatyType string `json:"treaty_type" msgpack:"treaty_type"`
}

// DayDelta is the net visible-edge change from the previous day. Edge id
// slices are sorted ascending.
type DayDelta struct {
	AddEdgeIDs    []int64 `json:"add_edge_ids" msgpack:"add_edge_ids"`
	RemoveEdgeIDs []int64 `json:"remove_edge_ids" msgpack:"remove_edge_ids"`
}

// FrameIndex is the day-bucketed incremental edge structure a renderer
// binary-searches while scrubbing. Summing the deltas from the start
// reproduces, for every day, the exact set of edges live at that day's end;
// the offset array gives the exclusive end index into the reconciled log
// for events dated on or before each day.
type FrameIndex struct {
	SchemaVersion        int          `json:"schema_version" msgpack:"schema_version"`
	DayKeys              []string     `json:"day_keys" msgpack:"day_keys"`
	EventEndOffsetByDay  []int64      `json:"event_end_offset_by_day" msgpack:"event_end_offset_by_day"`
	EdgeDict             []EdgeRecord `json:"edge_dict" msgpack:"edge_dict"`
	ActiveEdgeDeltaByDay []DayDelta   `json:"active_edge_delta_by_day" msgpack:"active_edge_delta_by_day"`
}

// frameBuilder accumulates one day's bucket at a time.
type frameBuilder struct {
	index        FrameIndex
	activeByPair map[groupKey]int64
	currentDay   string
	dayAdd       map[int64]bool
	dayRemove    map[int64]bool
}

// BuildFrameIndex runs a single forward pass over the final reconciled log,
// bucketing by the date portion of each timestamp.
//
// On signed, a fresh edge id is allocated; a previously active edge for the
// same key resolves first. On any terminal action the active edge resolves
// and clears. Resolution cancels an edge out of the current day's add-set
// when it was added the same day, so an edge opened and closed within one
// day never appears in either set.
func BuildFrameIndex(events []event.ReconciledEvent) *FrameIndex {
	b := &frameBuilder{
		index:        FrameIndex{SchemaVersion: FrameIndexSchemaVersion},
		activeByPair: make(map[groupKey]int64),
		dayAdd:       make(map[int64]bool),
		dayRemove:    make(map[int64]bool),
	}

	for eventIndex, ev := range events {
		day := ev.Timestamp.UTC().Format("2006-01-02")
		if b.currentDay == "" {
			b.currentDay = day
		} else if day != b.currentDay {
			b.flushDay(int64(eventIndex))
			b.currentDay = day
		}

		key := groupKey{ev.PairMinID, ev.PairMaxID, ev.TreatyType}
		switch {
		case ev.Action == event.ActionSigned:
			edgeID := int64(len(b.index.EdgeDict))
			b.index.EdgeDict = append(b.index.EdgeDict, EdgeRecord{
				EventIndex: int64(eventIndex),
				PairMinID:  ev.PairMinID,
				PairMaxID:  ev.PairMaxID,
				TreatyType: ev.TreatyType,
			})
			if previous, ok := b.activeByPair[key]; ok {
				b.resolve(previous)
			}
			b.activeByPair[key] = edgeID
			b.dayAdd[edgeID] = true
		case ev.Action.Terminal():
			if previous, ok := b.activeByPair[key]; ok {
				delete(b.activeByPair, key)
				b.resolve(previous)
			}
		}
	}

	if b.currentDay != "" {
		b.flushDay(int64(len(events)))
	}
	return &b.index
}

// resolve retires an edge into the current day's delta: cancelled out of the
// add-set when it was added today, recorded as removed otherwise.
func (b *frameBuilder) resolve(edgeID int64) {
	if b.dayAdd[edgeID] {
		delete(b.dayAdd, edgeID)
		return
	}
	b.dayRemove[edgeID] = true
}

// flushDay closes the current day's bucket with the exclusive end offset.
func (b *frameBuilder) flushDay(endOffset int64) {
	b.index.DayKeys = append(b.index.DayKeys, b.currentDay)
	b.index.EventEndOffsetByDay = append(b.index.EventEndOffsetByDay, endOffset)
	b.index.ActiveEdgeDeltaByDay = append(b.index.ActiveEdgeDeltaByDay, DayDelta{
		AddEdgeIDs:    sortedIDs(b.dayAdd),
		RemoveEdgeIDs: sortedIDs(b.dayRemove),
	})
	b.dayAdd = make(map[int64]bool)
	b.dayRemove = make(map[int64]bool)
}

func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
