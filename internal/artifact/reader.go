package artifact

import (
	"fmt"
	"os"

	"github.com/calyptra/treatyline/internal/engine"
	"github.com/calyptra/treatyline/internal/event"
)

// ReadFrameIndex loads a frame-index artifact, rejecting any schema version
// other than the one this build writes. Guessing compatibility across
// schema versions corrupts playback silently, so a mismatch is an error.
func ReadFrameIndex(path string) (*engine.FrameIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame index: %w", err)
	}
	var index engine.FrameIndex
	if err := Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decode frame index %s: %w", path, err)
	}
	if index.SchemaVersion != engine.FrameIndexSchemaVersion {
		return nil, fmt.Errorf("frame index %s: schema version %d, this build reads %d",
			path, index.SchemaVersion, engine.FrameIndexSchemaVersion)
	}
	return &index, nil
}

// ReadEvents loads a reconciled event log artifact.
func ReadEvents(path string) ([]event.ReconciledEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	var events []event.ReconciledEvent
	if err := Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events %s: %w", path, err)
	}
	return events, nil
}

// VerifyFrameIndex replays the day deltas and checks the structural
// invariants: parallel array lengths, non-decreasing offsets, edge ids in
// range, no duplicate adds, and no removal of an edge that is not live.
// Returns the number of edges live after the final day.
func VerifyFrameIndex(index *engine.FrameIndex) (int, error) {
	if len(index.DayKeys) != len(index.EventEndOffsetByDay) ||
		len(index.DayKeys) != len(index.ActiveEdgeDeltaByDay) {
		return 0, fmt.Errorf("parallel arrays disagree: %d days, %d offsets, %d deltas",
			len(index.DayKeys), len(index.EventEndOffsetByDay), len(index.ActiveEdgeDeltaByDay))
	}

	live := make(map[int64]bool)
	var prevOffset int64
	for i, day := range index.DayKeys {
		if i > 0 && day <= index.DayKeys[i-1] {
			return 0, fmt.Errorf("day keys not strictly ascending at %q", day)
		}
		if index.EventEndOffsetByDay[i] < prevOffset {
			return 0, fmt.Errorf("day %s: end offset %d precedes previous %d",
				day, index.EventEndOffsetByDay[i], prevOffset)
		}
		prevOffset = index.EventEndOffsetByDay[i]

		delta := index.ActiveEdgeDeltaByDay[i]
		for _, id := range delta.AddEdgeIDs {
			if id < 0 || id >= int64(len(index.EdgeDict)) {
				return 0, fmt.Errorf("day %s: add of unknown edge id %d", day, id)
			}
			if live[id] {
				return 0, fmt.Errorf("day %s: edge %d added twice", day, id)
			}
			live[id] = true
		}
		for _, id := range delta.RemoveEdgeIDs {
			if !live[id] {
				return 0, fmt.Errorf("day %s: removal of edge %d that is not live", day, id)
			}
			delete(live, id)
		}
	}
	return len(live), nil
}
