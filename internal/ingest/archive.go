package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/calyptra/treatyline/internal/event"
	"github.com/calyptra/treatyline/internal/ground"
)

// Snapshot is one archived graph capture: the alliances visible in the
// treaty web at a point in time, plus the edges between them.
type Snapshot struct {
	Timestamp string         `json:"date"`
	Nodes     []SnapshotNode `json:"nodes"`
	Edges     []SnapshotEdge `json:"edges"`
}

// SnapshotNode is one alliance visible in a snapshot.
type SnapshotNode struct {
	ID   int64  `json:"id"`
	Name string `json:"label"`
}

// SnapshotEdge is one treaty edge in a snapshot. The type label may carry
// display garbage; it is normalized before diffing.
type SnapshotEdge struct {
	From      int64  `json:"from"`
	To        int64  `json:"to"`
	TypeLabel string `json:"title"`
}

type edgeKey struct {
	minID, maxID int64
	treatyType   string
}

// snapshotState is a snapshot reduced to set form for diffing and grounding.
type snapshotState struct {
	timestamp time.Time
	nodeIDs   map[int64]struct{}
	nodeNames map[int64]string
	edges     map[edgeKey]struct{}
}

// Archive is a time-ordered sequence of reduced snapshots.
type Archive struct {
	states []snapshotState
}

// NewArchive reduces raw snapshots to set form and orders them by time.
// A snapshot with an unparseable timestamp is a structural error: there is
// nothing safe to diff or ground against.
func NewArchive(snapshots []Snapshot) (*Archive, error) {
	states := make([]snapshotState, 0, len(snapshots))
	for i, snap := range snapshots {
		ts, err := parseTimestamp(snap.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		st := snapshotState{
			timestamp: ts,
			nodeIDs:   make(map[int64]struct{}, len(snap.Nodes)),
			nodeNames: make(map[int64]string, len(snap.Nodes)),
			edges:     make(map[edgeKey]struct{}, len(snap.Edges)),
		}
		for _, node := range snap.Nodes {
			st.nodeIDs[node.ID] = struct{}{}
			if name := event.CleanName(node.Name); name != "" {
				st.nodeNames[node.ID] = name
			}
		}
		for _, edge := range snap.Edges {
			minID, maxID := event.NormPair(edge.From, edge.To)
			st.edges[edgeKey{minID, maxID, event.NormTreatyType(edge.TypeLabel)}] = struct{}{}
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].timestamp.Before(states[j].timestamp)
	})
	return &Archive{states: states}, nil
}

// Len returns the number of snapshots.
func (a *Archive) Len() int { return len(a.states) }

// Bounds returns the first and last snapshot timestamps. ok is false for an
// empty archive.
func (a *Archive) Bounds() (first, last time.Time, ok bool) {
	if len(a.states) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return a.states[0].timestamp, a.states[len(a.states)-1].timestamp, true
}

// GroundingFrames exposes the per-snapshot visibility sets for the grounding
// index.
func (a *Archive) GroundingFrames() []ground.Frame {
	frames := make([]ground.Frame, len(a.states))
	for i, st := range a.states {
		frames[i] = ground.Frame{Timestamp: st.timestamp, IDs: st.nodeIDs}
	}
	return frames
}

// DeltaEvents diffs consecutive snapshots into synthetic signed/cancelled
// events: edges that appear are signed, edges that vanish are cancelled,
// both timestamped at the newer snapshot with medium confidence. Within one
// diff, added edges come before removed edges, each in sorted pair order, so
// the stream is deterministic.
func (a *Archive) DeltaEvents() []event.NormalizedEvent {
	var events []event.NormalizedEvent
	for idx := 1; idx < len(a.states); idx++ {
		prev := &a.states[idx-1]
		curr := &a.states[idx]

		for _, key := range diffEdges(curr.edges, prev.edges) {
			events = append(events, a.deltaEvent(key, prev, curr,
				event.ActionSigned,
				fmt.Sprintf("snapshot:%d:add", idx),
				"archive_snapshot_diff_added"))
		}
		for _, key := range diffEdges(prev.edges, curr.edges) {
			events = append(events, a.deltaEvent(key, prev, curr,
				event.ActionCancelled,
				fmt.Sprintf("snapshot:%d:remove", idx),
				"archive_snapshot_diff_removed"))
		}
	}
	return events
}

func (a *Archive) deltaEvent(key edgeKey, prev, curr *snapshotState, action event.Action, ref, reason string) event.NormalizedEvent {
	return event.NormalizedEvent{
		Timestamp:       curr.timestamp,
		Action:          action,
		TreatyType:      key.treatyType,
		FromID:          key.minID,
		FromName:        lookupName(key.minID, curr, prev),
		ToID:            key.maxID,
		ToName:          lookupName(key.maxID, curr, prev),
		PairMinID:       key.minID,
		PairMaxID:       key.maxID,
		Source:          event.SourceArchiveDelta,
		SourceRef:       ref,
		Confidence:      event.ConfidenceMedium,
		Inferred:        true,
		InferenceReason: reason,
	}
}

// diffEdges returns the keys present in a but not in b, sorted.
func diffEdges(a, b map[edgeKey]struct{}) []edgeKey {
	var keys []edgeKey
	for key := range a {
		if _, ok := b[key]; !ok {
			keys = append(keys, key)
		}
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

// lookupName prefers the newer snapshot's name for an alliance, falling back
// to the older one.
func lookupName(id int64, curr, prev *snapshotState) string {
	if name := curr.nodeNames[id]; name != "" {
		return name
	}
	return prev.nodeNames[id]
}
