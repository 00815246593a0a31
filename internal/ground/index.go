// Package ground answers "was this alliance visible in a trusted snapshot at
// time T". Grounding is independent confirmation: an event between two
// grounded endpoints is far less likely to be feed noise.
package ground

import (
	"fmt"
	"sort"
	"time"
)

// Frame is one snapshot's visibility set.
type Frame struct {
	Timestamp time.Time
	IDs       map[int64]struct{}
}

// Index answers point-in-time membership queries over an ordered sequence of
// snapshot frames. Queries run in O(log n); the reconciler issues two per
// emitted event.
type Index struct {
	frames []Frame
}

// NewIndex builds an index over the given frames. Frames are sorted by
// timestamp; input order does not matter.
func NewIndex(frames []Frame) *Index {
	sorted := make([]Frame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &Index{frames: sorted}
}

// IsGrounded reports whether id was a member of the latest frame at or
// before at. Returns false when at precedes the first frame or the index is
// empty.
func (ix *Index) IsGrounded(id int64, at time.Time) bool {
	if len(ix.frames) == 0 {
		return false
	}
	// First frame strictly after at; the frame before it governs.
	n := sort.Search(len(ix.frames), func(i int) bool {
		return ix.frames[i].Timestamp.After(at)
	})
	if n == 0 {
		return false
	}
	_, ok := ix.frames[n-1].IDs[id]
	return ok
}

// Len returns the number of frames.
func (ix *Index) Len() int {
	return len(ix.frames)
}

// Policy decides which events survive grounding, given the grounding of each
// endpoint.
type Policy string

const (
	// PolicyOff keeps everything.
	PolicyOff Policy = "off"
	// PolicySemi keeps events with at least one grounded endpoint.
	PolicySemi Policy = "semi"
	// PolicyStrict keeps events only when both endpoints are grounded.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a policy token.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(raw) {
	case PolicyOff, PolicySemi, PolicyStrict:
		return Policy(raw), nil
	}
	return "", fmt.Errorf("invalid grounding policy %q: must be off, semi, or strict", raw)
}

// Keep applies the policy to a pair of endpoint grounding results.
func (p Policy) Keep(groundedFrom, groundedTo bool) bool {
	switch p {
	case PolicySemi:
		return groundedFrom || groundedTo
	case PolicyStrict:
		return groundedFrom && groundedTo
	default:
		return true
	}
}
