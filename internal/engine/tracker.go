package engine

import (
	"sort"
	"time"

	"github.com/calyptra/treatyline/internal/event"
)

// PairKey is a normalized unordered alliance pair, Min <= Max.
type PairKey struct {
	Min, Max int64
}

// TreatyKey identifies one live relationship: a pair plus a treaty type.
type TreatyKey struct {
	Pair PairKey
	Type string
}

// TreatyState is the live state of one open relationship.
//
// A state exists iff a signed has been replayed without a subsequent
// terminal action. ExpiresAtValid is false when no expiry is known; such
// relationships never auto-close.
type TreatyState struct {
	OpenedAt       time.Time
	ExpiresAt      time.Time
	ExpiresAtValid bool
	LastSourceRef  string
}

// Tracker is the in-memory map of open relationships, mutated as the merged
// stream replays in order. Each reconciliation run constructs a fresh
// tracker; it is owned exclusively by the Reconciler and never persisted.
type Tracker struct {
	open map[TreatyKey]*TreatyState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{open: make(map[TreatyKey]*TreatyState)}
}

// Open inserts or replaces the state for (pair, treatyType).
func (t *Tracker) Open(pair PairKey, treatyType string, openedAt time.Time, expiresAt time.Time, expiresValid bool, ref string) {
	t.open[TreatyKey{pair, treatyType}] = &TreatyState{
		OpenedAt:       openedAt,
		ExpiresAt:      expiresAt,
		ExpiresAtValid: expiresValid,
		LastSourceRef:  ref,
	}
}

// Refresh updates the expiry and provenance of an open relationship in
// place. An extension of an unknown relationship behaves like Open.
func (t *Tracker) Refresh(pair PairKey, treatyType string, at time.Time, expiresAt time.Time, expiresValid bool, ref string) {
	key := TreatyKey{pair, treatyType}
	state, ok := t.open[key]
	if !ok {
		t.Open(pair, treatyType, at, expiresAt, expiresValid, ref)
		return
	}
	state.ExpiresAt = expiresAt
	state.ExpiresAtValid = expiresValid
	state.LastSourceRef = ref
}

// Close removes the state for (pair, treatyType). No-op when absent.
func (t *Tracker) Close(pair PairKey, treatyType string) {
	delete(t.open, TreatyKey{pair, treatyType})
}

// CandidateTypes returns the sorted treaty types currently open for a pair.
// Used to infer the type of type-less terminal and extension events.
func (t *Tracker) CandidateTypes(pair PairKey) []string {
	var types []string
	for key := range t.open {
		if key.Pair == pair {
			types = append(types, key.Type)
		}
	}
	sort.Strings(types)
	return types
}

// OpenEntry is one open relationship returned by tracker scans.
type OpenEntry struct {
	Key   TreatyKey
	State TreatyState
}

// DueForExpiry returns every open relationship whose expiry is at or before
// now, sorted by (expiry, pair, type) so emission order is deterministic.
// The entries are snapshots; callers close them explicitly.
func (t *Tracker) DueForExpiry(now time.Time) []OpenEntry {
	var due []OpenEntry
	for key, state := range t.open {
		if state.ExpiresAtValid && !state.ExpiresAt.After(now) {
			due = append(due, OpenEntry{Key: key, State: *state})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].State.ExpiresAt.Equal(due[j].State.ExpiresAt) {
			return due[i].State.ExpiresAt.Before(due[j].State.ExpiresAt)
		}
		return lessKey(due[i].Key, due[j].Key)
	})
	return due
}

// CloseAllForEntity removes every open relationship touching the given
// alliance and returns the closed entries sorted by (pair, type). Used for
// deletion inference when a census marker arrives.
func (t *Tracker) CloseAllForEntity(id int64) []OpenEntry {
	var closed []OpenEntry
	for key, state := range t.open {
		if key.Pair.Min == id || key.Pair.Max == id {
			closed = append(closed, OpenEntry{Key: key, State: *state})
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		return lessKey(closed[i].Key, closed[j].Key)
	})
	for _, entry := range closed {
		delete(t.open, entry.Key)
	}
	return closed
}

// Len returns the number of open relationships.
func (t *Tracker) Len() int {
	return len(t.open)
}

// Has reports whether (pair, treatyType) is currently open.
func (t *Tracker) Has(pair PairKey, treatyType string) bool {
	_, ok := t.open[TreatyKey{pair, treatyType}]
	return ok
}

// Entries returns every open relationship sorted by (pair, type).
// Used by the frame-index reconstruction checks in tests.
func (t *Tracker) Entries() []OpenEntry {
	entries := make([]OpenEntry, 0, len(t.open))
	for key, state := range t.open {
		entries = append(entries, OpenEntry{Key: key, State: *state})
	}
	sort.Slice(entries, func(i, j int) bool {
		return lessKey(entries[i].Key, entries[j].Key)
	})
	return entries
}

func lessKey(a, b TreatyKey) bool {
	if a.Pair.Min != b.Pair.Min {
		return a.Pair.Min < b.Pair.Min
	}
	if a.Pair.Max != b.Pair.Max {
		return a.Pair.Max < b.Pair.Max
	}
	return a.Type < b.Type
}

// pairOf builds a PairKey from a normalized event.
func pairOf(ev *event.NormalizedEvent) PairKey {
	return PairKey{Min: ev.PairMinID, Max: ev.PairMaxID}
}
