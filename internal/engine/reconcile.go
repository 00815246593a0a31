package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/calyptra/treatyline/internal/event"
	"github.com/calyptra/treatyline/internal/ground"
)

// ReconcileOptions configures one reconciliation run.
type ReconcileOptions struct {
	// Grounding selects the keep policy applied to grounding results.
	Grounding ground.Policy
	// InferExpiry enables lazy expiry flushing (2h per remaining turn).
	InferExpiry bool
	// InferDeletion expands census deletion markers into inferred
	// cancellations of every open relationship touching the alliance.
	InferDeletion bool
}

// unboundedFuture drives the final expiry flush after the stream ends.
// There is no wall clock in the engine, so "the end of time" is just a
// timestamp later than any input.
var unboundedFuture = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Reconciler merges normalized streams, drives the tracker, applies
// inference, and emits the reconciled log. One Reconciler serves one run;
// all state is per-instance.
type Reconciler struct {
	opts    ReconcileOptions
	ground  *ground.Index
	tracker *Tracker
	seq     *Sequencer

	// names remembers the last seen display name per alliance so inferred
	// records can carry names even when the triggering item has none.
	names map[int64]string

	out   []event.ReconciledEvent
	flags []event.Flag
}

// NewReconciler creates a reconciler with a fresh tracker and sequencer.
func NewReconciler(opts ReconcileOptions, index *ground.Index) *Reconciler {
	if index == nil {
		index = ground.NewIndex(nil)
	}
	return &Reconciler{
		opts:    opts,
		ground:  index,
		tracker: NewTracker(),
		seq:     NewSequencer(),
		names:   make(map[int64]string),
	}
}

// Tracker exposes the live state map. After Reconcile returns it holds the
// final open set, which tests cross-check against the frame index.
func (r *Reconciler) Tracker() *Tracker {
	return r.tracker
}

// Reconcile merges the given streams and replays them in order, returning
// the reconciled log (sorted by timestamp, sequence, id) and the flags
// accumulated along the way.
//
// Merge order is (timestamp, source priority, sub-sequence, source ref):
// bot events outrank archive deltas, which outrank deletion markers, at
// identical timestamps.
func (r *Reconciler) Reconcile(streams ...[]event.NormalizedEvent) ([]event.ReconciledEvent, []event.Flag) {
	var merged []event.NormalizedEvent
	for _, stream := range streams {
		merged = append(merged, stream...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := &merged[i], &merged[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if pa, pb := sourcePriority(a), sourcePriority(b); pa != pb {
			return pa < pb
		}
		if a.SubSeq != b.SubSeq {
			return a.SubSeq < b.SubSeq
		}
		return a.SourceRef < b.SourceRef
	})

	slog.Debug("replaying merged stream", "items", len(merged))

	for i := range merged {
		item := &merged[i]
		r.flushExpired(item.Timestamp)
		r.rememberName(item.FromID, item.FromName)
		r.rememberName(item.ToID, item.ToName)

		if item.Action == event.ActionZeroMembers {
			r.applyDeletionMarker(item)
			continue
		}
		r.replayItem(item)
	}

	// Close out relationships that expired after the last observed event.
	r.flushExpired(unboundedFuture)

	sort.SliceStable(r.out, func(i, j int) bool {
		a, b := &r.out[i], &r.out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.EventSequence != b.EventSequence {
			return a.EventSequence < b.EventSequence
		}
		return a.EventID < b.EventID
	})

	slog.Info("reconciliation complete",
		"events", len(r.out),
		"flags", len(r.flags),
		"open_relationships", r.tracker.Len(),
	)
	return r.out, r.flags
}

// sourcePriority orders sources at identical timestamps: direct observation
// first, snapshot inference second, coarse deletion markers last.
func sourcePriority(ev *event.NormalizedEvent) int {
	switch {
	case ev.Action == event.ActionZeroMembers:
		return 2
	case ev.Source == event.SourceBot:
		return 0
	case ev.Source == event.SourceArchiveDelta:
		return 1
	default:
		return 2
	}
}

// replayItem processes one non-marker item: canonicalize, infer a missing
// type, mutate the tracker, and emit.
func (r *Reconciler) replayItem(item *event.NormalizedEvent) {
	action := event.CanonicalAction(string(item.Action))
	pair := pairOf(item)

	treatyType := r.inferTypeIfNeeded(item, action, pair)
	if treatyType == "" {
		r.flags = append(r.flags, event.WarningFlag("empty_treaty_type_after_inference", item.SourceRef, map[string]any{
			"action": string(action),
		}))
		return
	}
	if treatyType == "UNKNOWN" {
		r.flags = append(r.flags, event.WarningFlag("unknown_treaty_type_event", item.SourceRef, nil))
	}

	switch {
	case action == event.ActionSigned:
		expiresAt, valid := event.ExpiryAt(item.Timestamp, item.TimeRemainingTurns)
		r.tracker.Open(pair, treatyType, item.Timestamp, expiresAt, valid, item.SourceRef)
	case action == event.ActionExtended:
		expiresAt, valid := event.ExpiryAt(item.Timestamp, item.TimeRemainingTurns)
		r.tracker.Refresh(pair, treatyType, item.Timestamp, expiresAt, valid, item.SourceRef)
	case action.Terminal():
		r.tracker.Close(pair, treatyType)
	}

	out := *item
	out.Action = action
	out.TreatyType = treatyType
	out.FromName = r.resolveName(item.FromID, item.FromName)
	out.ToName = r.resolveName(item.ToID, item.ToName)
	r.emit(out, item.Timestamp)
}

// applyDeletionMarker closes every open relationship touching the vanished
// alliance, emitting one inferred cancellation per closed relationship.
// When deletion inference is disabled the marker is consumed silently (the
// pre-item expiry flush has already run).
func (r *Reconciler) applyDeletionMarker(item *event.NormalizedEvent) {
	if !r.opts.InferDeletion {
		return
	}
	closed := r.tracker.CloseAllForEntity(item.FromID)
	for _, entry := range closed {
		r.emit(event.NormalizedEvent{
			Timestamp:       item.Timestamp,
			Action:          event.ActionInferredCancelled,
			TreatyType:      entry.Key.Type,
			FromID:          entry.Key.Pair.Min,
			FromName:        r.resolveName(entry.Key.Pair.Min, ""),
			ToID:            entry.Key.Pair.Max,
			ToName:          r.resolveName(entry.Key.Pair.Max, ""),
			PairMinID:       entry.Key.Pair.Min,
			PairMaxID:       entry.Key.Pair.Max,
			Source:          event.SourceDeletionInferred,
			SourceRef:       item.SourceRef,
			Confidence:      event.ConfidenceMedium,
			Inferred:        true,
			InferenceReason: "alliance_membership_zero",
		}, item.Timestamp)
	}
	if len(closed) > 0 {
		slog.Debug("deletion marker expanded",
			"alliance_id", item.FromID,
			"closed", len(closed),
			"source_ref", item.SourceRef,
		)
	}
}

// flushExpired emits inferred cancellations for every relationship whose
// known expiry is at or before now. Disabled unless expiry inference is on;
// relationships with no known expiry never auto-close.
func (r *Reconciler) flushExpired(now time.Time) {
	if !r.opts.InferExpiry {
		return
	}
	for _, entry := range r.tracker.DueForExpiry(now) {
		r.tracker.Close(entry.Key.Pair, entry.Key.Type)
		r.emit(event.NormalizedEvent{
			Timestamp:       entry.State.ExpiresAt,
			Action:          event.ActionInferredCancelled,
			TreatyType:      entry.Key.Type,
			FromID:          entry.Key.Pair.Min,
			FromName:        r.resolveName(entry.Key.Pair.Min, ""),
			ToID:            entry.Key.Pair.Max,
			ToName:          r.resolveName(entry.Key.Pair.Max, ""),
			PairMinID:       entry.Key.Pair.Min,
			PairMaxID:       entry.Key.Pair.Max,
			Source:          event.SourceExpiryInferred,
			SourceRef:       entry.State.LastSourceRef,
			Confidence:      event.ConfidenceLow,
			Inferred:        true,
			InferenceReason: "time_remaining_elapsed_without_terminal_event",
		}, entry.State.ExpiresAt)
	}
}

// inferTypeIfNeeded resolves an empty or UNKNOWN treaty type from the pair's
// open state. With exactly one open candidate and a terminal or extension
// action, the candidate is adopted with an info flag. An extension with no
// single candidate gets a warning and stays empty.
func (r *Reconciler) inferTypeIfNeeded(item *event.NormalizedEvent, action event.Action, pair PairKey) string {
	treatyType := event.NormTreatyType(item.TreatyType)
	if treatyType != "" && treatyType != "UNKNOWN" {
		return treatyType
	}

	candidates := r.tracker.CandidateTypes(pair)
	if len(candidates) == 1 && inferableAction(action) {
		inferred := candidates[0]
		r.flags = append(r.flags, event.InfoFlag("inferred_missing_treaty_type", item.SourceRef, map[string]any{
			"action":        string(action),
			"inferred_type": inferred,
		}))
		return inferred
	}

	if action == event.ActionExtended {
		r.flags = append(r.flags, event.WarningFlag("extended_without_inferable_type", item.SourceRef, map[string]any{
			"candidate_types": candidates,
		}))
	}
	return treatyType
}

func inferableAction(action event.Action) bool {
	switch action {
	case event.ActionExtended, event.ActionCancelled, event.ActionExpired, event.ActionEnded:
		return true
	}
	return false
}

// emit annotates a record with grounding, sequence, and identity, then
// appends it to the output log.
func (r *Reconciler) emit(ev event.NormalizedEvent, at time.Time) {
	rec := event.ReconciledEvent{NormalizedEvent: ev}
	rec.GroundedFrom = r.ground.IsGrounded(ev.FromID, at)
	rec.GroundedTo = r.ground.IsGrounded(ev.ToID, at)
	rec.GroundedKeep = r.opts.Grounding.Keep(rec.GroundedFrom, rec.GroundedTo)
	rec.EventSequence = r.seq.Next()
	rec.EventID = event.ID(&rec)
	r.out = append(r.out, rec)
}

func (r *Reconciler) rememberName(id int64, raw string) {
	if id <= 0 {
		return
	}
	if name := event.CleanName(raw); name != "" {
		r.names[id] = name
	}
}

// resolveName prefers the record's own name, remembering it for later,
// falling back to the last name seen for the alliance.
func (r *Reconciler) resolveName(id int64, preferredRaw string) string {
	if preferred := event.CleanName(preferredRaw); preferred != "" {
		r.names[id] = preferred
		return preferred
	}
	return r.names[id]
}

// FilterGrounded drops records rejected by the grounding policy. A no-op
// for PolicyOff, where every record keeps grounded_keep=true.
func FilterGrounded(events []event.ReconciledEvent, policy ground.Policy) []event.ReconciledEvent {
	if policy == ground.PolicyOff || policy == "" {
		return events
	}
	kept := events[:0:0]
	for _, ev := range events {
		if ev.GroundedKeep {
			kept = append(kept, ev)
		}
	}
	return kept
}
