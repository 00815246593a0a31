package event

import "time"

// Action is a canonical lowercase action token.
type Action string

const (
	ActionSigned            Action = "signed"
	ActionExtended          Action = "extended"
	ActionCancelled         Action = "cancelled"
	ActionExpired           Action = "expired"
	ActionEnded             Action = "ended"
	ActionInferredCancelled Action = "inferred_cancelled"

	// ActionZeroMembers marks a census-derived deletion marker: the alliance
	// had zero observed members for the configured confirmation window.
	ActionZeroMembers Action = "alliance_zero_members"
)

// Terminal reports whether the action closes a relationship.
func (a Action) Terminal() bool {
	switch a {
	case ActionCancelled, ActionExpired, ActionEnded, ActionInferredCancelled:
		return true
	}
	return false
}

// Source identifies which collector produced a record.
type Source string

const (
	SourceBot          Source = "bot"
	SourceArchiveDelta Source = "archive_delta"
	SourceCensus       Source = "alliances_census"

	// Sources for records fabricated by the reconciliation engine itself.
	SourceExpiryInferred   Source = "expiry_inferred"
	SourceDeletionInferred Source = "deletion_inferred"
)

// Confidence grades how much a record should be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PermanentTurns is the time_remaining_turns sentinel for a treaty with no
// expiry. A nil turns pointer means the remaining time is unknown.
const PermanentTurns = -1

// NormalizedEvent is one observed fact in the shared pre-reconciliation shape.
//
// SubSeq is an explicit intra-timestamp sub-sequence assigned at normalization
// time. Synthetic upgrade/downgrade halves share timestamp, source, and
// source_ref; SubSeq 0 (the cancelled half) sorts before SubSeq 1 (the signed
// half) without relying on sort stability.
type NormalizedEvent struct {
	Timestamp  time.Time `json:"timestamp" msgpack:"timestamp"`
	Action     Action    `json:"action" msgpack:"action"`
	TreatyType string    `json:"treaty_type" msgpack:"treaty_type"`

	FromID   int64  `json:"from_alliance_id" msgpack:"from_alliance_id"`
	FromName string `json:"from_alliance_name" msgpack:"from_alliance_name"`
	ToID     int64  `json:"to_alliance_id" msgpack:"to_alliance_id"`
	ToName   string `json:"to_alliance_name" msgpack:"to_alliance_name"`

	PairMinID int64 `json:"pair_min_id" msgpack:"pair_min_id"`
	PairMaxID int64 `json:"pair_max_id" msgpack:"pair_max_id"`

	Source    Source `json:"source" msgpack:"source"`
	SourceRef string `json:"source_ref" msgpack:"source_ref"`
	SubSeq    int    `json:"sub_seq" msgpack:"sub_seq"`

	Confidence      Confidence `json:"confidence" msgpack:"confidence"`
	Inferred        bool       `json:"inferred" msgpack:"inferred"`
	InferenceReason string     `json:"inference_reason,omitempty" msgpack:"inference_reason,omitempty"`

	// TimeRemainingTurns is nil when unknown; PermanentTurns (-1) means the
	// treaty never expires. One game turn is two hours.
	TimeRemainingTurns *int `json:"time_remaining_turns" msgpack:"time_remaining_turns"`
}

// ReconciledEvent is the output shape: a NormalizedEvent plus processing
// order, content-addressed identity, grounding, and noise annotations.
type ReconciledEvent struct {
	NormalizedEvent `msgpack:",inline"`

	EventSequence int64  `json:"event_sequence" msgpack:"event_sequence"`
	EventID       string `json:"event_id" msgpack:"event_id"`

	GroundedFrom bool `json:"grounded_from" msgpack:"grounded_from"`
	GroundedTo   bool `json:"grounded_to" msgpack:"grounded_to"`
	GroundedKeep bool `json:"grounded_keep" msgpack:"grounded_keep"`

	NoiseFiltered bool   `json:"noise_filtered" msgpack:"noise_filtered"`
	NoiseReason   string `json:"noise_reason,omitempty" msgpack:"noise_reason,omitempty"`
}

// Severity levels for flags.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Flag is an informational or warning record accumulated across
// normalization, inference, noise filtering, and churn collapsing.
// Recoverable input problems become flags, never errors.
type Flag struct {
	Severity string         `json:"severity" msgpack:"severity"`
	Name     string         `json:"flag" msgpack:"flag"`
	EventRef string         `json:"event_ref,omitempty" msgpack:"event_ref,omitempty"`
	Detail   map[string]any `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

// InfoFlag builds an info-severity flag.
func InfoFlag(name, eventRef string, detail map[string]any) Flag {
	return Flag{Severity: SeverityInfo, Name: name, EventRef: eventRef, Detail: detail}
}

// WarningFlag builds a warning-severity flag.
func WarningFlag(name, eventRef string, detail map[string]any) Flag {
	return Flag{Severity: SeverityWarning, Name: name, EventRef: eventRef, Detail: detail}
}
