package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleEvent() ReconciledEvent {
	return ReconciledEvent{
		NormalizedEvent: NormalizedEvent{
			Timestamp:  time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
			Action:     ActionSigned,
			TreatyType: "MDP",
			PairMinID:  100,
			PairMaxID:  200,
			Source:     SourceBot,
			SourceRef:  "bot:42",
		},
		EventSequence: 7,
	}
}

func TestEventIDDeterminism(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()

	assert.Equal(t, ID(&a), ID(&b), "identical events must hash identically")
	assert.Len(t, ID(&a), 20, "event IDs are 20 hex characters")
}

func TestEventIDChangesWithInput(t *testing.T) {
	base := sampleEvent()
	baseID := ID(&base)

	action := sampleEvent()
	action.Action = ActionCancelled
	assert.NotEqual(t, baseID, ID(&action))

	seq := sampleEvent()
	seq.EventSequence = 8
	assert.NotEqual(t, baseID, ID(&seq))

	ts := sampleEvent()
	ts.Timestamp = ts.Timestamp.Add(time.Second)
	assert.NotEqual(t, baseID, ID(&ts))

	pair := sampleEvent()
	pair.PairMaxID = 201
	assert.NotEqual(t, baseID, ID(&pair))
}

func TestEventIDDistinguishesSubSeq(t *testing.T) {
	// The two halves of an upgrade expansion differ only in sub-sequence
	// once action and type are held equal; the hash must still separate
	// them.
	a := sampleEvent()
	a.SubSeq = 0
	b := sampleEvent()
	b.SubSeq = 1

	assert.NotEqual(t, ID(&a), ID(&b))
}

func TestEventIDTimezoneInsensitive(t *testing.T) {
	utc := sampleEvent()

	est := sampleEvent()
	est.Timestamp = est.Timestamp.In(time.FixedZone("EST", -5*3600))

	assert.Equal(t, ID(&utc), ID(&est), "IDs hash the UTC instant, not the zone")
}
