package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/treatyline/internal/event"
)

func TestDeletionMarkersSingleWindow(t *testing.T) {
	markers, flags, err := DeletionMarkers([]CensusRoster{
		{Day: "2025-02-01", AllianceIDs: []int64{10, 20}},
		{Day: "2025-02-02", AllianceIDs: []int64{20}},
	}, 1)
	require.NoError(t, err)
	require.Empty(t, flags)
	require.Len(t, markers, 1)

	m := markers[0]
	assert.Equal(t, event.ActionZeroMembers, m.Action)
	assert.Equal(t, int64(10), m.FromID)
	assert.Equal(t, int64(10), m.ToID)
	assert.Equal(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC), m.Timestamp,
		"marker lands on the first absent day")
	assert.Equal(t, "alliances:10:2025-02-02", m.SourceRef)
	assert.Equal(t, event.SourceCensus, m.Source)
	assert.Equal(t, event.ConfidenceMedium, m.Confidence)
	assert.True(t, m.Inferred)
}

func TestDeletionMarkersRequiresFullWindow(t *testing.T) {
	// Absent one day but back the next: not a deletion at window 2.
	markers, _, err := DeletionMarkers([]CensusRoster{
		{Day: "2025-02-01", AllianceIDs: []int64{10}},
		{Day: "2025-02-02", AllianceIDs: []int64{}},
		{Day: "2025-02-03", AllianceIDs: []int64{10}},
	}, 2)
	require.NoError(t, err)
	assert.Empty(t, markers)

	// Absent for the whole window: confirmed.
	markers, _, err = DeletionMarkers([]CensusRoster{
		{Day: "2025-02-01", AllianceIDs: []int64{10}},
		{Day: "2025-02-02", AllianceIDs: []int64{}},
		{Day: "2025-02-03", AllianceIDs: []int64{}},
	}, 2)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC), markers[0].Timestamp)
}

func TestDeletionMarkersAtMostOnePerAlliance(t *testing.T) {
	markers, _, err := DeletionMarkers([]CensusRoster{
		{Day: "2025-02-01", AllianceIDs: []int64{10}},
		{Day: "2025-02-02", AllianceIDs: []int64{}},
		{Day: "2025-02-03", AllianceIDs: []int64{10}},
		{Day: "2025-02-04", AllianceIDs: []int64{}},
		{Day: "2025-02-05", AllianceIDs: []int64{}},
	}, 1)
	require.NoError(t, err)
	require.Len(t, markers, 1, "only the first confirmed deletion counts")
	assert.Equal(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC), markers[0].Timestamp)
}

func TestDeletionMarkersTooFewDays(t *testing.T) {
	markers, _, err := DeletionMarkers([]CensusRoster{
		{Day: "2025-02-01", AllianceIDs: []int64{10}},
	}, 1)
	require.NoError(t, err)
	assert.Empty(t, markers, "a single census day can never confirm a deletion")
}

func TestDeletionMarkersInvalidAllianceID(t *testing.T) {
	_, flags, err := DeletionMarkers([]CensusRoster{
		{Day: "2025-02-01", AllianceIDs: []int64{0, -3, 10}},
		{Day: "2025-02-02", AllianceIDs: []int64{10}},
	}, 1)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, "census_invalid_alliance_id", flags[0].Name)
}

func TestDeletionMarkersBadDayIsStructural(t *testing.T) {
	_, _, err := DeletionMarkers([]CensusRoster{{Day: "Feb 1"}}, 1)
	require.Error(t, err)
}

func TestDeletionMarkersDeterministicOrder(t *testing.T) {
	rosters := []CensusRoster{
		{Day: "2025-02-01", AllianceIDs: []int64{30, 10, 20}},
		{Day: "2025-02-02", AllianceIDs: []int64{}},
	}
	markers, _, err := DeletionMarkers(rosters, 1)
	require.NoError(t, err)
	require.Len(t, markers, 3)
	assert.Equal(t, int64(10), markers[0].FromID)
	assert.Equal(t, int64(20), markers[1].FromID)
	assert.Equal(t, int64(30), markers[2].FromID)
}
