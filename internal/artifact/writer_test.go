package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/treatyline/internal/engine"
	"github.com/calyptra/treatyline/internal/event"
)

func sampleEvents() []event.ReconciledEvent {
	return []event.ReconciledEvent{
		{
			NormalizedEvent: event.NormalizedEvent{
				Timestamp:  time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
				Action:     event.ActionSigned,
				TreatyType: "MDP",
				FromID:     1, FromName: "Alpha",
				ToID: 2, ToName: "Beta",
				PairMinID: 1, PairMaxID: 2,
				Source:     event.SourceBot,
				SourceRef:  "bot:0",
				Confidence: event.ConfidenceHigh,
			},
			EventSequence: 0,
			EventID:       "abc123",
			GroundedKeep:  true,
		},
	}
}

func TestWriteSetRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, EventsFile)

	w := Writer{}
	require.NoError(t, w.WriteSet(dir, map[string]any{EventsFile: sampleEvents()}))

	loaded, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	want := sampleEvents()[0]
	got := loaded[0]
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp instant survives encoding")
	got.Timestamp = want.Timestamp
	assert.Equal(t, want, got)
}

func TestWriteSetSizeCeiling(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")

	w := Writer{MaxBytes: 8}
	err := w.WriteSet(dir, map[string]any{EventsFile: sampleEvents()})

	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(8), sizeErr.MaxBytes)
	assert.Greater(t, sizeErr.Size, sizeErr.MaxBytes)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "nothing is written when the ceiling is hit")
}

func TestWriteSetViolationLeavesNoPartialOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")

	// The small artifact sorts first and would fit on its own; the run must
	// still produce nothing once any artifact breaks the ceiling.
	w := Writer{MaxBytes: 64}
	err := w.WriteSet(dir, map[string]any{
		"a_small.msgpack": []int{1, 2, 3},
		"z_large.msgpack": strings.Repeat("x", 1024),
	})

	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Contains(t, sizeErr.Path, "z_large")

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "a violation must not leave earlier artifacts behind")
}

func TestWriteSetCreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deep")

	w := Writer{}
	require.NoError(t, w.WriteSet(dir, map[string]any{EventsFile: sampleEvents()}))

	_, err := os.Stat(filepath.Join(dir, EventsFile))
	require.NoError(t, err)
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]int{"zulu": 1, "alpha": 2, "mike": 3}

	first, err := Marshal(value)
	require.NoError(t, err)
	second, err := Marshal(value)
	require.NoError(t, err)

	assert.Equal(t, first, second, "sorted map keys make encoding reproducible")
}

func TestFrameIndexRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FrameIndexFile)

	index := engine.BuildFrameIndex(sampleEvents())
	w := Writer{}
	require.NoError(t, w.WriteSet(dir, map[string]any{FrameIndexFile: index}))

	loaded, err := ReadFrameIndex(path)
	require.NoError(t, err)
	assert.Equal(t, index, loaded)
}

func TestReadFrameIndexRejectsSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FrameIndexFile)

	index := engine.BuildFrameIndex(sampleEvents())
	index.SchemaVersion = 99
	w := Writer{}
	require.NoError(t, w.WriteSet(dir, map[string]any{FrameIndexFile: index}))

	_, err := ReadFrameIndex(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version 99")
}

func TestVerifyFrameIndex(t *testing.T) {
	index := &engine.FrameIndex{
		SchemaVersion:       engine.FrameIndexSchemaVersion,
		DayKeys:             []string{"2025-01-01", "2025-01-02"},
		EventEndOffsetByDay: []int64{2, 3},
		EdgeDict: []engine.EdgeRecord{
			{EventIndex: 0, PairMinID: 1, PairMaxID: 2, TreatyType: "MDP"},
		},
		ActiveEdgeDeltaByDay: []engine.DayDelta{
			{AddEdgeIDs: []int64{0}, RemoveEdgeIDs: []int64{}},
			{AddEdgeIDs: []int64{}, RemoveEdgeIDs: []int64{0}},
		},
	}
	live, err := VerifyFrameIndex(index)
	require.NoError(t, err)
	assert.Equal(t, 0, live)
}

func TestVerifyFrameIndexDetectsCorruption(t *testing.T) {
	base := func() *engine.FrameIndex {
		return &engine.FrameIndex{
			SchemaVersion:       engine.FrameIndexSchemaVersion,
			DayKeys:             []string{"2025-01-01"},
			EventEndOffsetByDay: []int64{1},
			EdgeDict: []engine.EdgeRecord{
				{EventIndex: 0, PairMinID: 1, PairMaxID: 2, TreatyType: "MDP"},
			},
			ActiveEdgeDeltaByDay: []engine.DayDelta{
				{AddEdgeIDs: []int64{0}, RemoveEdgeIDs: []int64{}},
			},
		}
	}

	mismatched := base()
	mismatched.EventEndOffsetByDay = nil
	_, err := VerifyFrameIndex(mismatched)
	assert.Error(t, err, "parallel array lengths must agree")

	unknownEdge := base()
	unknownEdge.ActiveEdgeDeltaByDay[0].AddEdgeIDs = []int64{5}
	_, err = VerifyFrameIndex(unknownEdge)
	assert.Error(t, err, "edge ids must be in range")

	deadRemoval := base()
	deadRemoval.ActiveEdgeDeltaByDay[0] = engine.DayDelta{AddEdgeIDs: []int64{}, RemoveEdgeIDs: []int64{0}}
	_, err = VerifyFrameIndex(deadRemoval)
	assert.Error(t, err, "removing an edge that is not live is corruption")
}

func TestBuildManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.msgpack"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.msgpack"), []byte("beta"), 0o644))

	generatedAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	manifest, err := BuildManifest(dir, []string{"a.msgpack", "b.msgpack"}, generatedAt)
	require.NoError(t, err)

	assert.Len(t, manifest.Files, 2)
	assert.Equal(t, int64(5), manifest.Files["a.msgpack"].SizeBytes)
	assert.Len(t, manifest.Files["a.msgpack"].SHA256, 64)
	assert.Len(t, manifest.DatasetID, 16)

	// Identical contents produce the same dataset ID.
	again, err := BuildManifest(dir, []string{"a.msgpack", "b.msgpack"}, generatedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, manifest.DatasetID, again.DatasetID)
}

func TestBuildManifestMissingFile(t *testing.T) {
	_, err := BuildManifest(t.TempDir(), []string{"absent.msgpack"}, time.Now())
	require.Error(t, err)
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.msgpack"), []byte("alpha"), 0o644))

	manifest, err := BuildManifest(dir, []string{"a.msgpack"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, WriteManifest(dir, manifest))

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"datasetId\"")
}
