package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/treatyline/internal/artifact"
)

// fixtureInputs writes a small but complete input set: a bot log with a
// signing and an upgrade, an archive with two snapshots, and a census where
// one alliance vanishes.
func fixtureInputs(t *testing.T) (botPath, archivePath, censusPath string) {
	t.Helper()
	dir := t.TempDir()

	writeJSON := func(name string, v any) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return path
	}

	botPath = writeJSON("bot.json", []map[string]any{
		{
			"timestamp":          "2025-01-02T10:00:00Z",
			"action":             "signed",
			"treaty_type":        "MDP",
			"from_alliance_id":   1,
			"from_alliance_name": "Alpha",
			"to_alliance_id":     2,
			"to_alliance_name":   "Beta",
		},
		{
			"timestamp":          "2025-01-03T12:00:00Z",
			"action":             "upgraded",
			"treaty_type":        "NAP->MDOAP",
			"from_alliance_id":   1,
			"from_alliance_name": "Alpha",
			"to_alliance_id":     3,
			"to_alliance_name":   "Gamma",
		},
	})

	archivePath = writeJSON("archive.json", map[string]any{
		"snapshots": []map[string]any{
			{
				"date": "2025-01-01T00:00:00Z",
				"nodes": []map[string]any{
					{"id": 1, "label": "Alpha"},
					{"id": 2, "label": "Beta"},
					{"id": 3, "label": "Gamma"},
				},
				"edges": []map[string]any{
					{"from": 1, "to": 3, "title": "NAP"},
				},
			},
			{
				"date": "2025-01-08T00:00:00Z",
				"nodes": []map[string]any{
					{"id": 1, "label": "Alpha"},
					{"id": 2, "label": "Beta"},
				},
				"edges": []map[string]any{
					{"from": 1, "to": 2, "title": "MDP"},
					{"from": 1, "to": 3, "title": "MDOAP"},
				},
			},
		},
	})

	censusPath = writeJSON("census.json", []map[string]any{
		{"day": "2025-01-08", "alliance_ids": []int64{1, 2, 3}},
		{"day": "2025-01-09", "alliance_ids": []int64{1, 2}},
	})

	return botPath, archivePath, censusPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReconcileDryRun(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)

	out, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")
	assert.Contains(t, out, "action signed")
}

func TestReconcileDryRunJSON(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)

	out, err := runCommand(t,
		"--format", "json",
		"reconcile", "--bot", botPath, "--archive", archivePath, "--dry-run")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestReconcileWritesArtifacts(t *testing.T) {
	botPath, archivePath, censusPath := fixtureInputs(t)
	outDir := filepath.Join(t.TempDir(), "dist")

	_, err := runCommand(t,
		"reconcile",
		"--bot", botPath,
		"--archive", archivePath,
		"--census", censusPath,
		"--infer-deletion",
		"--out", outDir)
	require.NoError(t, err)

	for _, name := range []string{
		artifact.EventsFile,
		artifact.SummaryFile,
		artifact.FlagsFile,
		artifact.FrameIndexFile,
		artifact.ManifestFile,
	} {
		_, statErr := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, statErr, "artifact %s should exist", name)
	}

	events, err := artifact.ReadEvents(filepath.Join(outDir, artifact.EventsFile))
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	index, err := artifact.ReadFrameIndex(filepath.Join(outDir, artifact.FrameIndexFile))
	require.NoError(t, err)
	_, err = artifact.VerifyFrameIndex(index)
	assert.NoError(t, err, "produced frame index must verify clean")
}

func TestReconcileThenInspect(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)
	outDir := filepath.Join(t.TempDir(), "dist")

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath, "--out", outDir)
	require.NoError(t, err)

	out, err := runCommand(t, "inspect", "--verify", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "verified")
}

func TestReconcileStoresRuns(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)
	outDir := filepath.Join(t.TempDir(), "dist")
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath,
		"--out", outDir, "--db", dbPath)
	require.NoError(t, err)

	out, err := runCommand(t, "stats", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "events=")
}

func TestStatsPairHistory(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)
	outDir := filepath.Join(t.TempDir(), "dist")
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath,
		"--out", outDir, "--db", dbPath)
	require.NoError(t, err)

	listing, err := runCommand(t, "stats", "--db", dbPath)
	require.NoError(t, err)
	runID := strings.Fields(listing)[0]

	out, err := runCommand(t, "stats", "--db", dbPath, "--run", runID, "--pair", "2-1", "--type", "mdp")
	require.NoError(t, err)
	assert.Contains(t, out, "pair 1-2 MDP", "pair and type are normalized before the lookup")
	assert.Contains(t, out, "signed")
}

func TestStatsPairNeedsRunAndType(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, err := runCommand(t, "stats", "--db", dbPath, "--pair", "1-2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatsPairRejectsMalformed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	for _, pair := range []string{"banana", "1", "1-0", "-3-2"} {
		_, err := runCommand(t, "stats", "--db", dbPath, "--run", "r", "--pair", pair, "--type", "MDP")
		require.Error(t, err, "pair %q", pair)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	}
}

func TestReconcileMissingBotFile(t *testing.T) {
	_, archivePath, _ := fixtureInputs(t)

	_, err := runCommand(t,
		"reconcile", "--bot", "/nonexistent/bot.json", "--archive", archivePath, "--dry-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReconcileRequiresOutOrDryRun(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)

	_, err := runCommand(t, "reconcile", "--bot", botPath, "--archive", archivePath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReconcileDeletionInferenceNeedsCensus(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath,
		"--infer-deletion", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires --census")
}

func TestReconcileInvalidGroundingFlag(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath,
		"--grounding", "sometimes", "--dry-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReconcileSizeCeiling(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)
	outDir := filepath.Join(t.TempDir(), "dist")

	configPath := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("max_artifact_bytes: 4\n"), 0o644))

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath,
		"--config", configPath, "--out", outDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, statErr := os.Stat(outDir)
	assert.True(t, os.IsNotExist(statErr), "an aborted run leaves no partial dataset")
}

func TestReconcileSizeCeilingNoPartialDataset(t *testing.T) {
	botPath, archivePath, _ := fixtureInputs(t)
	outDir := filepath.Join(t.TempDir(), "dist")

	// Large enough that the smallest artifact alone would fit, small enough
	// that the event log cannot. The abort must cover the whole set.
	configPath := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("max_artifact_bytes: 64\n"), 0o644))

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath,
		"--config", configPath, "--out", outDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, statErr := os.Stat(outDir)
	assert.True(t, os.IsNotExist(statErr), "an aborted run leaves no partial dataset")
}

func TestInspectMissingDirectory(t *testing.T) {
	_, err := runCommand(t, "inspect", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatsUnknownRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	botPath, archivePath, _ := fixtureInputs(t)
	outDir := filepath.Join(t.TempDir(), "dist")

	_, err := runCommand(t,
		"reconcile", "--bot", botPath, "--archive", archivePath,
		"--out", outDir, "--db", dbPath)
	require.NoError(t, err)

	_, err = runCommand(t, "stats", "--db", dbPath, "--run", "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
