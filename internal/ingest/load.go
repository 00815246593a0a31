package ingest

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadBotRecords reads a JSON array of bot records. A file that is missing
// or not valid JSON is a structural error and aborts the run.
func LoadBotRecords(path string) ([]BotRecord, error) {
	var records []BotRecord
	if err := loadJSON(path, &records); err != nil {
		return nil, fmt.Errorf("load bot records: %w", err)
	}
	return records, nil
}

// archiveFile matches the materialized snapshot archive layout: one file
// holding every parseable snapshot.
type archiveFile struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// LoadArchive reads the snapshot archive file and reduces it for diffing and
// grounding. Missing or unparsable archive data is fatal: without snapshots
// there is nothing to reconcile against.
func LoadArchive(path string) (*Archive, error) {
	var file archiveFile
	if err := loadJSON(path, &file); err != nil {
		return nil, fmt.Errorf("load archive snapshots: %w", err)
	}
	archive, err := NewArchive(file.Snapshots)
	if err != nil {
		return nil, fmt.Errorf("load archive snapshots: %w", err)
	}
	return archive, nil
}

// LoadCensusRosters reads a JSON array of census rosters.
func LoadCensusRosters(path string) ([]CensusRoster, error) {
	var rosters []CensusRoster
	if err := loadJSON(path, &rosters); err != nil {
		return nil, fmt.Errorf("load census rosters: %w", err)
	}
	return rosters, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
