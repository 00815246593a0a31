package store

import (
	"context"
	"fmt"
)

// RunInfo summarizes one stored run.
type RunInfo struct {
	RunID       string
	GeneratedAt string
	EventsTotal int
	FlagsTotal  int
}

// ListRuns returns all stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, generated_at, events_total, flags_total
		FROM runs
		ORDER BY generated_at DESC, run_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		if err := rows.Scan(&info.RunID, &info.GeneratedAt, &info.EventsTotal, &info.FlagsTotal); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// CountsByAction returns event counts grouped by action for one run,
// ordered by action for stable output.
func (s *Store) CountsByAction(ctx context.Context, runID string) (map[string]int, error) {
	return s.groupedCounts(ctx, runID, "action")
}

// CountsBySource returns event counts grouped by source for one run.
func (s *Store) CountsBySource(ctx context.Context, runID string) (map[string]int, error) {
	return s.groupedCounts(ctx, runID, "source")
}

// CountsByType returns event counts grouped by treaty type for one run.
func (s *Store) CountsByType(ctx context.Context, runID string) (map[string]int, error) {
	return s.groupedCounts(ctx, runID, "treaty_type")
}

func (s *Store) groupedCounts(ctx context.Context, runID, column string) (map[string]int, error) {
	// column is one of a fixed set of identifiers above, never user input.
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM events WHERE run_id = ? GROUP BY %s`, column, column)
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query counts by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counts: %w", err)
	}
	return counts, nil
}

// PairHistory returns the stored event log for one alliance pair and treaty
// type in processing order.
func (s *Store) PairHistory(ctx context.Context, runID string, minID, maxID int64, treatyType string) ([]PairEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_sequence, timestamp, action, source, inferred
		FROM events
		WHERE run_id = ? AND pair_min_id = ? AND pair_max_id = ? AND treaty_type = ?
		ORDER BY event_sequence
	`, runID, minID, maxID, treatyType)
	if err != nil {
		return nil, fmt.Errorf("failed to query pair history: %w", err)
	}
	defer rows.Close()

	var history []PairEvent
	for rows.Next() {
		var pe PairEvent
		if err := rows.Scan(&pe.EventSequence, &pe.Timestamp, &pe.Action, &pe.Source, &pe.Inferred); err != nil {
			return nil, fmt.Errorf("failed to scan pair event: %w", err)
		}
		history = append(history, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pair history: %w", err)
	}
	return history, nil
}

// PairEvent is one row of a pair's stored history.
type PairEvent struct {
	EventSequence int64
	Timestamp     string
	Action        string
	Source        string
	Inferred      bool
}
