package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calyptra/treatyline/internal/engine"
	"github.com/calyptra/treatyline/internal/event"
)

// WriteRun persists a complete run (summary row, event log, flags) in one
// transaction. Re-writing the same run is a no-op: all inserts use
// ON CONFLICT DO NOTHING on the natural keys.
func (s *Store) WriteRun(ctx context.Context, summary engine.Summary, events []event.ReconciledEvent, flags []event.Flag) error {
	params, err := json.Marshal(summary.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, generated_at, parameters, events_total, flags_total)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING
	`, summary.RunID, summary.GeneratedAt.UTC().Format(time.RFC3339), string(params), summary.EventsTotal, summary.FlagsTotal)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			run_id, event_id, event_sequence, timestamp, action, treaty_type,
			from_alliance_id, from_alliance_name, to_alliance_id, to_alliance_name,
			pair_min_id, pair_max_id, source, source_ref, sub_seq,
			confidence, inferred, inference_reason, time_remaining_turns,
			grounded_from, grounded_to, grounded_keep, noise_filtered, noise_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, event_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer eventStmt.Close()

	for i := range events {
		ev := &events[i]
		var reason any
		if ev.InferenceReason != "" {
			reason = ev.InferenceReason
		}
		var turns any
		if ev.TimeRemainingTurns != nil {
			turns = *ev.TimeRemainingTurns
		}
		var noiseReason any
		if ev.NoiseReason != "" {
			noiseReason = ev.NoiseReason
		}
		_, err = eventStmt.ExecContext(ctx,
			summary.RunID, ev.EventID, ev.EventSequence,
			ev.Timestamp.UTC().Format(time.RFC3339), string(ev.Action), ev.TreatyType,
			ev.FromID, ev.FromName, ev.ToID, ev.ToName,
			ev.PairMinID, ev.PairMaxID, string(ev.Source), ev.SourceRef, ev.SubSeq,
			string(ev.Confidence), ev.Inferred, reason, turns,
			ev.GroundedFrom, ev.GroundedTo, ev.GroundedKeep,
			ev.NoiseFiltered, noiseReason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event %s: %w", ev.EventID, err)
		}
	}

	flagStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flags (run_id, flag_index, severity, name, event_ref, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, flag_index) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare flag insert: %w", err)
	}
	defer flagStmt.Close()

	for i, fl := range flags {
		var detail any
		if len(fl.Detail) > 0 {
			encoded, err := json.Marshal(fl.Detail)
			if err != nil {
				return fmt.Errorf("failed to encode flag detail: %w", err)
			}
			detail = string(encoded)
		}
		var eventRef any
		if fl.EventRef != "" {
			eventRef = fl.EventRef
		}
		_, err = flagStmt.ExecContext(ctx, summary.RunID, i, fl.Severity, fl.Name, eventRef, detail)
		if err != nil {
			return fmt.Errorf("failed to insert flag %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}
