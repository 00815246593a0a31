package engine

import (
	"time"

	"github.com/calyptra/treatyline/internal/config"
	"github.com/calyptra/treatyline/internal/event"
)

// Summary is the run-summary artifact: totals, per-dimension counts, and
// the effective configuration, so a consumer can tell how the log was
// produced without re-deriving it.
type Summary struct {
	GeneratedAt    time.Time      `json:"generated_at" msgpack:"generated_at"`
	RunID          string         `json:"run_id" msgpack:"run_id"`
	Parameters     config.Options `json:"parameters" msgpack:"parameters"`
	EventsTotal    int            `json:"events_total" msgpack:"events_total"`
	FlagsTotal     int            `json:"flags_total" msgpack:"flags_total"`
	CountsByAction map[string]int `json:"counts_by_action" msgpack:"counts_by_action"`
	CountsByType   map[string]int `json:"counts_by_type" msgpack:"counts_by_type"`
	CountsBySource map[string]int `json:"counts_by_source" msgpack:"counts_by_source"`
}

// Summarize counts the final log by action, treaty type, and source.
func Summarize(events []event.ReconciledEvent, flags []event.Flag, opts config.Options, runID string, generatedAt time.Time) Summary {
	summary := Summary{
		GeneratedAt:    generatedAt,
		RunID:          runID,
		Parameters:     opts,
		EventsTotal:    len(events),
		FlagsTotal:     len(flags),
		CountsByAction: make(map[string]int),
		CountsByType:   make(map[string]int),
		CountsBySource: make(map[string]int),
	}
	for _, ev := range events {
		summary.CountsByAction[string(ev.Action)]++
		summary.CountsByType[ev.TreatyType]++
		summary.CountsBySource[string(ev.Source)]++
	}
	return summary
}
