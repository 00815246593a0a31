package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calyptra/treatyline/internal/event"
	"github.com/calyptra/treatyline/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database   string
	RunID      string
	Pair       string
	TreatyType string
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Query stored reconciliation runs",
		Long: `List stored runs, break one run down by action and source, or print
the stored event history of a single alliance pair.

Example:
  treatyline stats --db runs.db
  treatyline stats --db runs.db --run 018f3c6e-...
  treatyline stats --db runs.db --run 018f3c6e-... --pair 100-200 --type MDP`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "break down a single run by action and source")
	cmd.Flags().StringVar(&opts.Pair, "pair", "", "alliance pair as MIN-MAX, prints that pair's event history (needs --run and --type)")
	cmd.Flags().StringVar(&opts.TreatyType, "type", "", "treaty type for --pair")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	if opts.Pair != "" {
		if opts.RunID == "" || opts.TreatyType == "" {
			return NewExitError(ExitCommandError, "--pair requires --run and --type")
		}
		minID, maxID, err := parsePair(opts.Pair)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --pair", err)
		}
		treatyType := event.NormTreatyType(opts.TreatyType)

		history, err := st.PairHistory(ctx, opts.RunID, minID, maxID, treatyType)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query pair history", err)
		}
		if len(history) == 0 {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("no stored events for pair %d-%d %s in run %s", minID, maxID, treatyType, opts.RunID))
		}

		if opts.Format == "json" {
			return formatter.Success(map[string]any{
				"run_id":      opts.RunID,
				"pair_min_id": minID,
				"pair_max_id": maxID,
				"treaty_type": treatyType,
				"history":     history,
			})
		}
		var b strings.Builder
		fmt.Fprintf(&b, "run %s pair %d-%d %s\n", opts.RunID, minID, maxID, treatyType)
		for _, pe := range history {
			line := fmt.Sprintf("  %d  %s  %s  %s", pe.EventSequence, pe.Timestamp, pe.Action, pe.Source)
			if pe.Inferred {
				line += "  inferred"
			}
			fmt.Fprintln(&b, line)
		}
		return formatter.Success(strings.TrimRight(b.String(), "\n"))
	}

	if opts.RunID != "" {
		byAction, err := st.CountsByAction(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query run", err)
		}
		bySource, err := st.CountsBySource(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query run", err)
		}
		byType, err := st.CountsByType(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query run", err)
		}
		if len(byAction) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID))
		}

		if opts.Format == "json" {
			return formatter.Success(map[string]any{
				"run_id":           opts.RunID,
				"counts_by_action": byAction,
				"counts_by_source": bySource,
				"counts_by_type":   byType,
			})
		}
		var b strings.Builder
		fmt.Fprintf(&b, "run %s\n", opts.RunID)
		writeCounts(&b, "action", byAction)
		writeCounts(&b, "source", bySource)
		writeCounts(&b, "type", byType)
		return formatter.Success(strings.TrimRight(b.String(), "\n"))
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"runs": runs})
	}
	if len(runs) == 0 {
		return formatter.Success("no stored runs")
	}
	var b strings.Builder
	for _, run := range runs {
		fmt.Fprintf(&b, "%s  %s  events=%d flags=%d\n", run.RunID, run.GeneratedAt, run.EventsTotal, run.FlagsTotal)
	}
	return formatter.Success(strings.TrimRight(b.String(), "\n"))
}

// parsePair splits an "A-B" alliance pair and normalizes it to min-max order.
func parsePair(raw string) (minID, maxID int64, err error) {
	left, right, found := strings.Cut(raw, "-")
	if !found {
		return 0, 0, fmt.Errorf("pair %q must be two alliance ids joined by '-'", raw)
	}
	a, err := strconv.ParseInt(strings.TrimSpace(left), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("pair %q: %w", raw, err)
	}
	b, err := strconv.ParseInt(strings.TrimSpace(right), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("pair %q: %w", raw, err)
	}
	if a <= 0 || b <= 0 {
		return 0, 0, fmt.Errorf("pair %q: alliance ids must be positive", raw)
	}
	minID, maxID = event.NormPair(a, b)
	return minID, maxID, nil
}

func writeCounts(b *strings.Builder, dimension string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(b, "  %s %s: %d\n", dimension, key, counts[key])
	}
}
