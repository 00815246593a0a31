package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calyptra/treatyline/internal/artifact"
	"github.com/calyptra/treatyline/internal/config"
	"github.com/calyptra/treatyline/internal/engine"
	"github.com/calyptra/treatyline/internal/event"
	"github.com/calyptra/treatyline/internal/ground"
	"github.com/calyptra/treatyline/internal/ingest"
	"github.com/calyptra/treatyline/internal/store"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	BotPath     string
	ArchivePath string
	CensusPath  string
	ConfigPath  string
	OutDir      string
	Database    string
	DryRun      bool

	// Per-field config overrides, applied only when the flag was set.
	Grounding     string
	InferExpiry   bool
	InferDeletion bool
	FilterNoise   bool
	CollapseChurn bool
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge input sources into the canonical event log",
		Long: `Merge bot logs, archive snapshots, and census rosters into the
reconciled event log, run summary, flags, and frame index artifacts.

Example:
  treatyline reconcile --bot bot.json --archive archive.json --out ./dist
  treatyline reconcile --bot bot.json --archive archive.json \
      --census alliances.json --config run.yaml --out ./dist --db runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BotPath, "bot", "", "path to bot log JSON (required)")
	cmd.Flags().StringVar(&opts.ArchivePath, "archive", "", "path to archive snapshots JSON (required)")
	cmd.Flags().StringVar(&opts.CensusPath, "census", "", "path to alliance census rosters JSON")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML run configuration")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "output directory for artifacts")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store (optional)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute and summarize without writing artifacts")

	cmd.Flags().StringVar(&opts.Grounding, "grounding", "", "override grounding policy (off|semi|strict)")
	cmd.Flags().BoolVar(&opts.InferExpiry, "infer-expiry", false, "override: infer expiry events")
	cmd.Flags().BoolVar(&opts.InferDeletion, "infer-deletion", false, "override: infer deletion cancellations")
	cmd.Flags().BoolVar(&opts.FilterNoise, "filter-noise", false, "override: filter opposite-action noise")
	cmd.Flags().BoolVar(&opts.CollapseChurn, "collapse-churn", false, "override: collapse churn clusters")

	_ = cmd.MarkFlagRequired("bot")
	_ = cmd.MarkFlagRequired("archive")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	cfg, err := loadRunConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	policy, err := ground.ParsePolicy(cfg.Grounding)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	if !opts.DryRun && opts.OutDir == "" {
		return NewExitError(ExitCommandError, "either --out or --dry-run is required")
	}

	// Load inputs. Bot and archive files are required and structural
	// problems in them are fatal; the census file is optional unless
	// deletion inference needs it.
	slog.Info("loading bot log", "path", opts.BotPath)
	botRecords, err := ingest.LoadBotRecords(opts.BotPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load bot log", err)
	}

	slog.Info("loading archive snapshots", "path", opts.ArchivePath)
	archive, err := ingest.LoadArchive(opts.ArchivePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load archive", err)
	}

	var rosters []ingest.CensusRoster
	if opts.CensusPath != "" {
		slog.Info("loading census rosters", "path", opts.CensusPath)
		rosters, err = ingest.LoadCensusRosters(opts.CensusPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load census", err)
		}
	} else if cfg.InferDeletion {
		return NewExitError(ExitCommandError, "deletion inference requires --census")
	}

	var flags []event.Flag

	botEvents, botFlags := ingest.NormalizeBot(botRecords)
	flags = append(flags, botFlags...)
	slog.Info("bot log normalized", "records", len(botRecords), "events", len(botEvents), "flags", len(botFlags))

	archiveEvents := archive.DeltaEvents()
	if first, last, ok := archive.Bounds(); ok {
		slog.Info("archive diffed", "snapshots", archive.Len(), "delta_events", len(archiveEvents),
			"first", first.Format(time.RFC3339), "last", last.Format(time.RFC3339))
	} else {
		slog.Info("archive diffed", "snapshots", archive.Len(), "delta_events", len(archiveEvents))
	}

	var markers []event.NormalizedEvent
	if len(rosters) > 0 {
		var censusFlags []event.Flag
		markers, censusFlags, err = ingest.DeletionMarkers(rosters, cfg.DeletionConfirmationDays)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to derive deletion markers", err)
		}
		flags = append(flags, censusFlags...)
		slog.Info("census processed", "rosters", len(rosters), "deletion_markers", len(markers))
	}

	reconciler := engine.NewReconciler(engine.ReconcileOptions{
		Grounding:     policy,
		InferExpiry:   cfg.InferExpiry,
		InferDeletion: cfg.InferDeletion,
	}, ground.NewIndex(archive.GroundingFrames()))

	events, reconcileFlags := reconciler.Reconcile(botEvents, archiveEvents, markers)
	flags = append(flags, reconcileFlags...)
	slog.Info("streams reconciled", "events", len(events), "open_treaties", reconciler.Tracker().Len())

	events = engine.FilterGrounded(events, policy)

	if cfg.FilterNoise {
		var noiseFlags []event.Flag
		events, noiseFlags = engine.FilterNoise(events, cfg.NoiseWindowHours, cfg.KeepNoise)
		flags = append(flags, noiseFlags...)
		slog.Info("noise filtered", "events", len(events), "flags", len(noiseFlags))
	}

	if cfg.CollapseChurn {
		var churnFlags []event.Flag
		events, churnFlags = engine.CollapseChurn(events, engine.ChurnOptions{
			WindowMinutes:        cfg.ChurnWindowMinutes,
			MinEvents:            cfg.ChurnMinEvents,
			MaxNet:               cfg.ChurnMaxNet,
			MinRepeatedTimestamp: cfg.ChurnMinRepeatedTimestamps,
		})
		flags = append(flags, churnFlags...)
		slog.Info("churn collapsed", "events", len(events), "flags", len(churnFlags))
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate run id", err)
	}

	summary := engine.Summarize(events, flags, cfg, runID.String(), time.Now().UTC())
	frameIndex := engine.BuildFrameIndex(events)

	if opts.DryRun {
		if opts.Format == "json" {
			return formatter.Success(summary)
		}
		return formatter.Success(renderSummary(summary, frameIndex))
	}

	writer := artifact.Writer{MaxBytes: cfg.MaxArtifactBytes}
	outputs := map[string]any{
		artifact.EventsFile:     events,
		artifact.SummaryFile:    summary,
		artifact.FlagsFile:      flags,
		artifact.FrameIndexFile: frameIndex,
	}
	if err := writer.WriteSet(opts.OutDir, outputs); err != nil {
		var sizeErr *artifact.SizeError
		if errors.As(err, &sizeErr) {
			return WrapExitError(ExitFailure, "artifact size ceiling exceeded", err)
		}
		return WrapExitError(ExitCommandError, "failed to write artifacts", err)
	}
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	manifest, err := artifact.BuildManifest(opts.OutDir, names, summary.GeneratedAt)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build manifest", err)
	}
	if err := artifact.WriteManifest(opts.OutDir, manifest); err != nil {
		return WrapExitError(ExitCommandError, "failed to write manifest", err)
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		if err := st.WriteRun(cmd.Context(), summary, events, flags); err != nil {
			return WrapExitError(ExitCommandError, "failed to store run", err)
		}
		slog.Info("run stored", "db", opts.Database, "run_id", summary.RunID)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"run_id":       summary.RunID,
			"dataset_id":   manifest.DatasetID,
			"events_total": summary.EventsTotal,
			"flags_total":  summary.FlagsTotal,
			"out_dir":      opts.OutDir,
		})
	}
	return formatter.Success(fmt.Sprintf("run %s: %d events, %d flags written to %s (dataset %s)",
		summary.RunID, summary.EventsTotal, summary.FlagsTotal, opts.OutDir, manifest.DatasetID))
}

// loadRunConfig layers the config file over defaults, then applies any
// explicitly set override flags and re-validates.
func loadRunConfig(opts *ReconcileOptions, cmd *cobra.Command) (config.Options, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Options{}, err
		}
		cfg = loaded
	}

	flagSet := cmd.Flags()
	if flagSet.Changed("grounding") {
		cfg.Grounding = opts.Grounding
	}
	if flagSet.Changed("infer-expiry") {
		cfg.InferExpiry = opts.InferExpiry
	}
	if flagSet.Changed("infer-deletion") {
		cfg.InferDeletion = opts.InferDeletion
	}
	if flagSet.Changed("filter-noise") {
		cfg.FilterNoise = opts.FilterNoise
	}
	if flagSet.Changed("collapse-churn") {
		cfg.CollapseChurn = opts.CollapseChurn
	}

	if err := cfg.Validate(); err != nil {
		return config.Options{}, err
	}
	return cfg, nil
}

// renderSummary produces the human-readable dry-run report.
func renderSummary(summary engine.Summary, index *engine.FrameIndex) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (dry run)\n", summary.RunID)
	fmt.Fprintf(&b, "  events: %d\n", summary.EventsTotal)
	fmt.Fprintf(&b, "  flags:  %d\n", summary.FlagsTotal)
	fmt.Fprintf(&b, "  days:   %d\n", len(index.DayKeys))
	fmt.Fprintf(&b, "  edges:  %d\n", len(index.EdgeDict))
	for _, line := range countLines("action", summary.CountsByAction) {
		b.WriteString(line)
	}
	for _, line := range countLines("source", summary.CountsBySource) {
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func countLines(dimension string, counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s %s: %d\n", dimension, key, counts[key]))
	}
	return lines
}
