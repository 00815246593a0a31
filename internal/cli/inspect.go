package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calyptra/treatyline/internal/artifact"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Verify bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <artifact-dir>",
		Short: "Inspect and verify a produced artifact directory",
		Long: `Read the frame index from an artifact directory, print its shape,
and optionally verify its internal consistency against the event log.

Example:
  treatyline inspect ./dist
  treatyline inspect --verify ./dist`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "verify frame index consistency")

	return cmd
}

func runInspect(opts *InspectOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	indexPath := filepath.Join(dir, artifact.FrameIndexFile)
	index, err := artifact.ReadFrameIndex(indexPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read frame index", err)
	}

	report := map[string]any{
		"schema_version": index.SchemaVersion,
		"days":           len(index.DayKeys),
		"edges":          len(index.EdgeDict),
	}
	if len(index.DayKeys) > 0 {
		report["first_day"] = index.DayKeys[0]
		report["last_day"] = index.DayKeys[len(index.DayKeys)-1]
		report["events"] = index.EventEndOffsetByDay[len(index.EventEndOffsetByDay)-1]
	}

	if opts.Verify {
		live, err := artifact.VerifyFrameIndex(index)
		if err != nil {
			return WrapExitError(ExitFailure, "frame index verification failed", err)
		}
		report["verified"] = true
		report["live_edges_final"] = live
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "frame index %s (schema v%d)\n", indexPath, index.SchemaVersion)
	fmt.Fprintf(&b, "  days:  %d\n", len(index.DayKeys))
	fmt.Fprintf(&b, "  edges: %d\n", len(index.EdgeDict))
	if len(index.DayKeys) > 0 {
		fmt.Fprintf(&b, "  range: %s .. %s\n", index.DayKeys[0], index.DayKeys[len(index.DayKeys)-1])
		fmt.Fprintf(&b, "  events: %d\n", index.EventEndOffsetByDay[len(index.EventEndOffsetByDay)-1])
	}
	if verified, ok := report["verified"]; ok && verified == true {
		fmt.Fprintf(&b, "  verified: %d edges live at final day\n", report["live_edges_final"])
	}
	return formatter.Success(strings.TrimRight(b.String(), "\n"))
}
