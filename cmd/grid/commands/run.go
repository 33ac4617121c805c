package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/grid/internal/adapters/detector"
	"go.trai.ch/grid/internal/app"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", ".", "Configuration file, or a directory to search for grid.yaml")
	cmd.Flags().StringSlice("class", nil, "Run only this job class: mandatory or best-effort (repeatable)")
	cmd.Flags().IntP("jobs", "j", 0, "Maximum number of concurrent jobs (default: configured, else CPU count)")
	cmd.Flags().Int("generation", 0, "Override the configured cache generation")
	cmd.Flags().BoolP("no-cache", "n", false, "Bypass the environment cache")
}

func runOptions(cmd *cobra.Command) app.RunOptions {
	configPath, _ := cmd.Flags().GetString("config")
	classes, _ := cmd.Flags().GetStringSlice("class")
	jobs, _ := cmd.Flags().GetInt("jobs")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	opts := app.RunOptions{
		ConfigPath: configPath,
		Classes:    classes,
		Jobs:       jobs,
		NoCache:    noCache,
	}
	if cmd.Flags().Changed("generation") {
		generation, _ := cmd.Flags().GetInt("generation")
		opts.Generation = &generation
	}
	return opts
}

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision environments and run the test suite for every job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outputMode, _ := cmd.Flags().GetString("output")
			ci, _ := cmd.Flags().GetBool("ci")
			if ci {
				outputMode = detector.FlagLinear
			}
			if outputMode != detector.FlagAuto && outputMode != detector.FlagLinear {
				return zerr.With(zerr.Wrap(domain.ErrConfig,
					"invalid --output, expected one of: "+strings.Join(detector.Flags(), ", ")), "output", outputMode)
			}

			opts := runOptions(cmd)
			opts.OutputMode = outputMode
			return c.app.Run(cmd.Context(), opts)
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().StringP("output", "o", detector.FlagAuto, "Output mode: auto or linear")
	cmd.Flags().Bool("ci", false, "Use linear output mode (shorthand for --output=linear)")
	return cmd
}

func (c *CLI) newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the expanded job matrix with cache keys without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Plan(cmd.Context(), runOptions(cmd))
		},
	}
	addSelectionFlags(cmd)
	return cmd
}
