package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/grid/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the local environment cache and reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			reports, _ := cmd.Flags().GetBool("reports")
			tools, _ := cmd.Flags().GetBool("tools")
			all, _ := cmd.Flags().GetBool("all")

			opts := app.CleanOptions{ConfigPath: configPath}
			switch {
			case all:
				opts.Cache = true
				opts.Reports = true
				opts.Tools = true
			case reports || tools:
				opts.Reports = reports
				opts.Tools = tools
			default:
				opts.Cache = true
			}

			return c.app.Clean(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringP("config", "c", ".", "Configuration file, or a directory to search for grid.yaml")
	cmd.Flags().BoolP("reports", "r", false, "Remove published local reports")
	cmd.Flags().BoolP("tools", "t", false, "Remove the nix resolution cache")
	cmd.Flags().BoolP("all", "a", false, "Remove the cache, environments, reports and nix resolution cache")

	return cmd
}
