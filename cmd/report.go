// cmd/report.go
package cmd

import (
	"fmt"

	"github.com/ColonelBlimp/fxprobe/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	summaryTop  int
	plotMaxRuns int
	plotOutDir  string
)

var summaryCmd = &cobra.Command{
	Use:   "summary [dir]",
	Short: "Summarize result tables by input gain",
	Long: `Summary reads grid_rms_peak.csv, grid_thd.csv and grid_transfer_curves.csv
from dir (default: output_dir) and prints level, clipping, THD and
transfer-curve statistics grouped by input gain.`,
	Args: cobra.MaximumNArgs(1),
	RunE: printSummary,
}

var plotCmd = &cobra.Command{
	Use:   "plot [dir]",
	Short: "Render PNG charts from result tables",
	Args:  cobra.MaximumNArgs(1),
	RunE:  writePlots,
}

func init() {
	summaryCmd.Flags().IntVar(&summaryTop, "top", 10, "highest-THD windows to list")
	plotCmd.Flags().IntVar(&plotMaxRuns, "max-runs", 50, "curves drawn per chart (0 for all)")
	plotCmd.Flags().StringVar(&plotOutDir, "to", "", "directory for images (default: the results dir)")
	rootCmd.AddCommand(summaryCmd, plotCmd)
}

// resultsDir is the positional dir, else the configured output_dir.
// The rest of the config is not validated since nothing is measured.
func resultsDir(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if configErr != nil {
		return "", fmt.Errorf("config error: %w", configErr)
	}
	return viper.GetString("output_dir"), nil
}

func printSummary(cmd *cobra.Command, args []string) error {
	dir, err := resultsDir(args)
	if err != nil {
		return err
	}
	s, err := report.Summarize(dir, summaryTop)
	if err != nil {
		return err
	}
	return s.Write(cmd.OutOrStdout())
}

func writePlots(cmd *cobra.Command, args []string) error {
	dir, err := resultsDir(args)
	if err != nil {
		return err
	}
	out := plotOutDir
	if out == "" {
		out = dir
	}
	files, err := report.Plot(dir, out, report.PlotOptions{MaxRuns: plotMaxRuns})
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", f)
	}
	return err
}
