// cmd/inspect.go
package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ColonelBlimp/fxprobe/internal/audio"
	"github.com/ColonelBlimp/fxprobe/internal/grid"
	"github.com/ColonelBlimp/fxprobe/internal/unit"
	"github.com/spf13/cobra"
)

var gridLimit int

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Print the run grid without measuring",
	Args:  cobra.NoArgs,
	RunE:  printGrid,
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List the parameters of the selected unit",
	Args:  cobra.NoArgs,
	RunE:  printParams,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices usable by the loopback unit",
	Args:  cobra.NoArgs,
	RunE:  printDevices,
}

func init() {
	gridCmd.Flags().IntVarP(&gridLimit, "limit", "n", 20, "runs to list (0 for all)")
	rootCmd.AddCommand(gridCmd, paramsCmd, devicesCmd)
}

func printGrid(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	specs, unknown := s.BucketSpecs()
	if len(unknown) > 0 {
		newLogger(cmd.ErrOrStderr(), s.Debug).Warn("unknown bucket strategy, using Linear", "strategies", unknown)
	}
	runs := grid.Build(specs, s.InputGainBucketsDB)
	names := grid.Names(specs)

	w := cmd.OutOrStdout()
	total := time.Duration(float64(len(runs)) * s.Seconds * float64(time.Second))
	fmt.Fprintf(w, "%d runs (%d parameter combinations x %d gains), %gs each, %v of signal\n",
		len(runs), len(runs)/max(len(s.InputGainBucketsDB), 1), len(s.InputGainBucketsDB), s.Seconds, total)
	for _, spec := range specs {
		fmt.Fprintf(w, "  %s: %s %v\n", spec.ParamName, spec.Strategy, spec.Values())
	}

	shown := runs
	if gridLimit > 0 && len(shown) > gridLimit {
		shown = shown[:gridLimit]
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	head := append(append([]string{"runId"}, names...), "inputGainDb")
	fmt.Fprintln(tw, strings.Join(head, "\t"))
	for _, r := range shown {
		cells := []string{fmt.Sprint(r.ID)}
		for _, v := range r.ParamVector(names) {
			cells = append(cells, fmt.Sprintf("%.4g", v))
		}
		cells = append(cells, fmt.Sprintf("%g", r.InputGainDB))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(shown) < len(runs) {
		fmt.Fprintf(w, "... %d more\n", len(runs)-len(shown))
	}
	return nil
}

func printParams(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	factory, err := unit.NewFactory(s.Unit, unitSetup(s))
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(unit.Names(), ", "))
	}
	u, err := factory()
	if err != nil {
		return err
	}
	if c, ok := u.(io.Closer); ok {
		defer c.Close()
	}

	w := cmd.OutOrStdout()
	params := u.Parameters()
	fmt.Fprintf(w, "%s: %d parameters\n", u.Name(), len(params))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, p := range params {
		fmt.Fprintf(tw, "  [%d]\t%s\t%.4f\n", i, p.Name, p.Value)
	}
	return tw.Flush()
}

func printDevices(cmd *cobra.Command, _ []string) error {
	devices, err := audio.ListDevices()
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	w := cmd.OutOrStdout()
	if len(devices) == 0 {
		fmt.Fprintln(w, "No audio devices found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "index\tkind\tname\t")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "(default)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Kind, d.Name, def)
	}
	return tw.Flush()
}
