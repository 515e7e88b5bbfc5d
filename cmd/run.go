// cmd/run.go
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ColonelBlimp/fxprobe/internal/analyzer"
	"github.com/ColonelBlimp/fxprobe/internal/config"
	"github.com/ColonelBlimp/fxprobe/internal/engine"
	"github.com/ColonelBlimp/fxprobe/internal/grid"
	"github.com/ColonelBlimp/fxprobe/internal/sink"
	"github.com/ColonelBlimp/fxprobe/internal/unit"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Measure the unit over the whole parameter grid",
	Long: `Run builds the parameter grid, measures every run and writes the
analyzer tables to the output directory. Ctrl-C stops between runs.`,
	Args: cobra.NoArgs,
	RunE: runMeasurement,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runMeasurement(cmd *cobra.Command, _ []string) (err error) {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), s.Debug)

	specs, unknown := s.BucketSpecs()
	for _, name := range unknown {
		logger.Warn("unknown bucket strategy, using Linear", "strategy", name)
	}
	sigCfg, err := s.SignalConfig()
	if err != nil {
		return err
	}
	runs := grid.Build(specs, s.InputGainBucketsDB)
	names := grid.Names(specs)

	factory, err := unit.NewFactory(s.Unit, unitSetup(s))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := sink.New(s.Sink)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	analyzers, err := analyzer.Build(s.Analyzers, analyzer.Options{
		ParamNames:    names,
		SampleRate:    s.SampleRate,
		Channels:      s.Channels,
		Signal:        sigCfg.Type,
		Fundamental:   s.SineFrequency,
		TransferBins:  s.TransferCurveBins,
		LinearFFTSize: s.LinearResponseFFTSize,
		THDFFTSize:    s.THDFFTSize,
		OutputDir:     s.OutputDir,
		Sink:          out,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Signal:     sigCfg,
		BlockSize:  s.BlockSize,
		Seconds:    s.Seconds,
		Channels:   s.Channels,
		Workers:    s.Workers,
		ParamNames: names,
	}, factory, analyzers, engine.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("measurement setup", "unit", s.Unit, "signal", s.SignalType, "output", s.OutputDir)
	start := time.Now()
	if err := eng.Measure(ctx, runs, s.OutputDir); err != nil {
		return err
	}
	logger.Info("measurement complete", "runs", eng.Completed(), "elapsed", time.Since(start).Round(time.Millisecond))

	fmt.Fprintf(cmd.OutOrStdout(), "Measured %d runs, results in %s\n", eng.Completed(), s.OutputDir)
	return nil
}

func unitSetup(s *config.Settings) unit.Setup {
	return unit.Setup{
		SampleRate:  s.SampleRate,
		BlockSize:   s.BlockSize,
		NumChannels: s.Channels,
		DeviceIndex: s.DeviceIndex,
	}
}
