// cmd/root.go
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ColonelBlimp/fxprobe/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "fxprobe",
	Short: "Measure an audio effect across a grid of parameter settings",
	Long: `fxprobe drives an audio unit with a known excitation signal at every
combination of parameter and input-gain buckets, and writes per-run
measurements (levels, transfer curves, frequency response, THD) as tables.`,
	SilenceUsage: true,
}

// flagKeys maps persistent flags to the config keys they override
var flagKeys = map[string]string{
	"out":        "output_dir",
	"unit":       "unit",
	"seconds":    "seconds",
	"samplerate": "sample_rate",
	"blocksize":  "block_size",
	"workers":    "workers",
	"sink":       "sink",
	"debug":      "debug",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml, then ~/.config/fxprobe/config.yaml)")
	pf.StringP("out", "o", "results", "output directory")
	pf.StringP("unit", "u", "identity", "unit under test")
	pf.Float64("seconds", 5, "length of every run in seconds")
	pf.Float64("samplerate", 48000, "sample rate in Hz")
	pf.Int("blocksize", 256, "samples per processing block")
	pf.IntP("workers", "j", 1, "runs measured in parallel")
	pf.String("sink", "csv", "table output: csv or sqlite")
	pf.BoolP("debug", "D", false, "enable debug output")
}

// initConfig loads the config file and binds flags. Bindings are made here,
// after viper is initialized, so a viper.Reset does not lose them.
func initConfig() {
	configErr = config.Init(cfgFile)
	if configErr != nil {
		return
	}
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			configErr = err
			return
		}
	}
}

// loadSettings returns validated settings or the config error.
func loadSettings() (*config.Settings, error) {
	if configErr != nil {
		return nil, fmt.Errorf("config error: %w", configErr)
	}
	return config.Get()
}

// newLogger writes text logs to w, at debug level when debug is set.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
