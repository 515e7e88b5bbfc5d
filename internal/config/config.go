// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/fxprobe/internal/bucket"
	"github.com/ColonelBlimp/fxprobe/internal/signal"
)

const (
	AppName       = "fxprobe"
	ConfigType    = "yaml"
	DefaultConfig = `# fxprobe measurement configuration

# Timing
sample_rate: 48000      # Sample rate in Hz
block_size: 256         # Samples per unit-under-test call
seconds: 5              # Length of every run (samples = seconds * sample_rate)
channels: 2             # 1=mono, 2=stereo

# Excitation signal
signal_type: sine       # sine, noise or sweep
sine_frequency: 1000    # Hz, also the THD fundamental
sweep_start_hz: 20      # Log sweep start
sweep_end_hz: 20000     # Log sweep end
noise_seed: 0           # 0 = random; otherwise every run's noise is reproducible

# Sweep grid: every parameter combination is measured at every input gain
input_gain_buckets_db: [-24, -12, -6, 0]
parameter_buckets:
  - param_name: drive
    strategy: Linear    # Linear, Log, EdgeAndCenter or ExplicitValues
    min: 0
    max: 1
    num_buckets: 5
  - param_name: mix
    strategy: ExplicitValues
    values: [1]

# Analysis
analyzers: [RmsPeak, TransferCurve, Thd]
                        # Also: RawCsv, LinearResponse (noise/sweep only), Wav
transfer_curve_bins: 512
linear_response_fft_size: 4096
thd_fft_size: 2048

# Unit under test
unit: softclip          # identity, gain, softclip, lowpass or loopback (audio hardware)
device_index: -1        # loopback only: -1 for default device

# Output
output_dir: results
sink: csv               # csv or sqlite
workers: 1              # parallel runs; loopback requires 1
debug: false            # Enable debug logging
`
)

// BucketSetting is one entry of parameter_buckets
type BucketSetting struct {
	ParamName  string    `mapstructure:"param_name"`
	Strategy   string    `mapstructure:"strategy"`
	Min        float64   `mapstructure:"min"`
	Max        float64   `mapstructure:"max"`
	NumBuckets int       `mapstructure:"num_buckets"`
	Values     []float64 `mapstructure:"values"`
}

// Settings holds all application configuration
type Settings struct {
	// Timing
	SampleRate float64 `mapstructure:"sample_rate"`
	BlockSize  int     `mapstructure:"block_size"`
	Seconds    float64 `mapstructure:"seconds"`
	Channels   int     `mapstructure:"channels"`

	// Excitation signal
	SignalType    string  `mapstructure:"signal_type"`
	SineFrequency float64 `mapstructure:"sine_frequency"`
	SweepStartHz  float64 `mapstructure:"sweep_start_hz"`
	SweepEndHz    float64 `mapstructure:"sweep_end_hz"`
	NoiseSeed     uint64  `mapstructure:"noise_seed"`

	// Sweep grid
	InputGainBucketsDB []float64       `mapstructure:"input_gain_buckets_db"`
	ParameterBuckets   []BucketSetting `mapstructure:"parameter_buckets"`

	// Analysis
	Analyzers             []string `mapstructure:"analyzers"`
	TransferCurveBins     int      `mapstructure:"transfer_curve_bins"`
	LinearResponseFFTSize int      `mapstructure:"linear_response_fft_size"`
	THDFFTSize            int      `mapstructure:"thd_fft_size"`

	// Unit under test
	Unit        string `mapstructure:"unit"`
	DeviceIndex int    `mapstructure:"device_index"`

	// Output
	OutputDir string `mapstructure:"output_dir"`
	Sink      string `mapstructure:"sink"`
	Workers   int    `mapstructure:"workers"`
	Debug     bool   `mapstructure:"debug"`
}

func setDefaults() {
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("block_size", 256)
	viper.SetDefault("seconds", 5.0)
	viper.SetDefault("channels", 2)
	viper.SetDefault("signal_type", "sine")
	viper.SetDefault("sine_frequency", 1000.0)
	viper.SetDefault("sweep_start_hz", 20.0)
	viper.SetDefault("sweep_end_hz", 20000.0)
	viper.SetDefault("noise_seed", 0)
	viper.SetDefault("input_gain_buckets_db", []float64{0})
	viper.SetDefault("analyzers", []string{"RmsPeak", "TransferCurve"})
	viper.SetDefault("transfer_curve_bins", 512)
	viper.SetDefault("linear_response_fft_size", 4096)
	viper.SetDefault("thd_fft_size", 2048)
	viper.SetDefault("unit", "identity")
	viper.SetDefault("device_index", -1)
	viper.SetDefault("output_dir", "results")
	viper.SetDefault("sink", "csv")
	viper.SetDefault("workers", 1)
	viper.SetDefault("debug", false)
}

// Init initializes Viper with defaults and a config file.
// An explicit cfgFile may be any format viper reads (yaml, json, toml).
// Otherwise the search order is the current directory, then ~/.config/fxprobe/,
// and a default config is written there when nothing is found.
func Init(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	viper.SetConfigType(ConfigType)
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		if err = ensureConfigExists(filepath.Join(configDir, AppName)); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// BucketSpecs converts parameter_buckets to bucket specs. Unrecognized
// strategy names fall back to Linear and are returned so they can be logged.
func (s *Settings) BucketSpecs() (specs []bucket.Spec, unknown []string) {
	specs = make([]bucket.Spec, 0, len(s.ParameterBuckets))
	for _, b := range s.ParameterBuckets {
		strategy, ok := bucket.ParseStrategy(b.Strategy)
		if !ok {
			unknown = append(unknown, b.Strategy)
		}
		specs = append(specs, bucket.Spec{
			ParamName:  strings.TrimSpace(b.ParamName),
			Strategy:   strategy,
			Min:        b.Min,
			Max:        b.Max,
			NumBuckets: b.NumBuckets,
			Explicit:   b.Values,
		})
	}
	return specs, unknown
}

// SignalConfig returns the generator setup shared by every run.
func (s *Settings) SignalConfig() (signal.Config, error) {
	t, err := signal.ParseType(s.SignalType)
	if err != nil {
		return signal.Config{}, err
	}
	return signal.Config{
		Type:          t,
		SampleRate:    s.SampleRate,
		SineFrequency: s.SineFrequency,
		SweepStartHz:  s.SweepStartHz,
		SweepEndHz:    s.SweepEndHz,
		Duration:      s.Seconds,
		NoiseSeed:     s.NoiseSeed,
	}, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Timing
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.BlockSize < 16 || s.BlockSize > 65536 {
		errs = append(errs, fmt.Errorf("block_size must be between 16 and 65536, got %d", s.BlockSize))
	}
	if s.Seconds <= 0 || s.Seconds > 3600 {
		errs = append(errs, fmt.Errorf("seconds must be in (0, 3600], got %v", s.Seconds))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}

	// Excitation signal
	nyquist := s.SampleRate / 2
	t, err := signal.ParseType(s.SignalType)
	if err != nil {
		errs = append(errs, fmt.Errorf("signal_type must be sine, noise or sweep, got %q", s.SignalType))
	}
	switch t {
	case signal.TypeSine:
		if s.SineFrequency <= 0 || s.SineFrequency >= nyquist {
			errs = append(errs, fmt.Errorf("sine_frequency (%v Hz) must be between 0 and the Nyquist frequency (%v Hz)", s.SineFrequency, nyquist))
		}
	case signal.TypeSweep:
		if s.SweepStartHz <= 0 || s.SweepStartHz >= nyquist {
			errs = append(errs, fmt.Errorf("sweep_start_hz (%v Hz) must be between 0 and the Nyquist frequency (%v Hz)", s.SweepStartHz, nyquist))
		}
		if s.SweepEndHz <= 0 || s.SweepEndHz > nyquist {
			errs = append(errs, fmt.Errorf("sweep_end_hz (%v Hz) must be between 0 and the Nyquist frequency (%v Hz)", s.SweepEndHz, nyquist))
		}
	}

	// Sweep grid
	if len(s.InputGainBucketsDB) == 0 {
		errs = append(errs, errors.New("input_gain_buckets_db must list at least one gain"))
	}
	for _, g := range s.InputGainBucketsDB {
		if g > 24 {
			errs = append(errs, fmt.Errorf("input gain %v dB exceeds +24 dB", g))
		}
	}
	seen := make(map[string]bool)
	for i, b := range s.ParameterBuckets {
		name := strings.ToLower(strings.TrimSpace(b.ParamName))
		if name == "" {
			errs = append(errs, fmt.Errorf("parameter_buckets[%d]: param_name is required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("parameter_buckets[%d]: duplicate param_name %q", i, b.ParamName))
		}
		seen[name] = true
		if b.NumBuckets < 0 {
			errs = append(errs, fmt.Errorf("parameter_buckets[%d]: num_buckets must not be negative, got %d", i, b.NumBuckets))
		}
	}

	// Analysis
	if s.TransferCurveBins < 1 || s.TransferCurveBins > 1<<16 {
		errs = append(errs, fmt.Errorf("transfer_curve_bins must be between 1 and 65536, got %d", s.TransferCurveBins))
	}
	if !isPowerOfTwo(s.LinearResponseFFTSize) || s.LinearResponseFFTSize < 64 {
		errs = append(errs, fmt.Errorf("linear_response_fft_size must be a power of 2 >= 64, got %d", s.LinearResponseFFTSize))
	}
	if !isPowerOfTwo(s.THDFFTSize) || s.THDFFTSize < 64 {
		errs = append(errs, fmt.Errorf("thd_fft_size must be a power of 2 >= 64, got %d", s.THDFFTSize))
	}

	// Unit under test
	if strings.TrimSpace(s.Unit) == "" {
		errs = append(errs, errors.New("unit is required"))
	}
	if strings.EqualFold(strings.TrimSpace(s.Unit), "loopback") && s.Workers != 1 {
		errs = append(errs, fmt.Errorf("unit loopback drives one audio device and requires workers: 1, got %d", s.Workers))
	}

	// Output
	if strings.TrimSpace(s.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	switch strings.ToLower(strings.TrimSpace(s.Sink)) {
	case "csv", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("sink must be csv or sqlite, got %q", s.Sink))
	}
	if s.Workers < 1 || s.Workers > 256 {
		errs = append(errs, fmt.Errorf("workers must be between 1 and 256, got %d", s.Workers))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
