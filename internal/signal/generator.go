// internal/signal/generator.go
// Package signal provides the synthetic excitation signals used to drive a
// unit under test. Generators keep phase state across calls, so one instance
// must serve exactly one run.
package signal

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrUnknownType indicates the signal type name is not recognized
	ErrUnknownType = errors.New("unknown signal type")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidFrequency indicates a frequency must be positive
	ErrInvalidFrequency = errors.New("frequency must be positive")
)

const twoPi = 2 * math.Pi

// Type names the excitation signal.
type Type string

const (
	TypeSine  Type = "sine"
	TypeNoise Type = "noise"
	TypeSweep Type = "sweep"
)

// ParseType matches name case-insensitively.
func ParseType(name string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(name))); t {
	case TypeSine, TypeNoise, TypeSweep:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Generator writes frames into every channel of a caller-owned buffer.
type Generator interface {
	// Fill writes n samples to each channel of buf, starting at index 0
	Fill(buf *Buffer, n int)
}

// Config holds the per-type parameters shared by all runs.
// All values should come from the application config file.
type Config struct {
	// Type selects the generator (from config: signal_type)
	Type Type
	// SampleRate in Hz (from config: sample_rate)
	SampleRate float64
	// SineFrequency in Hz (from config: sine_frequency)
	SineFrequency float64
	// SweepStartHz and SweepEndHz bound the log sweep (from config: sweep_start_hz, sweep_end_hz)
	SweepStartHz float64
	SweepEndHz   float64
	// Duration of the sweep in seconds (from config: seconds)
	Duration float64
	// NoiseSeed seeds noise runs reproducibly; 0 draws a random seed (from config: noise_seed)
	NoiseSeed uint64
}

// New builds a fresh generator for one run at the given linear amplitude.
func New(cfg Config, amplitude float64, runID int) (Generator, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	switch cfg.Type {
	case TypeSine:
		if cfg.SineFrequency <= 0 {
			return nil, ErrInvalidFrequency
		}
		return NewSine(cfg.SineFrequency, cfg.SampleRate, amplitude), nil
	case TypeNoise:
		return NewNoise(amplitude, cfg.NoiseSeed, uint64(runID)), nil
	case TypeSweep:
		if cfg.SweepStartHz <= 0 || cfg.SweepEndHz <= 0 {
			return nil, ErrInvalidFrequency
		}
		return NewSweep(cfg.SweepStartHz, cfg.SweepEndHz, cfg.Duration, cfg.SampleRate, amplitude), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
}

// DBToLinear converts a level in dB to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// fanOut copies channel 0 into every other channel of buf.
func fanOut(buf *Buffer, n int) {
	src := buf.Channel(0)[:n]
	for ch := 1; ch < buf.NumChannels(); ch++ {
		copy(buf.Channel(ch)[:n], src)
	}
}
