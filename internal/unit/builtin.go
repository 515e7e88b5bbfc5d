// internal/unit/builtin.go
package unit

import (
	"fmt"
	"math"

	"github.com/tphakala/simd/f64"

	"github.com/ColonelBlimp/fxprobe/internal/signal"
)

// Gain range of the "gain" unit, mapped from the normalized parameter
const (
	minGainDB = -24.0
	maxGainDB = 24.0
	// maxDrive is the softclip pre-gain at drive=1
	maxDrive = 20.0
	// lowpass cutoff sweeps logarithmically between these bounds
	minCutoffHz = 20.0
	maxCutoffHz = 20000.0
)

func init() {
	Register("identity", func(Setup) (Unit, error) { return &Identity{}, nil })
	Register("gain", func(Setup) (Unit, error) { return NewGain(), nil })
	Register("softclip", func(Setup) (Unit, error) { return NewSoftClip(), nil })
	Register("lowpass", func(s Setup) (Unit, error) { return NewLowpass(s.SampleRate), nil })
}

// Identity passes audio through unchanged and has no parameters.
type Identity struct{}

func (*Identity) Name() string            { return "identity" }
func (*Identity) Parameters() []Parameter { return nil }
func (*Identity) Process(*signal.Buffer) error {
	return nil
}
func (*Identity) Reset() {}

// SetParameter always fails: identity has no parameters.
func (*Identity) SetParameter(name string, _ float64) error {
	return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

// Gain scales every channel; parameter "gain" maps [0,1] to [-24, +24] dB.
type Gain struct {
	params ParamSet
}

// NewGain creates a unity-gain unit.
func NewGain() *Gain {
	return &Gain{params: NewParamSet(map[string]float64{"gain": 0.5})}
}

func (g *Gain) Name() string            { return "gain" }
func (g *Gain) Parameters() []Parameter { return g.params.List() }
func (g *Gain) Reset()                  {}

func (g *Gain) SetParameter(name string, value float64) error {
	return g.params.Set(name, value)
}

// Factor returns the current linear gain
func (g *Gain) Factor() float64 {
	db := minGainDB + g.params.Get("gain")*(maxGainDB-minGainDB)
	return signal.DBToLinear(db)
}

func (g *Gain) Process(buf *signal.Buffer) error {
	k := g.Factor()
	for ch := 0; ch < buf.NumChannels(); ch++ {
		c := buf.Channel(ch)
		f64.Scale(c, c, k)
	}
	return nil
}

// SoftClip is a tanh waveshaper with dry/wet mix.
// "drive" maps [0,1] to a pre-gain of [1, 20]; output is normalized so a
// full-scale input stays at full scale.
type SoftClip struct {
	params ParamSet
}

// NewSoftClip creates a softclip with light drive, fully wet.
func NewSoftClip() *SoftClip {
	return &SoftClip{params: NewParamSet(map[string]float64{"drive": 0.25, "mix": 1})}
}

func (s *SoftClip) Name() string            { return "softclip" }
func (s *SoftClip) Parameters() []Parameter { return s.params.List() }
func (s *SoftClip) Reset()                  {}

func (s *SoftClip) SetParameter(name string, value float64) error {
	return s.params.Set(name, value)
}

func (s *SoftClip) Process(buf *signal.Buffer) error {
	drive := 1 + s.params.Get("drive")*(maxDrive-1)
	norm := 1 / math.Tanh(drive)
	mix := s.params.Get("mix")
	for ch := 0; ch < buf.NumChannels(); ch++ {
		c := buf.Channel(ch)
		for i, x := range c {
			c[i] = (1-mix)*x + mix*norm*math.Tanh(drive*x)
		}
	}
	return nil
}

// Lowpass is a one-pole lowpass per channel; "cutoff" maps [0,1]
// logarithmically to [20 Hz, 20 kHz], clamped below Nyquist.
type Lowpass struct {
	params     ParamSet
	sampleRate float64
	state      []float64
}

// NewLowpass creates a lowpass with the cutoff fully open.
func NewLowpass(sampleRate float64) *Lowpass {
	return &Lowpass{
		params:     NewParamSet(map[string]float64{"cutoff": 1}),
		sampleRate: sampleRate,
	}
}

func (l *Lowpass) Name() string            { return "lowpass" }
func (l *Lowpass) Parameters() []Parameter { return l.params.List() }

func (l *Lowpass) SetParameter(name string, value float64) error {
	return l.params.Set(name, value)
}

func (l *Lowpass) Reset() {
	clear(l.state)
}

// CutoffHz returns the current cutoff frequency
func (l *Lowpass) CutoffHz() float64 {
	logMin, logMax := math.Log(minCutoffHz), math.Log(maxCutoffHz)
	hz := math.Exp(logMin + l.params.Get("cutoff")*(logMax-logMin))
	return math.Min(hz, 0.49*l.sampleRate)
}

func (l *Lowpass) Process(buf *signal.Buffer) error {
	if len(l.state) != buf.NumChannels() {
		l.state = make([]float64, buf.NumChannels())
	}
	a := 1 - math.Exp(-2*math.Pi*l.CutoffHz()/l.sampleRate)
	for ch := 0; ch < buf.NumChannels(); ch++ {
		c := buf.Channel(ch)
		y := l.state[ch]
		for i, x := range c {
			y += a * (x - y)
			c[i] = y
		}
		l.state[ch] = y
	}
	return nil
}
