// internal/unit/unit_test.go
package unit

import (
	"errors"
	"math"
	"testing"

	"github.com/ColonelBlimp/fxprobe/internal/signal"
)

func filledBuffer(channels, frames int, v float64) *signal.Buffer {
	buf := signal.NewBuffer(channels, frames)
	for ch := 0; ch < channels; ch++ {
		c := buf.Channel(ch)
		for i := range c {
			c[i] = v
		}
	}
	return buf
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		name string
		// distinct is false for zero-size units, whose pointers may compare equal
		distinct bool
	}{
		{"identity", false},
		{"Gain", true},
		{" softclip ", true},
		{"LOWPASS", true},
	}
	for _, tt := range tests {
		f, err := NewFactory(tt.name, Setup{SampleRate: 48000, BlockSize: 256, NumChannels: 2})
		if err != nil {
			t.Fatalf("NewFactory(%q) error = %v", tt.name, err)
		}
		u1, err := f()
		if err != nil {
			t.Fatalf("factory() error = %v", err)
		}
		u2, _ := f()
		if u1 == nil || u2 == nil {
			t.Fatalf("factory for %q returned nil", tt.name)
		}
		if tt.distinct && u1 == u2 {
			t.Errorf("factory for %q returned the same instance twice", tt.name)
		}
	}
}

func TestNewFactory_InstancesDoNotShareState(t *testing.T) {
	f, err := NewFactory("gain", Setup{SampleRate: 48000})
	if err != nil {
		t.Fatalf("NewFactory(gain) error = %v", err)
	}
	u1, _ := f()
	u2, _ := f()
	if err := u1.SetParameter("gain", 1); err != nil {
		t.Fatalf("SetParameter() error = %v", err)
	}
	if got := u2.Parameters()[0].Value; got == 1 {
		t.Errorf("second instance gain = %v, want its default", got)
	}
}

func TestNewFactory_Unknown(t *testing.T) {
	_, err := NewFactory("reverb", Setup{})
	if !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("NewFactory(reverb) error = %v, want ErrUnknownUnit", err)
	}
}

func TestNames_Sorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("Names() not sorted: %v", names)
		}
	}
	if len(names) < 4 {
		t.Errorf("Names() = %v, want at least the 4 built-ins", names)
	}
}

func TestSetParameter(t *testing.T) {
	g := NewGain()

	tests := []struct {
		name    string
		param   string
		value   float64
		want    float64
		wantErr error
	}{
		{"exact name", "gain", 0.75, 0.75, nil},
		{"case and space", "  GAIN ", 0.25, 0.25, nil},
		{"clamped high", "gain", 1.5, 1, nil},
		{"clamped low", "gain", -1, 0, nil},
		{"unknown", "drive", 0.5, 0, ErrUnknownParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.SetParameter(tt.param, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetParameter() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := g.Parameters()[0].Value; got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	u := &Identity{}
	buf := filledBuffer(2, 64, 0.3)
	if err := u.Process(buf); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	for _, v := range buf.Channel(1) {
		if v != 0.3 {
			t.Fatalf("identity changed sample to %v", v)
		}
	}
	if !errors.Is(u.SetParameter("x", 1), ErrUnknownParameter) {
		t.Error("identity accepted a parameter")
	}
}

func TestGain_Process(t *testing.T) {
	tests := []struct {
		norm float64
		want float64
	}{
		{0.5, 1},                      // 0 dB
		{1, math.Pow(10, 24.0/20)},    // +24 dB
		{0, math.Pow(10, -24.0/20)},   // -24 dB
		{0.75, math.Pow(10, 12.0/20)}, // +12 dB
	}

	for _, tt := range tests {
		g := NewGain()
		_ = g.SetParameter("gain", tt.norm)
		buf := filledBuffer(2, 32, 0.1)
		if err := g.Process(buf); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		for ch := 0; ch < 2; ch++ {
			if got := buf.Channel(ch)[7]; math.Abs(got-0.1*tt.want) > 1e-12 {
				t.Errorf("gain %v ch%d = %v, want %v", tt.norm, ch, got, 0.1*tt.want)
			}
		}
	}
}

func TestSoftClip_Bounded(t *testing.T) {
	s := NewSoftClip()
	_ = s.SetParameter("drive", 1)
	buf := filledBuffer(1, 16, 1)
	_ = s.Process(buf)
	if got := buf.Channel(0)[0]; math.Abs(got-1) > 1e-9 {
		t.Errorf("full-scale output = %v, want 1", got)
	}

	buf = filledBuffer(1, 16, 0.1)
	_ = s.Process(buf)
	if got := buf.Channel(0)[0]; got <= 0.1 {
		t.Errorf("driven small signal = %v, want > 0.1", got)
	}

	_ = s.SetParameter("mix", 0)
	buf = filledBuffer(1, 16, 0.1)
	_ = s.Process(buf)
	if got := buf.Channel(0)[0]; math.Abs(got-0.1) > 1e-12 {
		t.Errorf("dry output = %v, want 0.1", got)
	}
}

func TestLowpass_SettlesToDC(t *testing.T) {
	l := NewLowpass(48000)
	_ = l.SetParameter("cutoff", 0.5)
	var last float64
	for range 50 {
		buf := filledBuffer(2, 256, 0.5)
		_ = l.Process(buf)
		last = buf.Channel(1)[255]
	}
	if math.Abs(last-0.5) > 1e-6 {
		t.Errorf("settled output = %v, want 0.5", last)
	}

	l.Reset()
	buf := filledBuffer(2, 1, 0.5)
	_ = l.Process(buf)
	if got := buf.Channel(0)[0]; got >= 0.5 {
		t.Errorf("first sample after Reset = %v, want < 0.5", got)
	}
}

func TestLowpass_CutoffClampedBelowNyquist(t *testing.T) {
	l := NewLowpass(8000)
	if got := l.CutoffHz(); got > 4000 {
		t.Errorf("CutoffHz() = %v, want below Nyquist", got)
	}
}
