// internal/signal/sine.go
package signal

import "math"

// Sine is a fixed-frequency tone.
type Sine struct {
	amplitude float64
	increment float64 // 2π·f/sampleRate
	phase     float64
}

// NewSine creates a sine at frequency Hz starting at phase 0.
func NewSine(frequency, sampleRate, amplitude float64) *Sine {
	return &Sine{
		amplitude: amplitude,
		increment: twoPi * frequency / sampleRate,
	}
}

// Fill implements Generator.
func (s *Sine) Fill(buf *Buffer, n int) {
	if buf.NumChannels() == 0 {
		return
	}
	out := buf.Channel(0)
	for i := 0; i < n; i++ {
		out[i] = s.amplitude * math.Sin(s.phase)
		s.phase += s.increment
		if s.phase >= twoPi {
			s.phase -= twoPi
		}
	}
	fanOut(buf, n)
}

// Phase returns the current phase in radians (for testing)
func (s *Sine) Phase() float64 {
	return s.phase
}
