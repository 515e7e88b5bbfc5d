// internal/signal/sweep.go
package signal

import "math"

// Sweep is a logarithmic sine sweep from startHz to endHz over a fixed
// duration, silent once the duration has elapsed.
type Sweep struct {
	amplitude  float64
	sampleRate float64
	startHz    float64
	logStart   float64
	logEnd     float64
	total      int64

	phase   float64
	freq    float64
	current int64
}

// NewSweep creates a sweep and resets it, ready for the first Fill.
func NewSweep(startHz, endHz, duration, sampleRate, amplitude float64) *Sweep {
	s := &Sweep{
		amplitude:  amplitude,
		sampleRate: sampleRate,
		startHz:    startHz,
		logStart:   math.Log(startHz),
		logEnd:     math.Log(endHz),
		total:      int64(duration * sampleRate),
	}
	s.Reset()
	return s
}

// Reset zeroes phase and position and sets the frequency back to startHz.
func (s *Sweep) Reset() {
	s.phase = 0
	s.freq = s.startHz
	s.current = 0
}

// Fill implements Generator.
func (s *Sweep) Fill(buf *Buffer, n int) {
	if buf.NumChannels() == 0 {
		return
	}
	out := buf.Channel(0)
	for i := 0; i < n; i++ {
		if s.current >= s.total {
			out[i] = 0
			continue
		}
		t := float64(s.current) / float64(s.total)
		s.freq = math.Exp(s.logStart + t*(s.logEnd-s.logStart))

		out[i] = s.amplitude * math.Sin(s.phase)
		s.phase += twoPi * s.freq / s.sampleRate
		if s.phase >= twoPi {
			s.phase -= twoPi
		}
		s.current++
	}
	fanOut(buf, n)
}

// Frequency returns the most recent instantaneous frequency in Hz
func (s *Sweep) Frequency() float64 {
	return s.freq
}

// Position returns the number of sweep samples emitted so far
func (s *Sweep) Position() int64 {
	return s.current
}
