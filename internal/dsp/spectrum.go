// internal/dsp/spectrum.go
// Package dsp holds the windowed FFT used by the frequency-domain analyzers.
package dsp

import (
	"errors"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

var (
	// ErrInvalidFFTSize indicates the transform size must be at least 2
	ErrInvalidFFTSize = errors.New("fft size must be at least 2")
	// ErrInsufficientSamples indicates not enough samples for the configured size
	ErrInsufficientSamples = errors.New("insufficient samples for fft size")
)

// MinMagnitude is the floor applied before converting a ratio to dB.
const MinMagnitude = 1e-10

// Spectrum computes Hann-windowed power spectra of a fixed size.
// A Spectrum is not safe for concurrent use; share through a Pool.
type Spectrum struct {
	size   int
	fft    *fourier.FFT
	frame  []float64
	coeffs []complex128
}

// NewSpectrum creates a transform of the given size.
func NewSpectrum(size int) (*Spectrum, error) {
	if size < 2 {
		return nil, ErrInvalidFFTSize
	}
	return &Spectrum{
		size:   size,
		fft:    fourier.NewFFT(size),
		frame:  make([]float64, size),
		coeffs: make([]complex128, size/2+1),
	}, nil
}

// Size returns the transform length
func (s *Spectrum) Size() int {
	return s.size
}

// Bins returns the number of bins below Nyquist that Power reports
func (s *Spectrum) Bins() int {
	return s.size / 2
}

// Power windows the first Size samples with a symmetric Hann window and
// writes |X[k]|² for k in [0, Size/2) into dst, which is grown if needed.
// samples is left untouched.
func (s *Spectrum) Power(dst, samples []float64) ([]float64, error) {
	if len(samples) < s.size {
		return dst, ErrInsufficientSamples
	}

	copy(s.frame, samples[:s.size])
	window.Hann(s.frame)
	s.coeffs = s.fft.Coefficients(s.coeffs, s.frame)

	bins := s.Bins()
	if cap(dst) < bins {
		dst = make([]float64, bins)
	}
	dst = dst[:bins]
	for k := range dst {
		c := s.coeffs[k]
		dst[k] = real(c)*real(c) + imag(c)*imag(c)
	}
	return dst, nil
}

// BinHz returns the width of one bin for the given sample rate.
func BinHz(sampleRate float64, size int) float64 {
	return sampleRate / float64(size)
}

// RatioDB converts an amplitude ratio to dB, floored at MinMagnitude.
func RatioDB(ratio float64) float64 {
	return 20 * math.Log10(math.Max(ratio, MinMagnitude))
}

// Pool hands out Spectrum instances of one size to concurrent callers.
type Pool struct {
	size int
	pool sync.Pool
}

// NewPool validates size and returns an empty pool.
func NewPool(size int) (*Pool, error) {
	if size < 2 {
		return nil, ErrInvalidFFTSize
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		s, _ := NewSpectrum(size)
		return s
	}
	return p, nil
}

// Size returns the transform length of pooled instances
func (p *Pool) Size() int {
	return p.size
}

// Power borrows a Spectrum, computes the power spectrum and returns it to the pool.
func (p *Pool) Power(dst, samples []float64) ([]float64, error) {
	s := p.pool.Get().(*Spectrum)
	defer p.pool.Put(s)
	return s.Power(dst, samples)
}
