// internal/signal/noise.go
package signal

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Noise is uniform white noise in [-amplitude, amplitude].
type Noise struct {
	dist distuv.Uniform
}

// NewNoise creates a noise source with its own random stream. A zero seed
// draws a random one; otherwise the stream is derived from (seed, stream)
// so each run is reproducible on its own.
func NewNoise(amplitude float64, seed, stream uint64) *Noise {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Noise{
		dist: distuv.Uniform{
			Min: -amplitude,
			Max: amplitude,
			Src: rand.NewPCG(seed, stream),
		},
	}
}

// Fill implements Generator.
func (g *Noise) Fill(buf *Buffer, n int) {
	if buf.NumChannels() == 0 {
		return
	}
	out := buf.Channel(0)
	for i := 0; i < n; i++ {
		out[i] = g.dist.Rand()
	}
	fanOut(buf, n)
}
