// internal/signal/buffer.go
package signal

// Buffer is a block of non-interleaved float64 samples, one slice per channel.
// All channels share the same length.
type Buffer struct {
	channels [][]float64
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(numChannels, frames int) *Buffer {
	ch := make([][]float64, numChannels)
	for i := range ch {
		ch[i] = make([]float64, frames)
	}
	return &Buffer{channels: ch}
}

// NumChannels returns the channel count
func (b *Buffer) NumChannels() int {
	return len(b.channels)
}

// Frames returns the per-channel sample count
func (b *Buffer) Frames() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// Channel returns the writable samples of channel i
func (b *Buffer) Channel(i int) []float64 {
	return b.channels[i]
}

// Slice returns a view of the first n frames sharing the same storage.
func (b *Buffer) Slice(n int) *Buffer {
	ch := make([][]float64, len(b.channels))
	for i, c := range b.channels {
		ch[i] = c[:n]
	}
	return &Buffer{channels: ch}
}

// Clear zeroes every channel.
func (b *Buffer) Clear() {
	for _, c := range b.channels {
		clear(c)
	}
}

// CopyFrom copies min(frames) samples of every shared channel from src.
func (b *Buffer) CopyFrom(src *Buffer) {
	for i := range min(len(b.channels), len(src.channels)) {
		copy(b.channels[i], src.channels[i])
	}
}
