// internal/audio/loopback.go
// Package audio drives a hardware duplex device as a unit under test: each
// processed block is played out and the same number of frames is read back
// from the capture side.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/ColonelBlimp/fxprobe/internal/signal"
	"github.com/ColonelBlimp/fxprobe/internal/unit"
)

var (
	ErrNotInitialized = errors.New("audio device not initialized")
	ErrAlreadyRunning = errors.New("audio device already running")
	ErrNotRunning     = errors.New("audio device not running")
	ErrTimeout        = errors.New("timed out waiting for captured frames")
	ErrDeviceIndex    = errors.New("device index out of range")
)

// UnitName is the registry name of the loopback unit
const UnitName = "loopback"

func init() {
	unit.Register(UnitName, func(s unit.Setup) (unit.Unit, error) {
		cfg := DefaultConfig()
		cfg.DeviceIndex = s.DeviceIndex
		if s.SampleRate > 0 {
			cfg.SampleRate = uint32(s.SampleRate)
		}
		if s.NumChannels > 0 {
			cfg.Channels = uint32(s.NumChannels)
		}
		if s.BlockSize > 0 {
			cfg.BufferSize = uint32(s.BlockSize)
		}
		return New(cfg), nil
	})
}

// Config holds duplex device configuration
type Config struct {
	DeviceIndex int    // -1 for default device; indexes both playback and capture lists
	SampleRate  uint32 // e.g., 48000
	Channels    uint32 // channels on both directions
	BufferSize  uint32 // frames per callback
	// Timeout bounds how long Process waits for the capture side
	Timeout time.Duration
}

// DefaultConfig returns defaults matching the measurement engine
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		Channels:    2,
		BufferSize:  512,
		Timeout:     2 * time.Second,
	}
}

// Loopback plays each block through the output device and replaces it with
// what the input device captured. The round trip includes device latency.
type Loopback struct {
	config  Config
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running atomic.Bool

	mu       sync.Mutex
	play     []float32 // interleaved, waiting to be played
	captured []float32 // interleaved, waiting to be consumed
	ready    chan struct{}

	params unit.ParamSet
}

// New creates a loopback unit; the device opens on first Process.
func New(cfg Config) *Loopback {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Loopback{
		config: cfg,
		ready:  make(chan struct{}, 1),
		params: unit.NewParamSet(map[string]float64{"level": 1}),
	}
}

func (l *Loopback) Name() string                 { return UnitName }
func (l *Loopback) Parameters() []unit.Parameter { return l.params.List() }

// SetParameter sets "level", the linear output level before playback.
func (l *Loopback) SetParameter(name string, value float64) error {
	return l.params.Set(name, value)
}

// Reset drops any queued playback and captured frames.
func (l *Loopback) Reset() {
	l.mu.Lock()
	l.play = l.play[:0]
	l.captured = l.captured[:0]
	l.mu.Unlock()
}

// Init initializes the audio backend
func (l *Loopback) Init() error {
	if l.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	l.ctx = ctx
	return nil
}

// Start opens the duplex device
func (l *Loopback) Start() error {
	if l.running.Load() {
		return ErrAlreadyRunning
	}
	if l.ctx == nil {
		return ErrNotInitialized
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.SampleRate = l.config.SampleRate
	deviceConfig.PeriodSizeInFrames = l.config.BufferSize
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = l.config.Channels
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = l.config.Channels

	if l.config.DeviceIndex >= 0 {
		playID, err := deviceID(l.ctx, malgo.Playback, l.config.DeviceIndex)
		if err != nil {
			return err
		}
		capID, err := deviceID(l.ctx, malgo.Capture, l.config.DeviceIndex)
		if err != nil {
			return err
		}
		deviceConfig.Playback.DeviceID = playID.Pointer()
		deviceConfig.Capture.DeviceID = capID.Pointer()
	}

	device, err := malgo.InitDevice(l.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: l.onFrames,
	})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	l.device = device
	l.running.Store(true)
	return nil
}

// Stop stops the duplex device
func (l *Loopback) Stop() error {
	if !l.running.Load() {
		return ErrNotRunning
	}
	if l.device != nil {
		_ = l.device.Stop()
		l.device.Uninit()
		l.device = nil
	}
	l.running.Store(false)
	return nil
}

// Close releases all audio resources
func (l *Loopback) Close() error {
	if l.running.Load() {
		_ = l.Stop()
	}
	if l.ctx != nil {
		if err := l.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		l.ctx.Free()
		l.ctx = nil
	}
	return nil
}

// IsRunning returns true if the device is active
func (l *Loopback) IsRunning() bool {
	return l.running.Load()
}

// Process plays buf and overwrites it with the same number of captured frames.
func (l *Loopback) Process(buf *signal.Buffer) error {
	if !l.running.Load() {
		if err := l.Init(); err != nil {
			return err
		}
		if err := l.Start(); err != nil {
			return err
		}
	}

	channels := int(l.config.Channels)
	frames := buf.Frames()
	level := l.params.Get("level")

	l.mu.Lock()
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			var v float64
			if ch < buf.NumChannels() {
				v = buf.Channel(ch)[i] * level
			}
			l.play = append(l.play, float32(v))
		}
	}
	l.mu.Unlock()

	need := frames * channels
	deadline := time.NewTimer(l.config.Timeout)
	defer deadline.Stop()
	for {
		l.mu.Lock()
		if len(l.captured) >= need {
			deinterleave(buf, l.captured[:need], channels)
			l.captured = append(l.captured[:0], l.captured[need:]...)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-l.ready:
		case <-deadline.C:
			return fmt.Errorf("%w after %v", ErrTimeout, l.config.Timeout)
		}
	}
}

// onFrames runs on the audio thread: feed queued playback, stash capture.
func (l *Loopback) onFrames(output, input []byte, frameCount uint32) {
	l.mu.Lock()
	n := min(len(output)/4, len(l.play))
	float32ToBytes(output, l.play[:n])
	clear(output[n*4:])
	l.play = append(l.play[:0], l.play[n:]...)
	if len(input) > 0 {
		l.captured = append(l.captured, bytesToFloat32(input)...)
	}
	l.mu.Unlock()

	// Non-blocking wake-up of a waiting Process
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func deinterleave(buf *signal.Buffer, samples []float32, channels int) {
	for ch := 0; ch < buf.NumChannels(); ch++ {
		c := buf.Channel(ch)
		src := min(ch, channels-1)
		for i := range c {
			c[i] = float64(samples[i*channels+src])
		}
	}
}

// bytesToFloat32 converts raw little-endian bytes to float32 samples
func bytesToFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// float32ToBytes writes samples into dst as little-endian float32
func float32ToBytes(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
