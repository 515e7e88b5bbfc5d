package audio

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ColonelBlimp/fxprobe/internal/signal"
	"github.com/ColonelBlimp/fxprobe/internal/unit"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DeviceIndex != -1 {
		t.Errorf("DefaultConfig().DeviceIndex = %d, want -1", cfg.DeviceIndex)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("DefaultConfig().SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.Channels != 2 {
		t.Errorf("DefaultConfig().Channels = %d, want 2", cfg.Channels)
	}
	if cfg.BufferSize != 512 {
		t.Errorf("DefaultConfig().BufferSize = %d, want 512", cfg.BufferSize)
	}
}

func TestRegistered(t *testing.T) {
	f, err := unit.NewFactory(UnitName, unit.Setup{SampleRate: 44100, BlockSize: 256, NumChannels: 2, DeviceIndex: 3})
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	u, err := f()
	if err != nil {
		t.Fatalf("factory() error = %v", err)
	}
	l, ok := u.(*Loopback)
	if !ok {
		t.Fatalf("factory() returned %T, want *Loopback", u)
	}
	if l.config.SampleRate != 44100 || l.config.BufferSize != 256 || l.config.DeviceIndex != 3 {
		t.Errorf("config = %+v, want setup values", l.config)
	}
}

func TestLoopback_IsRunning_InitialState(t *testing.T) {
	l := New(DefaultConfig())
	if l.IsRunning() {
		t.Error("IsRunning() = true for new loopback, want false")
	}
}

func TestLoopback_Start_NotInitialized(t *testing.T) {
	l := New(DefaultConfig())
	if err := l.Start(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start() error = %v, want ErrNotInitialized", err)
	}
}

func TestLoopback_Start_AlreadyRunning(t *testing.T) {
	l := New(DefaultConfig())
	l.running.Store(true)
	if err := l.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() when running error = %v, want ErrAlreadyRunning", err)
	}
}

func TestLoopback_Stop_NotRunning(t *testing.T) {
	l := New(DefaultConfig())
	if err := l.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}
}

// Drives the device callback by hand: whatever is played comes back as input.
func TestLoopback_ProcessRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	l := New(cfg)
	l.running.Store(true)
	_ = l.SetParameter("level", 0.5)

	const frames = 8
	buf := signal.NewBuffer(2, frames)
	for i := 0; i < frames; i++ {
		buf.Channel(0)[i] = float64(i) / 10
		buf.Channel(1)[i] = -float64(i) / 10
	}

	done := make(chan error, 1)
	go func() { done <- l.Process(buf) }()

	// Wait until the block is queued for playback
	for {
		l.mu.Lock()
		queued := len(l.play)
		l.mu.Unlock()
		if queued == frames*2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	out := make([]byte, frames*2*4)
	l.onFrames(out, nil, frames)
	l.onFrames(make([]byte, len(out)), out, frames)

	if err := <-done; err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	for i := 0; i < frames; i++ {
		want := float64(float32(float64(i) / 10 * 0.5))
		if got := buf.Channel(0)[i]; math.Abs(got-want) > 1e-7 {
			t.Errorf("L[%d] = %v, want %v", i, got, want)
		}
		if got := buf.Channel(1)[i]; math.Abs(got+want) > 1e-7 {
			t.Errorf("R[%d] = %v, want %v", i, got, -want)
		}
	}
}

func TestLoopback_ProcessTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	l := New(cfg)
	l.running.Store(true)

	err := l.Process(signal.NewBuffer(2, 4))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Process() error = %v, want ErrTimeout", err)
	}
}

func TestLoopback_ResetDropsQueues(t *testing.T) {
	l := New(DefaultConfig())
	l.play = []float32{1, 2}
	l.captured = []float32{3}
	l.Reset()
	if len(l.play) != 0 || len(l.captured) != 0 {
		t.Errorf("after Reset play=%v captured=%v, want empty", l.play, l.captured)
	}
}

func TestOnFrames_PadsOutputWithSilence(t *testing.T) {
	l := New(DefaultConfig())
	l.play = []float32{0.25}
	out := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	l.onFrames(out, nil, 1)

	got := bytesToFloat32(out)
	if got[0] != 0.25 || got[1] != 0 {
		t.Errorf("output = %v, want [0.25 0]", got)
	}
}

func TestBytesToFloat32_Empty(t *testing.T) {
	result := bytesToFloat32([]byte{})
	if len(result) != 0 {
		t.Errorf("bytesToFloat32(empty) length = %d, want 0", len(result))
	}
}

func TestBytesToFloat32_SingleSample(t *testing.T) {
	// IEEE 754 representation of 1.0 in little-endian
	// 1.0 = 0x3F800000
	result := bytesToFloat32([]byte{0x00, 0x00, 0x80, 0x3F})
	if len(result) != 1 || result[0] != 1.0 {
		t.Errorf("bytesToFloat32(1.0) = %v, want [1]", result)
	}
}

func TestFloat32ToBytes_RoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, -0.123}
	buf := make([]byte, len(in)*4)
	float32ToBytes(buf, in)
	out := bytesToFloat32(buf)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}
