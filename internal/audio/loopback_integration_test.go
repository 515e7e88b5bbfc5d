//go:build integration

package audio

import (
	"testing"

	"github.com/ColonelBlimp/fxprobe/internal/signal"
)

// These tests require actual audio hardware and are skipped by default.
// Run with: go test -tags=integration ./internal/audio

func TestListDevices_Integration(t *testing.T) {
	devices, err := ListDevices()
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}

	t.Logf("Found %d devices:", len(devices))
	for _, d := range devices {
		t.Logf("  [%s %d] %s default=%v", d.Kind, d.Index, d.Name, d.IsDefault)
	}
}

func TestLoopback_Process_Integration(t *testing.T) {
	l := New(DefaultConfig())
	defer l.Close()

	buf := signal.NewBuffer(2, 512)
	for range 10 {
		if err := l.Process(buf); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}

	if !l.IsRunning() {
		t.Error("IsRunning() = false after Process()")
	}
	if err := l.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
