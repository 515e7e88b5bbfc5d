// internal/unit/unit.go
// Package unit defines the unit-under-test contract the measurement engine
// drives, and a set of built-in reference units.
package unit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ColonelBlimp/fxprobe/internal/signal"
)

var (
	// ErrUnknownParameter indicates the unit has no parameter with that name
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrUnknownUnit indicates no unit is registered under that name
	ErrUnknownUnit = errors.New("unknown unit")
)

// Unit is an audio processor with a named, normalized parameter set.
// A Unit instance is driven by one goroutine at a time.
type Unit interface {
	// Name identifies the unit in logs and listings
	Name() string
	// Parameters lists every parameter with its current normalized value
	Parameters() []Parameter
	// SetParameter sets a normalized [0,1] value; names match case-insensitively
	SetParameter(name string, value float64) error
	// Process transforms buf in place
	Process(buf *signal.Buffer) error
	// Reset clears internal processing state between runs
	Reset()
}

// Parameter is one entry of a unit's parameter set.
type Parameter struct {
	Name  string
	Value float64
}

// Setup is fixed at startup and shared by every instance.
type Setup struct {
	SampleRate  float64
	BlockSize   int
	NumChannels int
	// DeviceIndex selects the audio device for hardware units (-1 for default)
	DeviceIndex int
}

// Factory creates an independent instance; the engine calls it once per worker.
type Factory func() (Unit, error)

// Constructor builds a unit for the given setup.
type Constructor func(Setup) (Unit, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a constructor available under name.
func Register(name string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalizeName(name)] = c
}

// Names lists registered unit names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewFactory resolves name to a Factory bound to setup.
func NewFactory(name string, setup Setup) (Factory, error) {
	registryMu.RLock()
	c, ok := registry[normalizeName(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownUnit, name, strings.Join(Names(), ", "))
	}
	return func() (Unit, error) { return c(setup) }, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
