// internal/unit/params.go
package unit

import (
	"fmt"
	"sort"
)

// ParamSet is a name-keyed set of normalized values shared by the built-in units.
type ParamSet struct {
	values map[string]float64
}

// NewParamSet creates a set from defaults; names are normalized.
func NewParamSet(defaults map[string]float64) ParamSet {
	p := ParamSet{values: make(map[string]float64, len(defaults))}
	for k, v := range defaults {
		p.values[normalizeName(k)] = clamp01(v)
	}
	return p
}

// Set updates an existing parameter, clamping into [0,1].
func (p ParamSet) Set(name string, value float64) error {
	key := normalizeName(name)
	if _, ok := p.values[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	p.values[key] = clamp01(value)
	return nil
}

// Get returns the normalized value of a known parameter.
func (p ParamSet) Get(name string) float64 {
	return p.values[normalizeName(name)]
}

// List returns the parameters sorted by name.
func (p ParamSet) List() []Parameter {
	out := make([]Parameter, 0, len(p.values))
	for k, v := range p.values {
		out = append(out, Parameter{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
