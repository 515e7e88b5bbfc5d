// internal/grid/grid.go
// Package grid builds the ordered run grid: every combination of parameter
// buckets crossed with every input gain.
package grid

import (
	"github.com/ColonelBlimp/fxprobe/internal/bucket"
)

// Run is one combination of parameter values and input gain.
type Run struct {
	// ID is dense and sequential in grid order, starting at 0
	ID int
	// Params maps parameter name to its normalized value for this run
	Params map[string]float64
	// InputGainDB is the excitation level relative to full scale
	InputGainDB float64
}

// ParamVector returns the run's values in the given name order.
// Names missing from the run yield 0.
func (r Run) ParamVector(names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = r.Params[name]
	}
	return out
}

// Size returns the number of runs Build would produce without building them.
func Size(specs []bucket.Spec, gainsDB []float64) int {
	n := len(gainsDB)
	for _, s := range specs {
		n *= len(s.Values())
	}
	return n
}

// Names returns the parameter names in configuration order.
func Names(specs []bucket.Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.ParamName
	}
	return names
}

// Build expands specs into the full Cartesian product with gainsDB.
// The first spec varies slowest and gain varies fastest. Grid size is not
// capped; bound it through configuration.
func Build(specs []bucket.Spec, gainsDB []float64) []Run {
	values := make([][]float64, len(specs))
	for i, s := range specs {
		values[i] = s.Values()
	}

	total := Size(specs, gainsDB)
	if total == 0 {
		return nil
	}
	runs := make([]Run, 0, total)

	// odometer over the value lists, last digit fastest
	digits := make([]int, len(values))
	for {
		params := make(map[string]float64, len(specs))
		for i, s := range specs {
			params[s.ParamName] = values[i][digits[i]]
		}
		for _, gain := range gainsDB {
			// each run gets its own map so consumers can't alias each other
			p := make(map[string]float64, len(params))
			for k, v := range params {
				p[k] = v
			}
			runs = append(runs, Run{ID: len(runs), Params: p, InputGainDB: gain})
		}

		if !advance(digits, values) {
			return runs
		}
	}
}

// advance increments the mixed-radix counter, reporting false on wrap-around.
func advance(digits []int, values [][]float64) bool {
	for i := len(digits) - 1; i >= 0; i-- {
		digits[i]++
		if digits[i] < len(values[i]) {
			return true
		}
		digits[i] = 0
	}
	return false
}
