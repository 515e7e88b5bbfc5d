// internal/bucket/bucket.go
// Package bucket expands declarative sweep specifications into the concrete
// values a parameter takes across a measurement grid.
package bucket

import (
	"math"
	"strings"
)

// Strategy selects how a Spec turns its bounds into values.
type Strategy int

const (
	// Linear spaces NumBuckets values evenly between Min and Max inclusive
	Linear Strategy = iota
	// ExplicitValues returns the configured list verbatim
	ExplicitValues
	// Log spaces NumBuckets values evenly in log10 space
	Log
	// EdgeAndCenter always yields Min, the midpoint and Max
	EdgeAndCenter
)

// logFloor keeps log10 defined for non-positive bounds
const logFloor = 1e-6

var strategyNames = map[Strategy]string{
	Linear:         "Linear",
	ExplicitValues: "ExplicitValues",
	Log:            "Log",
	EdgeAndCenter:  "EdgeAndCenter",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseStrategy matches name case-insensitively. Unrecognized names fall back
// to Linear; ok reports whether the name was recognized so callers can warn.
func ParseStrategy(name string) (s Strategy, ok bool) {
	for strategy, known := range strategyNames {
		if strings.EqualFold(strings.TrimSpace(name), known) {
			return strategy, true
		}
	}
	return Linear, false
}

// Spec describes the value set of one swept parameter.
type Spec struct {
	ParamName  string
	Strategy   Strategy
	Min        float64
	Max        float64
	NumBuckets int
	Explicit   []float64
}

// Values expands the spec into its ordered bucket values.
// ExplicitValues with an empty list is the only way to get an empty result.
func (s Spec) Values() []float64 {
	switch s.Strategy {
	case ExplicitValues:
		out := make([]float64, len(s.Explicit))
		copy(out, s.Explicit)
		return out

	case Log:
		if s.NumBuckets <= 1 {
			return []float64{s.Min}
		}
		logMin := math.Log10(math.Max(s.Min, logFloor))
		logMax := math.Log10(math.Max(s.Max, logFloor))
		out := make([]float64, s.NumBuckets)
		for i := range out {
			t := float64(i) / float64(s.NumBuckets-1)
			out[i] = math.Pow(10, logMin+t*(logMax-logMin))
		}
		return out

	case EdgeAndCenter:
		return []float64{s.Min, (s.Min + s.Max) / 2, s.Max}

	default:
		if s.NumBuckets <= 1 {
			return []float64{s.Min}
		}
		out := make([]float64, s.NumBuckets)
		for i := range out {
			t := float64(i) / float64(s.NumBuckets-1)
			out[i] = s.Min + t*(s.Max-s.Min)
		}
		// pin the endpoint against rounding in t*(max-min)
		out[len(out)-1] = s.Max
		return out
	}
}
