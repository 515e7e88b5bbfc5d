package bucket

import (
	"math"
	"testing"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name   string
		want   Strategy
		wantOK bool
	}{
		{"Linear", Linear, true},
		{"linear", Linear, true},
		{"EXPLICITVALUES", ExplicitValues, true},
		{"log", Log, true},
		{"EdgeAndCenter", EdgeAndCenter, true},
		{" edgeandcenter ", EdgeAndCenter, true},
		{"exponential", Linear, false},
		{"", Linear, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStrategy(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseStrategy(%q) = (%v, %v), want (%v, %v)", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValues_Linear(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
		n        int
	}{
		{"unit range", 0, 1, 5},
		{"two buckets", 0.2, 0.8, 2},
		{"descending", 1, 0, 4},
		{"many", -3, 7, 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals := Spec{Strategy: Linear, Min: tt.min, Max: tt.max, NumBuckets: tt.n}.Values()
			if len(vals) != tt.n {
				t.Fatalf("len = %d, want %d", len(vals), tt.n)
			}
			if vals[0] != tt.min {
				t.Errorf("first = %v, want %v", vals[0], tt.min)
			}
			if vals[tt.n-1] != tt.max {
				t.Errorf("last = %v, want %v", vals[tt.n-1], tt.max)
			}
			if tt.max > tt.min {
				for i := 1; i < len(vals); i++ {
					if vals[i] <= vals[i-1] {
						t.Errorf("not strictly increasing at %d: %v <= %v", i, vals[i], vals[i-1])
					}
				}
			}
		})
	}
}

func TestValues_LinearSingleBucket(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		vals := Spec{Strategy: Linear, Min: 0.3, Max: 0.9, NumBuckets: n}.Values()
		if len(vals) != 1 || vals[0] != 0.3 {
			t.Errorf("NumBuckets=%d: Values() = %v, want [0.3]", n, vals)
		}
	}
}

func TestValues_Log(t *testing.T) {
	vals := Spec{Strategy: Log, Min: 0.001, Max: 1, NumBuckets: 4}.Values()
	want := []float64{0.001, 0.01, 0.1, 1}
	if len(vals) != len(want) {
		t.Fatalf("len = %d, want %d", len(vals), len(want))
	}
	for i := range want {
		if math.Abs(vals[i]-want[i]) > 1e-12 {
			t.Errorf("vals[%d] = %v, want %v", i, vals[i], want[i])
		}
	}
}

func TestValues_LogFloorsNonPositiveBounds(t *testing.T) {
	vals := Spec{Strategy: Log, Min: 0, Max: 1, NumBuckets: 3}.Values()
	if math.Abs(vals[0]-1e-6) > 1e-15 {
		t.Errorf("first = %v, want 1e-6", vals[0])
	}
	if math.Abs(vals[1]-1e-3) > 1e-12 {
		t.Errorf("middle = %v, want 1e-3", vals[1])
	}
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("vals[%d] = %v, want finite", i, v)
		}
	}
}

func TestValues_EdgeAndCenter(t *testing.T) {
	for _, n := range []int{0, 1, 3, 10} {
		vals := Spec{Strategy: EdgeAndCenter, Min: 0.2, Max: 0.6, NumBuckets: n}.Values()
		want := []float64{0.2, 0.4, 0.6}
		if len(vals) != 3 {
			t.Fatalf("NumBuckets=%d: len = %d, want 3", n, len(vals))
		}
		for i := range want {
			if math.Abs(vals[i]-want[i]) > 1e-12 {
				t.Errorf("NumBuckets=%d: vals[%d] = %v, want %v", n, i, vals[i], want[i])
			}
		}
	}
}

func TestValues_Explicit(t *testing.T) {
	in := []float64{0.5, 0.1, 0.5}
	spec := Spec{Strategy: ExplicitValues, Explicit: in, NumBuckets: 7}
	vals := spec.Values()
	if len(vals) != 3 || vals[0] != 0.5 || vals[1] != 0.1 || vals[2] != 0.5 {
		t.Errorf("Values() = %v, want %v", vals, in)
	}

	// mutating the result must not touch the spec
	vals[0] = 9
	if spec.Explicit[0] != 0.5 {
		t.Error("Values() aliases the spec's slice")
	}

	if got := (Spec{Strategy: ExplicitValues}).Values(); len(got) != 0 {
		t.Errorf("empty explicit list: Values() = %v, want empty", got)
	}
}

func TestStrategy_String(t *testing.T) {
	if Log.String() != "Log" {
		t.Errorf("Log.String() = %q", Log.String())
	}
	if Strategy(42).String() != "Unknown" {
		t.Errorf("Strategy(42).String() = %q", Strategy(42).String())
	}
}
