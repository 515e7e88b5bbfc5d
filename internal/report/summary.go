// internal/report/summary.go
package report

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Artifact file names read by the summary
const (
	RmsPeakFile  = "grid_rms_peak.csv"
	ThdFile      = "grid_thd.csv"
	TransferFile = "grid_transfer_curves.csv"
)

// ClipLevel is the output peak treated as clipping
const ClipLevel = 1.0

// SaturationLevel is the transfer-curve output treated as saturated
const SaturationLevel = 0.95

// SmallSignal bounds |x| for the small-signal gain fit
const SmallSignal = 0.1

// Stats summarizes one sample set.
type Stats struct {
	Mean, Std, Min, Max float64
	N                   int
}

// Describe computes Stats; Std is the unbiased sample deviation (0 for N<2).
func Describe(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(x, nil)
	if len(x) < 2 {
		std = 0
	}
	return Stats{Mean: mean, Std: std, Min: floats.Min(x), Max: floats.Max(x), N: len(x)}
}

// GainRms is the RMS/peak digest for one input gain.
type GainRms struct {
	GainDB    float64
	RmsOutL   Stats
	PeakOutL  Stats
	GainRatio Stats
}

// RmsSummary digests grid_rms_peak.csv.
type RmsSummary struct {
	Runs          int
	Params        []string
	ByGain        []GainRms
	ClippedRuns   int
	ClippingGains []float64
}

// SummarizeRms digests an RMS/peak table.
func SummarizeRms(t *Table) (*RmsSummary, error) {
	gains, err := t.Column("inputGainDb")
	if err != nil {
		return nil, err
	}
	rmsIn, err := t.Column("rmsInL")
	if err != nil {
		return nil, err
	}
	rmsOut, err := t.Column("rmsOutL")
	if err != nil {
		return nil, err
	}
	peakOut, err := t.Column("peakOutL")
	if err != nil {
		return nil, err
	}

	s := &RmsSummary{
		Runs: t.Len(),
		Params: t.ParamColumns("runId", "inputGainDb", "rmsInL", "rmsInR", "rmsOutL", "rmsOutR",
			"peakInL", "peakInR", "peakOutL", "peakOutR"),
	}
	keys, groups := groupByGain(gains)
	for _, g := range keys {
		idx := groups[g]
		var ratio []float64
		for _, i := range idx {
			if rmsIn[i] > 0 {
				ratio = append(ratio, rmsOut[i]/rmsIn[i])
			}
		}
		s.ByGain = append(s.ByGain, GainRms{
			GainDB:    g,
			RmsOutL:   Describe(pick(rmsOut, idx)),
			PeakOutL:  Describe(pick(peakOut, idx)),
			GainRatio: Describe(ratio),
		})

		clipped := 0
		for _, i := range idx {
			if peakOut[i] >= ClipLevel {
				clipped++
			}
		}
		if clipped > 0 {
			s.ClippedRuns += clipped
			s.ClippingGains = append(s.ClippingGains, g)
		}
	}
	return s, nil
}

// GainThd is the THD digest for one input gain.
type GainThd struct {
	GainDB float64
	Linear Stats
	DB     Stats
}

// ThdPoint is one window of the worst-distortion listing.
type ThdPoint struct {
	RunID  int
	THD    float64
	GainDB float64
	Params map[string]float64
}

// ThdSummary digests grid_thd.csv.
type ThdSummary struct {
	Windows int
	Runs    int
	ByGain  []GainThd
	Worst   []ThdPoint
}

// THDToDB converts a THD ratio to dB with a small floor.
func THDToDB(thd float64) float64 {
	return 20 * math.Log10(thd+1e-10)
}

// SummarizeThd digests a THD table, listing the top worst windows.
func SummarizeThd(t *Table, top int) (*ThdSummary, error) {
	runIDs, err := t.Column("runId")
	if err != nil {
		return nil, err
	}
	thd, err := t.Column("thd")
	if err != nil {
		return nil, err
	}
	gains, err := t.Column("inputGainDb")
	if err != nil {
		return nil, err
	}

	runs := make(map[float64]bool)
	for _, r := range runIDs {
		runs[r] = true
	}
	s := &ThdSummary{Windows: t.Len(), Runs: len(runs)}

	keys, groups := groupByGain(gains)
	for _, g := range keys {
		lin := pick(thd, groups[g])
		db := make([]float64, len(lin))
		for i, v := range lin {
			db[i] = THDToDB(v)
		}
		s.ByGain = append(s.ByGain, GainThd{GainDB: g, Linear: Describe(lin), DB: Describe(db)})
	}

	order := make([]int, t.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return thd[order[a]] > thd[order[b]] })
	params := t.ParamColumns("runId", "centreSample", "thd", "inputGainDb")
	for _, i := range order[:max(0, min(top, len(order)))] {
		p := ThdPoint{RunID: int(runIDs[i]), THD: thd[i], GainDB: gains[i], Params: map[string]float64{}}
		for _, name := range params {
			col, _ := t.Column(name)
			p.Params[name] = col[i]
		}
		s.Worst = append(s.Worst, p)
	}
	return s, nil
}

// GainTransfer is the transfer-curve digest for one input gain.
type GainTransfer struct {
	GainDB           float64
	XMin, XMax       float64
	YMin, YMax       float64
	SmallSignalGain  float64
	HasSmallSignal   bool
	MaxAbsOutput     float64
	Saturated        bool
	Slope, Intercept float64
	RMSE             float64
	MaxDeviation     float64
}

// TransferSummary digests grid_transfer_curves.csv.
type TransferSummary struct {
	Points int
	Runs   int
	ByGain []GainTransfer
}

// SummarizeTransfer fits lines to every gain's transfer points.
func SummarizeTransfer(t *Table) (*TransferSummary, error) {
	runIDs, err := t.Column("runId")
	if err != nil {
		return nil, err
	}
	xs, err := t.Column("x")
	if err != nil {
		return nil, err
	}
	ys, err := t.Column("meanY")
	if err != nil {
		return nil, err
	}
	gains, err := t.Column("inputGainDb")
	if err != nil {
		return nil, err
	}

	runs := make(map[float64]bool)
	for _, r := range runIDs {
		runs[r] = true
	}
	s := &TransferSummary{Points: t.Len(), Runs: len(runs)}

	keys, groups := groupByGain(gains)
	for _, g := range keys {
		x, y := pick(xs, groups[g]), pick(ys, groups[g])
		gt := GainTransfer{
			GainDB: g,
			XMin:   floats.Min(x), XMax: floats.Max(x),
			YMin: floats.Min(y), YMax: floats.Max(y),
		}
		gt.MaxAbsOutput = math.Max(math.Abs(gt.YMin), math.Abs(gt.YMax))
		gt.Saturated = gt.MaxAbsOutput > SaturationLevel

		var sx, sy []float64
		for i := range x {
			if math.Abs(x[i]) < SmallSignal {
				sx, sy = append(sx, x[i]), append(sy, y[i])
			}
		}
		if len(sx) > 1 {
			_, gt.SmallSignalGain = stat.LinearRegression(sx, sy, nil, false)
			gt.HasSmallSignal = true
		}

		if len(x) > 1 {
			gt.Intercept, gt.Slope = stat.LinearRegression(x, y, nil, false)
			var sq float64
			for i := range x {
				r := y[i] - (gt.Intercept + gt.Slope*x[i])
				sq += r * r
				gt.MaxDeviation = math.Max(gt.MaxDeviation, math.Abs(r))
			}
			gt.RMSE = math.Sqrt(sq / float64(len(x)))
		}
		s.ByGain = append(s.ByGain, gt)
	}
	return s, nil
}

// Summary collects every digest found in a results directory.
type Summary struct {
	Dir      string
	Rms      *RmsSummary
	Thd      *ThdSummary
	Transfer *TransferSummary
	// RawBytes is the size of raw.csv, 0 if absent
	RawBytes int64
}

// Summarize reads whichever artifacts exist in dir.
func Summarize(dir string, top int) (*Summary, error) {
	s := &Summary{Dir: dir}
	found := false

	load := func(name string) (*Table, error) {
		t, err := Load(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		found = true
		return t, nil
	}

	if t, err := load(RmsPeakFile); err != nil {
		return nil, err
	} else if t != nil {
		if s.Rms, err = SummarizeRms(t); err != nil {
			return nil, fmt.Errorf("%s: %w", RmsPeakFile, err)
		}
	}
	if t, err := load(ThdFile); err != nil {
		return nil, err
	} else if t != nil {
		if s.Thd, err = SummarizeThd(t, top); err != nil {
			return nil, fmt.Errorf("%s: %w", ThdFile, err)
		}
	}
	if t, err := load(TransferFile); err != nil {
		return nil, err
	} else if t != nil {
		if s.Transfer, err = SummarizeTransfer(t); err != nil {
			return nil, fmt.Errorf("%s: %w", TransferFile, err)
		}
	}
	if fi, err := os.Stat(filepath.Join(dir, "raw.csv")); err == nil {
		s.RawBytes = fi.Size()
		found = true
	}

	if !found {
		return nil, fmt.Errorf("%w in %s", ErrNoResults, dir)
	}
	return s, nil
}

// Write renders the summary as text.
func (s *Summary) Write(w io.Writer) error {
	p := &printer{w: w}
	p.f("Results in %s\n", s.Dir)

	if r := s.Rms; r != nil {
		p.section("RMS & PEAK")
		p.f("Runs: %d  Parameters: %v\n", r.Runs, r.Params)
		for _, g := range r.ByGain {
			p.f("\nInput gain %g dB\n", g.GainDB)
			p.stats("RMS out L", g.RmsOutL, "%.6f")
			p.stats("Peak out L", g.PeakOutL, "%.6f")
			p.f("  Gain ratio (out/in): mean=%.6f std=%.6f\n", g.GainRatio.Mean, g.GainRatio.Std)
		}
		if r.ClippedRuns > 0 {
			p.f("\nCLIPPING: %d runs with peak >= %g at input gains %v\n", r.ClippedRuns, ClipLevel, r.ClippingGains)
		} else {
			p.f("\nNo clipping (all peaks < %g)\n", ClipLevel)
		}
	}

	if t := s.Thd; t != nil {
		p.section("THD")
		p.f("Windows: %d  Runs: %d\n", t.Windows, t.Runs)
		for _, g := range t.ByGain {
			p.f("\nInput gain %g dB\n", g.GainDB)
			p.stats("THD", g.Linear, "%.2e")
			p.stats("THD dB", g.DB, "%.2f")
		}
		if len(t.Worst) > 0 {
			p.f("\nHighest THD windows:\n")
			for _, w := range t.Worst {
				p.f("  run %d: THD=%.2e (%.2f dB) gain=%g dB params=%v\n", w.RunID, w.THD, THDToDB(w.THD), w.GainDB, w.Params)
			}
		}
	}

	if tr := s.Transfer; tr != nil {
		p.section("TRANSFER CURVE")
		p.f("Points: %d  Runs: %d\n", tr.Points, tr.Runs)
		for _, g := range tr.ByGain {
			p.f("\nInput gain %g dB\n", g.GainDB)
			p.f("  x range [%.6f, %.6f]  meanY range [%.6f, %.6f]\n", g.XMin, g.XMax, g.YMin, g.YMax)
			if g.HasSmallSignal {
				p.f("  Small-signal gain (|x|<%g): %.6f\n", SmallSignal, g.SmallSignalGain)
			}
			if g.Saturated {
				p.f("  Saturation: max output %.6f\n", g.MaxAbsOutput)
			} else {
				p.f("  No saturation: max output %.6f\n", g.MaxAbsOutput)
			}
			p.f("  Linear fit y = %.6f*x + %.6f  RMSE %.6f  max deviation %.6f\n", g.Slope, g.Intercept, g.RMSE, g.MaxDeviation)
		}
	}

	if s.RawBytes > 0 {
		p.section("RAW")
		p.f("raw.csv is %.2f MB; not summarized\n", float64(s.RawBytes)/(1<<20))
	}
	return p.err
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) f(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) section(title string) {
	p.f("\n== %s ==\n", title)
}

func (p *printer) stats(label string, s Stats, verb string) {
	p.f("  %s: mean="+verb+" std="+verb+" min="+verb+" max="+verb+"\n", label, s.Mean, s.Std, s.Min, s.Max)
}
