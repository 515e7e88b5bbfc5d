// internal/report/plot.go
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot image names
const (
	TransferPlot = "transfer_curves.png"
	ThdPlot      = "thd_vs_gain.png"
	linearPrefix = "grid_linear_response_"
)

// PlotOptions controls image rendering.
type PlotOptions struct {
	// MaxRuns caps the number of curves drawn per plot; 0 draws all
	MaxRuns int
	Width   vg.Length
	Height  vg.Length
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.Width <= 0 {
		o.Width = 10 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 6 * vg.Inch
	}
	return o
}

// Plot renders every plot whose artifact exists in dir into outDir and
// returns the written file paths.
func Plot(dir, outDir string, opts PlotOptions) ([]string, error) {
	opts = opts.withDefaults()
	var written []string

	t, err := Load(filepath.Join(dir, TransferFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return written, fmt.Errorf("%s: %w", TransferFile, err)
	default:
		p, err := TransferCurves(t, opts.MaxRuns)
		if err != nil {
			return written, fmt.Errorf("%s: %w", TransferFile, err)
		}
		out := filepath.Join(outDir, TransferPlot)
		if err := p.Save(opts.Width, opts.Height, out); err != nil {
			return written, err
		}
		written = append(written, out)
	}

	t, err = Load(filepath.Join(dir, ThdFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return written, fmt.Errorf("%s: %w", ThdFile, err)
	default:
		p, err := ThdVsGain(t)
		if err != nil {
			return written, fmt.Errorf("%s: %w", ThdFile, err)
		}
		out := filepath.Join(outDir, ThdPlot)
		if err := p.Save(opts.Width, opts.Height, out); err != nil {
			return written, err
		}
		written = append(written, out)
	}

	matches, err := filepath.Glob(filepath.Join(dir, linearPrefix+"*.csv"))
	if err != nil {
		return written, err
	}
	sort.Strings(matches)
	for _, path := range matches {
		name := filepath.Base(path)
		t, err := Load(path)
		if err != nil {
			return written, fmt.Errorf("%s: %w", name, err)
		}
		sig := strings.TrimSuffix(strings.TrimPrefix(name, linearPrefix), ".csv")
		p, err := LinearResponse(t, sig, opts.MaxRuns)
		if err != nil {
			return written, fmt.Errorf("%s: %w", name, err)
		}
		out := filepath.Join(outDir, "linear_response_"+sig+".png")
		if err := p.Save(opts.Width, opts.Height, out); err != nil {
			return written, err
		}
		written = append(written, out)
	}

	if len(written) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoResults, dir)
	}
	return written, nil
}

// curve is one run's points plus its input gain.
type curve struct {
	runID  float64
	gainDB float64
	pts    plotter.XYs
}

// curves splits a table into per-run point sets, runs ascending.
func curves(t *Table, xName, yName string, keep func(x float64) bool) ([]curve, error) {
	runIDs, err := t.Column("runId")
	if err != nil {
		return nil, err
	}
	xs, err := t.Column(xName)
	if err != nil {
		return nil, err
	}
	ys, err := t.Column(yName)
	if err != nil {
		return nil, err
	}
	gains, err := t.Column("inputGainDb")
	if err != nil {
		return nil, err
	}

	byRun := make(map[float64]*curve)
	var order []float64
	for i, id := range runIDs {
		if keep != nil && !keep(xs[i]) {
			continue
		}
		c, ok := byRun[id]
		if !ok {
			c = &curve{runID: id, gainDB: gains[i]}
			byRun[id] = c
			order = append(order, id)
		}
		c.pts = append(c.pts, plotter.XY{X: xs[i], Y: ys[i]})
	}
	sort.Float64s(order)

	out := make([]curve, 0, len(order))
	for _, id := range order {
		c := byRun[id]
		sort.Slice(c.pts, func(a, b int) bool { return c.pts[a].X < c.pts[b].X })
		out = append(out, *c)
	}
	return out, nil
}

// addCurves draws runs coloured by input gain with one legend entry per gain.
func addCurves(p *plot.Plot, cs []curve, maxRuns int) error {
	if maxRuns > 0 && len(cs) > maxRuns {
		cs = cs[:maxRuns]
	}
	gainIdx := make(map[float64]int)
	var gains []float64
	for _, c := range cs {
		if _, ok := gainIdx[c.gainDB]; !ok {
			gainIdx[c.gainDB] = 0
			gains = append(gains, c.gainDB)
		}
	}
	sort.Float64s(gains)
	for i, g := range gains {
		gainIdx[g] = i
	}

	labelled := make(map[float64]bool)
	for _, c := range cs {
		if len(c.pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(c.pts)
		if err != nil {
			return fmt.Errorf("run %g: %w", c.runID, err)
		}
		l.Color = plotutil.Color(gainIdx[c.gainDB])
		l.Width = vg.Points(1)
		p.Add(l)
		if !labelled[c.gainDB] {
			p.Legend.Add(fmt.Sprintf("%g dB", c.gainDB), l)
			labelled[c.gainDB] = true
		}
	}
	p.Legend.Top = true
	return nil
}

// TransferCurves plots meanY against x for every run.
func TransferCurves(t *Table, maxRuns int) (*plot.Plot, error) {
	cs, err := curves(t, "x", "meanY", nil)
	if err != nil {
		return nil, err
	}
	p := plot.New()
	p.Title.Text = "Transfer curves"
	p.X.Label.Text = "Input"
	p.Y.Label.Text = "Mean output"
	p.Add(plotter.NewGrid())
	if err := addCurves(p, cs, maxRuns); err != nil {
		return nil, err
	}
	return p, nil
}

// LinearResponse plots magnitude against frequency on a log axis. DC is dropped.
func LinearResponse(t *Table, signalName string, maxRuns int) (*plot.Plot, error) {
	cs, err := curves(t, "freqHz", "magDb", func(x float64) bool { return x > 0 })
	if err != nil {
		return nil, err
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Linear response (%s)", signalName)
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Magnitude (dB)"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())
	if err := addCurves(p, cs, maxRuns); err != nil {
		return nil, err
	}
	return p, nil
}

// ThdVsGain scatters every window's THD in dB against input gain and
// draws the per-gain mean.
func ThdVsGain(t *Table) (*plot.Plot, error) {
	s, err := SummarizeThd(t, 0)
	if err != nil {
		return nil, err
	}
	gains, _ := t.Column("inputGainDb")
	thd, _ := t.Column("thd")

	p := plot.New()
	p.Title.Text = "THD vs input gain"
	p.X.Label.Text = "Input gain (dB)"
	p.Y.Label.Text = "THD (dB)"
	p.Add(plotter.NewGrid())

	if len(thd) == 0 {
		return p, nil
	}
	pts := make(plotter.XYs, len(thd))
	for i := range thd {
		pts[i] = plotter.XY{X: gains[i], Y: THDToDB(thd[i])}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = plotutil.Color(1)
	sc.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(sc)
	p.Legend.Add("window", sc)

	means := make(plotter.XYs, len(s.ByGain))
	for i, g := range s.ByGain {
		means[i] = plotter.XY{X: g.GainDB, Y: g.DB.Mean}
	}
	l, err := plotter.NewLine(means)
	if err != nil {
		return nil, err
	}
	l.Color = plotutil.Color(0)
	l.Width = vg.Points(2)
	p.Add(l)
	p.Legend.Add("mean", l)
	p.Legend.Top = true
	return p, nil
}
