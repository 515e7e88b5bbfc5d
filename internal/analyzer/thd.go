// internal/analyzer/thd.go
package analyzer

import (
	"math"

	"github.com/ColonelBlimp/fxprobe/internal/dsp"
	"github.com/ColonelBlimp/fxprobe/internal/sink"
)

// MaxHarmonic is the highest harmonic summed into THD
const MaxHarmonic = 10

type thdPoint struct {
	centre int64
	thd    float64
}

type thdState struct {
	meta    runMeta
	k0      int
	out     []float64
	points  []thdPoint
	scratch []float64
}

// Thd measures total harmonic distortion of the left output channel, one
// value per non-overlapping FFT frame.
type Thd struct {
	opts Options
	pool *dsp.Pool
	runs *store[thdState]
	once finishOnce
}

// NewThd creates the analyzer with opts.THDFFTSize frames around opts.Fundamental.
func NewThd(opts Options) (*Thd, error) {
	opts = opts.withDefaults()
	pool, err := dsp.NewPool(opts.THDFFTSize)
	if err != nil {
		return nil, err
	}
	a := &Thd{opts: opts, pool: pool}
	a.runs = newStore(func(ctx *BlockContext) *thdState {
		return &thdState{
			meta: captureMeta(ctx),
			k0:   a.FundamentalBin(opts.rate(ctx)),
			out:  make([]float64, 0, pool.Size()),
		}
	})
	return a, nil
}

func (a *Thd) Name() string { return NameThd }

// FundamentalBin returns the FFT bin holding the fundamental at sampleRate,
// or -1 without a usable rate.
func (a *Thd) FundamentalBin(sampleRate float64) int {
	if sampleRate <= 0 {
		return -1
	}
	return int(math.Round(a.opts.Fundamental / dsp.BinHz(sampleRate, a.pool.Size())))
}

func (a *Thd) ProcessBlock(ctx *BlockContext) {
	size := a.pool.Size()
	a.runs.update(ctx, func(s *thdState) {
		for i := 0; i < ctx.Frames; i++ {
			s.out = append(s.out, ctx.OutL[i])
			if len(s.out) < size {
				continue
			}
			s.scratch, _ = a.pool.Power(s.scratch, s.out)
			s.points = append(s.points, thdPoint{
				centre: ctx.FirstSample + int64(i) - int64(size/2),
				thd:    HarmonicDistortion(s.scratch, s.k0),
			})
			s.out = s.out[:0]
		}
	})
}

// HarmonicDistortion returns sqrt(Σ P[h·k0] / P[k0]) over harmonics
// 2..min(MaxHarmonic, bins/k0), where power holds |X[k]|² below Nyquist.
// An out-of-range or silent fundamental yields 0.
func HarmonicDistortion(power []float64, k0 int) float64 {
	nyquist := len(power)
	if k0 <= 0 || k0 >= nyquist {
		return 0
	}
	p1 := power[k0]
	if p1 <= 0 {
		return 0
	}
	maxH := min(MaxHarmonic, nyquist/k0)
	var sum float64
	for h := 2; h <= maxH; h++ {
		idx := h * k0
		if idx >= nyquist {
			break
		}
		sum += power[idx]
	}
	return math.Sqrt(sum / p1)
}

// Table drains the accumulated runs, one row per completed frame.
func (a *Thd) Table() (sink.Table, int) {
	runs := a.runs.drain()
	n := len(a.opts.ParamNames)
	t := sink.Table{
		Name:   "grid_thd",
		Header: header([]string{"runId", "centreSample", "thd"}, a.opts.ParamNames),
	}
	for _, r := range runs {
		for _, p := range r.state.points {
			t.Rows = append(t.Rows, row([]any{r.runID, p.centre, p.thd}, r.state.meta, n))
		}
	}
	return t, len(runs)
}

func (a *Thd) Finish(dir string) error {
	t, n := a.Table()
	if !a.once.shouldEmit(n) {
		return nil
	}
	return a.opts.Sink.Write(dir, t)
}
