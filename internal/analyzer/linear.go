// internal/analyzer/linear.go
package analyzer

import (
	"math"

	"github.com/ColonelBlimp/fxprobe/internal/dsp"
	"github.com/ColonelBlimp/fxprobe/internal/sink"
)

type linearState struct {
	meta    runMeta
	binHz   float64
	in, out []float64 // pending window samples
	sumIn   []float64
	sumOut  []float64
	windows int
	scratch []float64
}

// LinearResponse estimates |H(f)| = |Out|/|In| by averaging the power of
// non-overlapping Hann-windowed FFT frames of the left channels.
type LinearResponse struct {
	opts Options
	pool *dsp.Pool
	runs *store[linearState]
	once finishOnce
}

// NewLinearResponse creates the analyzer with opts.LinearFFTSize frames.
func NewLinearResponse(opts Options) (*LinearResponse, error) {
	opts = opts.withDefaults()
	pool, err := dsp.NewPool(opts.LinearFFTSize)
	if err != nil {
		return nil, err
	}
	size := pool.Size()
	return &LinearResponse{
		opts: opts,
		pool: pool,
		runs: newStore(func(ctx *BlockContext) *linearState {
			return &linearState{
				meta:   captureMeta(ctx),
				binHz:  dsp.BinHz(opts.rate(ctx), size),
				in:     make([]float64, 0, size),
				out:    make([]float64, 0, size),
				sumIn:  make([]float64, size/2),
				sumOut: make([]float64, size/2),
			}
		}),
	}, nil
}

func (a *LinearResponse) Name() string { return NameLinearResponse }

func (a *LinearResponse) ProcessBlock(ctx *BlockContext) {
	size := a.pool.Size()
	a.runs.update(ctx, func(s *linearState) {
		for i := 0; i < ctx.Frames; i++ {
			s.in = append(s.in, ctx.InL[i])
			s.out = append(s.out, ctx.OutL[i])
			if len(s.in) < size {
				continue
			}
			s.scratch, _ = a.pool.Power(s.scratch, s.in)
			accumulate(s.sumIn, s.scratch)
			s.scratch, _ = a.pool.Power(s.scratch, s.out)
			accumulate(s.sumOut, s.scratch)
			s.windows++
			s.in, s.out = s.in[:0], s.out[:0]
		}
	})
}

func accumulate(dst, src []float64) {
	for k, v := range src {
		dst[k] += v
	}
}

// Table drains the accumulated runs. Runs without a complete frame and
// bins with no input energy produce no rows.
func (a *LinearResponse) Table() (sink.Table, int) {
	runs := a.runs.drain()
	n := len(a.opts.ParamNames)
	t := sink.Table{
		Name:   "grid_linear_response_" + string(a.opts.Signal),
		Header: header([]string{"runId", "freqHz", "magDb"}, a.opts.ParamNames),
	}
	for _, r := range runs {
		s := r.state
		if s.windows == 0 {
			continue
		}
		w := float64(s.windows)
		for k := range s.sumIn {
			magIn := math.Sqrt(s.sumIn[k] / w)
			if magIn <= 0 {
				continue
			}
			magOut := math.Sqrt(s.sumOut[k] / w)
			t.Rows = append(t.Rows, row([]any{r.runID, float64(k) * s.binHz, dsp.RatioDB(magOut / magIn)}, s.meta, n))
		}
	}
	return t, len(runs)
}

func (a *LinearResponse) Finish(dir string) error {
	t, n := a.Table()
	if !a.once.shouldEmit(n) {
		return nil
	}
	return a.opts.Sink.Write(dir, t)
}
