// internal/analyzer/transfer.go
package analyzer

import (
	"math"

	"github.com/ColonelBlimp/fxprobe/internal/sink"
)

type transferState struct {
	meta   runMeta
	sumY   []float64
	counts []int64
}

// TransferCurve histograms output level against instantaneous input level
// over [-1, 1], using the left channels.
type TransferCurve struct {
	opts Options
	runs *store[transferState]
	once finishOnce
}

// NewTransferCurve creates the analyzer with opts.TransferBins bins.
func NewTransferCurve(opts Options) *TransferCurve {
	opts = opts.withDefaults()
	bins := opts.TransferBins
	return &TransferCurve{
		opts: opts,
		runs: newStore(func(ctx *BlockContext) *transferState {
			return &transferState{
				meta:   captureMeta(ctx),
				sumY:   make([]float64, bins),
				counts: make([]int64, bins),
			}
		}),
	}
}

func (a *TransferCurve) Name() string { return NameTransferCurve }

// BinIndex maps x in [-1, 1] to a bin; values outside are clamped to the edges.
func BinIndex(x float64, numBins int) int {
	idx := int(math.Floor((x + 1) / 2 * float64(numBins)))
	return min(max(idx, 0), numBins-1)
}

// BinCenter is the input value at the middle of bin idx.
func BinCenter(idx, numBins int) float64 {
	return (float64(idx)+0.5)/float64(numBins)*2 - 1
}

func (a *TransferCurve) ProcessBlock(ctx *BlockContext) {
	bins := a.opts.TransferBins
	a.runs.update(ctx, func(s *transferState) {
		for i := 0; i < ctx.Frames; i++ {
			b := BinIndex(ctx.InL[i], bins)
			s.sumY[b] += ctx.OutL[i]
			s.counts[b]++
		}
	})
}

// Table drains the accumulated runs; empty bins are omitted.
func (a *TransferCurve) Table() (sink.Table, int) {
	runs := a.runs.drain()
	n := len(a.opts.ParamNames)
	bins := a.opts.TransferBins
	t := sink.Table{
		Name:   "grid_transfer_curves",
		Header: header([]string{"runId", "binIndex", "x", "meanY", "count"}, a.opts.ParamNames),
	}
	for _, r := range runs {
		s := r.state
		for b := 0; b < bins; b++ {
			if s.counts[b] == 0 {
				continue
			}
			meanY := s.sumY[b] / float64(s.counts[b])
			t.Rows = append(t.Rows, row([]any{r.runID, b, BinCenter(b, bins), meanY, s.counts[b]}, s.meta, n))
		}
	}
	return t, len(runs)
}

func (a *TransferCurve) Finish(dir string) error {
	t, n := a.Table()
	if !a.once.shouldEmit(n) {
		return nil
	}
	return a.opts.Sink.Write(dir, t)
}
