// internal/analyzer/analyzer.go
// Package analyzer holds the block-streaming analyzers. Each analyzer keeps
// independent state per run, so blocks of different runs may arrive
// interleaved from several workers; blocks of one run arrive in order.
package analyzer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/ColonelBlimp/fxprobe/internal/signal"
	"github.com/ColonelBlimp/fxprobe/internal/sink"
)

var (
	// ErrIncompatible indicates an analyzer cannot work with the selected signal
	ErrIncompatible = errors.New("analyzer incompatible with signal type")
	// ErrNoOutputDir indicates a streaming analyzer has nowhere to write
	ErrNoOutputDir = errors.New("output directory is required")
)

// Analyzer names as used in configuration
const (
	NameRawCsv         = "RawCsv"
	NameRmsPeak        = "RmsPeak"
	NameTransferCurve  = "TransferCurve"
	NameLinearResponse = "LinearResponse"
	NameThd            = "Thd"
	NameWav            = "Wav"
)

// Names lists every analyzer in the order they are documented.
func Names() []string {
	return []string{NameRawCsv, NameRmsPeak, NameTransferCurve, NameLinearResponse, NameThd, NameWav}
}

// BlockContext is the read-only view of one block of one run. It is only
// valid for the duration of a ProcessBlock call.
type BlockContext struct {
	RunID int
	// FirstSample is the absolute index of the block's first frame within the run
	FirstSample int64
	SampleRate  float64
	Frames      int

	// InR and OutR are nil for mono measurements
	InL, InR   []float64
	OutL, OutR []float64

	// Params is ordered like the engine's parameter names
	Params      []float64
	NamedParams map[string]float64
	InputGainDB float64
}

// Analyzer consumes blocks and emits a summary artifact at finish.
type Analyzer interface {
	Name() string
	// ProcessBlock mutates only the state of ctx.RunID
	ProcessBlock(ctx *BlockContext)
	// Finish writes all runs seen so far into dir; a second call with no
	// new data is a no-op
	Finish(dir string) error
}

// RunEnder is implemented by analyzers that release per-run resources
// once the run's last block has been delivered.
type RunEnder interface {
	EndRun(runID int)
}

// Options configures the analyzer set of one measurement.
type Options struct {
	// ParamNames orders BlockContext.Params and the parameter columns
	ParamNames []string
	SampleRate float64
	// Channels is 1 for mono, 2 for stereo
	Channels int
	Signal   signal.Type
	// Fundamental is the THD reference frequency in Hz (the sine frequency)
	Fundamental float64

	TransferBins  int
	LinearFFTSize int
	THDFFTSize    int

	// OutputDir receives artifacts written while runs are in progress
	OutputDir string
	Sink      sink.Sink
	Logger    *slog.Logger
}

// Defaults applied when an option is zero
const (
	DefaultTransferBins  = 512
	DefaultLinearFFTSize = 4096
	DefaultTHDFFTSize    = 2048
)

func (o Options) withDefaults() Options {
	if o.TransferBins <= 0 {
		o.TransferBins = DefaultTransferBins
	}
	if o.LinearFFTSize <= 0 {
		o.LinearFFTSize = DefaultLinearFFTSize
	}
	if o.THDFFTSize <= 0 {
		o.THDFFTSize = DefaultTHDFFTSize
	}
	if o.Channels <= 0 {
		o.Channels = 2
	}
	if o.Sink == nil {
		o.Sink = sink.CSV{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Build creates the named analyzers. Unknown names and analyzers that do not
// apply to the selected signal are logged and skipped.
func Build(names []string, opts Options) ([]Analyzer, error) {
	opts = opts.withDefaults()
	var out []Analyzer
	for _, name := range names {
		a, err := build(name, opts)
		switch {
		case errors.Is(err, ErrIncompatible):
			opts.Logger.Warn("skipping analyzer", "analyzer", name, "signal", opts.Signal, "reason", err)
			continue
		case err != nil:
			return nil, err
		case a == nil:
			opts.Logger.Warn("unknown analyzer", "analyzer", name)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func build(name string, opts Options) (Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case strings.ToLower(NameRawCsv):
		return NewRawCsv(opts)
	case strings.ToLower(NameRmsPeak):
		return NewRmsPeak(opts), nil
	case strings.ToLower(NameTransferCurve):
		return NewTransferCurve(opts), nil
	case strings.ToLower(NameLinearResponse):
		if opts.Signal != signal.TypeNoise && opts.Signal != signal.TypeSweep {
			return nil, fmt.Errorf("%w: needs noise or sweep", ErrIncompatible)
		}
		return NewLinearResponse(opts)
	case strings.ToLower(NameThd):
		if opts.Signal != signal.TypeSine {
			return nil, fmt.Errorf("%w: needs sine", ErrIncompatible)
		}
		return NewThd(opts)
	case strings.ToLower(NameWav):
		return NewWav(opts)
	}
	return nil, nil
}

// runMeta is captured on first contact with a run and never overwritten.
type runMeta struct {
	params []float64
	gainDB float64
}

// rate is the block's sample rate, or the configured one when the block
// does not carry it.
func (o Options) rate(ctx *BlockContext) float64 {
	if ctx.SampleRate > 0 {
		return ctx.SampleRate
	}
	return o.SampleRate
}

func captureMeta(ctx *BlockContext) runMeta {
	return runMeta{
		params: append([]float64(nil), ctx.Params...),
		gainDB: ctx.InputGainDB,
	}
}

// cells renders the meta columns: every parameter then the gain.
func (m runMeta) cells(numParams int) []any {
	out := make([]any, 0, numParams+1)
	for i := range numParams {
		var v float64
		if i < len(m.params) {
			v = m.params[i]
		}
		out = append(out, v)
	}
	return append(out, m.gainDB)
}

// header builds prefix + parameter names + inputGainDb + suffix.
func header(prefix []string, paramNames []string, suffix ...string) []string {
	h := make([]string, 0, len(prefix)+len(paramNames)+1+len(suffix))
	h = append(h, prefix...)
	h = append(h, paramNames...)
	h = append(h, "inputGainDb")
	return append(h, suffix...)
}

func row(lead []any, meta runMeta, numParams int, tail ...any) []any {
	r := make([]any, 0, len(lead)+numParams+1+len(tail))
	r = append(r, lead...)
	r = append(r, meta.cells(numParams)...)
	return append(r, tail...)
}

// finishOnce makes repeated Finish calls without new data a no-op.
type finishOnce struct {
	finished atomic.Bool
}

// shouldEmit reports whether Finish must write, given how many runs it drained.
func (f *finishOnce) shouldEmit(drained int) bool {
	return !f.finished.Swap(true) || drained > 0
}
