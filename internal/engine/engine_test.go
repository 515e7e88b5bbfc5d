package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColonelBlimp/fxprobe/internal/analyzer"
	"github.com/ColonelBlimp/fxprobe/internal/bucket"
	"github.com/ColonelBlimp/fxprobe/internal/grid"
	"github.com/ColonelBlimp/fxprobe/internal/recovery"
	"github.com/ColonelBlimp/fxprobe/internal/signal"
	"github.com/ColonelBlimp/fxprobe/internal/sink"
	"github.com/ColonelBlimp/fxprobe/internal/unit"
)

func testConfig() Config {
	return Config{
		Signal: signal.Config{
			Type:          signal.TypeSine,
			SampleRate:    8000,
			SineFrequency: 500,
		},
		BlockSize:  100,
		Seconds:    0.1255, // 1004 samples: ten full blocks and a partial one
		Channels:   2,
		Workers:    1,
		ParamNames: []string{"gain"},
	}
}

func gainFactory() unit.Factory {
	return func() (unit.Unit, error) { return unit.NewGain(), nil }
}

// blockRecorder checks per-run ordering and counts samples.
type blockRecorder struct {
	mu      sync.Mutex
	next    map[int]int64
	samples map[int]int64
	ended   map[int]bool
	errs    []string
}

func newBlockRecorder() *blockRecorder {
	return &blockRecorder{next: map[int]int64{}, samples: map[int]int64{}, ended: map[int]bool{}}
}

func (b *blockRecorder) Name() string { return "recorder" }

func (b *blockRecorder) ProcessBlock(ctx *analyzer.BlockContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ctx.FirstSample != b.next[ctx.RunID] {
		b.errs = append(b.errs, "out of order block")
	}
	if b.ended[ctx.RunID] {
		b.errs = append(b.errs, "block after EndRun")
	}
	b.next[ctx.RunID] = ctx.FirstSample + int64(ctx.Frames)
	b.samples[ctx.RunID] += int64(ctx.Frames)
}

func (b *blockRecorder) EndRun(runID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended[runID] = true
}

func (b *blockRecorder) Finish(string) error { return nil }

type failingAnalyzer struct{ blockRecorder }

func (f *failingAnalyzer) Finish(string) error { return errors.New("disk full") }

type memSink struct {
	mu     sync.Mutex
	tables map[string]sink.Table
}

func (m *memSink) Write(_ string, t sink.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables == nil {
		m.tables = map[string]sink.Table{}
	}
	m.tables[t.Name] = t
	return nil
}

func (m *memSink) Close() error { return nil }

func testRuns() []grid.Run {
	return grid.Build([]bucket.Spec{{ParamName: "gain", Strategy: bucket.Linear, Min: 0.25, Max: 0.75, NumBuckets: 3}},
		[]float64{-12, -6})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
	for _, want := range []error{signal.ErrInvalidSampleRate, ErrInvalidBlockSize, ErrInvalidDuration, ErrInvalidChannels, ErrNoFactory} {
		assert.ErrorIs(t, err, want)
	}

	e, err := New(testConfig(), gainFactory(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1004), e.TotalSamples())
}

func TestRun_EveryRunStreamsAllSamplesInOrder(t *testing.T) {
	rec := newBlockRecorder()
	e, err := New(testConfig(), gainFactory(), []analyzer.Analyzer{rec})
	require.NoError(t, err)

	runs := testRuns()
	require.NoError(t, e.Run(context.Background(), runs))

	assert.Empty(t, rec.errs)
	assert.Len(t, rec.samples, len(runs))
	for id, n := range rec.samples {
		assert.Equal(t, int64(1004), n, "run %d", id)
		assert.True(t, rec.ended[id], "run %d not ended", id)
	}
	assert.Equal(t, len(runs), e.Completed())
}

func TestRun_GainUnitScalesOutput(t *testing.T) {
	ms := &memSink{}
	cfg := testConfig()
	rms := analyzer.NewRmsPeak(analyzer.Options{ParamNames: cfg.ParamNames, Sink: ms})
	e, err := New(cfg, gainFactory(), []analyzer.Analyzer{rms})
	require.NoError(t, err)
	require.NoError(t, e.Measure(context.Background(), testRuns(), t.TempDir()))

	tbl := ms.tables["grid_rms_peak"]
	require.Len(t, tbl.Rows, 6)
	for _, r := range tbl.Rows {
		norm := r[1].(float64)
		gainDB := r[2].(float64)
		peakIn := r[7].(float64)
		peakOut := r[9].(float64)
		wantFactor := signal.DBToLinear(-24 + norm*48)
		assert.InDelta(t, signal.DBToLinear(gainDB), peakIn, 1e-9)
		assert.InDelta(t, peakIn*wantFactor, peakOut, 1e-9)
	}
}

func TestRun_ParallelMatchesSerial(t *testing.T) {
	measure := func(workers int) sink.Table {
		ms := &memSink{}
		cfg := testConfig()
		cfg.Workers = workers
		rms := analyzer.NewRmsPeak(analyzer.Options{ParamNames: cfg.ParamNames, Sink: ms})
		tc := analyzer.NewTransferCurve(analyzer.Options{ParamNames: cfg.ParamNames, Sink: ms, TransferBins: 32})
		e, err := New(cfg, gainFactory(), []analyzer.Analyzer{rms, tc})
		require.NoError(t, err)
		require.NoError(t, e.Measure(context.Background(), testRuns(), t.TempDir()))
		return ms.tables["grid_rms_peak"]
	}

	serial := measure(1)
	parallel := measure(4)
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("parallel result differs (-serial +parallel):\n%s", diff)
	}
}

type brokenUnit struct {
	unit.Identity
	panics bool
}

func (b *brokenUnit) Process(*signal.Buffer) error {
	if b.panics {
		panic("unit crashed")
	}
	return errors.New("device lost")
}

func TestRun_UnitErrorAborts(t *testing.T) {
	e, err := New(testConfig(), func() (unit.Unit, error) { return &brokenUnit{}, nil }, nil)
	require.NoError(t, err)
	err = e.Run(context.Background(), testRuns())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")
}

func TestRun_UnitPanicBecomesError(t *testing.T) {
	e, err := New(testConfig(), func() (unit.Unit, error) { return &brokenUnit{panics: true}, nil }, nil)
	require.NoError(t, err)
	err = e.Run(context.Background(), testRuns())
	assert.ErrorIs(t, err, recovery.ErrPanic)
}

func TestRun_FactoryError(t *testing.T) {
	boom := errors.New("no such plugin")
	e, err := New(testConfig(), func() (unit.Unit, error) { return nil, boom }, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background(), testRuns()), boom)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newBlockRecorder()
	e, err := New(testConfig(), gainFactory(), []analyzer.Analyzer{rec})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(ctx, testRuns()), context.Canceled)
	assert.Empty(t, rec.samples)
}

func TestRun_UnknownParameterIsSkipped(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig()
	cfg.ParamNames = []string{"gain", "colour"}
	runs := grid.Build([]bucket.Spec{
		{ParamName: "gain", Strategy: bucket.ExplicitValues, Explicit: []float64{0.5}},
		{ParamName: "colour", Strategy: bucket.ExplicitValues, Explicit: []float64{1}},
	}, []float64{0})

	e, err := New(cfg, gainFactory(), nil, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), runs))
	assert.Contains(t, logs.String(), "parameter skipped")
	assert.Contains(t, logs.String(), "colour")
}

func TestRun_Progress(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	cfg := testConfig()
	cfg.Workers = 2
	e, err := New(cfg, gainFactory(), nil, WithProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 6, total)
		seen = append(seen, done)
	}))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), testRuns()))
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6}, seen)
}

func TestRun_Mono(t *testing.T) {
	cfg := testConfig()
	cfg.Channels = 1
	var sawRight bool
	probe := &probeAnalyzer{fn: func(ctx *analyzer.BlockContext) {
		if ctx.InR != nil || ctx.OutR != nil {
			sawRight = true
		}
	}}
	e, err := New(cfg, gainFactory(), []analyzer.Analyzer{probe})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), testRuns()[:1]))
	assert.False(t, sawRight)
}

type probeAnalyzer struct {
	fn func(*analyzer.BlockContext)
}

func (p *probeAnalyzer) Name() string { return "probe" }

func (p *probeAnalyzer) ProcessBlock(ctx *analyzer.BlockContext) { p.fn(ctx) }

func (p *probeAnalyzer) Finish(string) error { return nil }

func TestFinish_ContinuesPastFailures(t *testing.T) {
	ms := &memSink{}
	bad := &failingAnalyzer{}
	rms := analyzer.NewRmsPeak(analyzer.Options{ParamNames: []string{"gain"}, Sink: ms})
	e, err := New(testConfig(), gainFactory(), []analyzer.Analyzer{bad, rms})
	require.NoError(t, err)

	err = e.Finish(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, ms.tables, "grid_rms_peak")
}
