// internal/engine/engine.go
// Package engine drives the measurement: every run of the grid is streamed
// block by block through a unit under test and fanned out to the analyzers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/fxprobe/internal/analyzer"
	"github.com/ColonelBlimp/fxprobe/internal/grid"
	"github.com/ColonelBlimp/fxprobe/internal/recovery"
	"github.com/ColonelBlimp/fxprobe/internal/signal"
	"github.com/ColonelBlimp/fxprobe/internal/unit"
)

var (
	ErrInvalidBlockSize = errors.New("block size must be positive")
	ErrInvalidDuration  = errors.New("duration must be positive")
	ErrInvalidChannels  = errors.New("channels must be 1 or 2")
	ErrNoFactory        = errors.New("unit factory is required")
)

// DefaultProgressEvery is how often, in runs, progress is logged
const DefaultProgressEvery = 10

// Config holds the fixed measurement setup shared by all runs.
type Config struct {
	Signal    signal.Config
	BlockSize int
	// Seconds is the length of every run; total samples are truncated
	Seconds  float64
	Channels int
	// Workers shards runs across goroutines, each with its own unit instance
	Workers int
	// ParamNames orders the parameter vector handed to analyzers
	ParamNames []string
}

// Progress is called after each completed run.
type Progress func(done, total int)

// Engine runs a measurement. Analyzer instances are shared by all workers.
type Engine struct {
	cfg       Config
	factory   unit.Factory
	analyzers []analyzer.Analyzer
	logger    *slog.Logger
	progress  Progress
	every     int
	done      atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress registers a callback invoked after each run.
func WithProgress(p Progress) Option {
	return func(e *Engine) { e.progress = p }
}

// WithProgressEvery sets the run interval of progress log lines.
func WithProgressEvery(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.every = n
		}
	}
}

// New validates cfg and creates an engine.
func New(cfg Config, factory unit.Factory, analyzers []analyzer.Analyzer, opts ...Option) (*Engine, error) {
	var errs []error
	if cfg.Signal.SampleRate <= 0 {
		errs = append(errs, signal.ErrInvalidSampleRate)
	}
	if cfg.BlockSize <= 0 {
		errs = append(errs, ErrInvalidBlockSize)
	}
	if cfg.Seconds <= 0 {
		errs = append(errs, ErrInvalidDuration)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		errs = append(errs, ErrInvalidChannels)
	}
	if factory == nil {
		errs = append(errs, ErrNoFactory)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Signal.Duration <= 0 {
		cfg.Signal.Duration = cfg.Seconds
	}

	e := &Engine{
		cfg:       cfg,
		factory:   factory,
		analyzers: analyzers,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		every:     DefaultProgressEvery,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// TotalSamples is the per-run sample count, duration times sample rate truncated.
func (e *Engine) TotalSamples() int64 {
	return int64(e.cfg.Seconds * e.cfg.Signal.SampleRate)
}

// Completed returns how many runs have finished since the engine was created.
func (e *Engine) Completed() int {
	return int(e.done.Load())
}

// Run streams every run through the unit. Cancellation is checked between
// runs; a unit error or panic aborts the whole measurement.
func (e *Engine) Run(ctx context.Context, runs []grid.Run) error {
	if len(runs) == 0 {
		return nil
	}
	workers := min(e.cfg.Workers, len(runs))
	e.logger.Info("measurement started",
		"runs", len(runs),
		"workers", workers,
		"samples_per_run", e.TotalSamples(),
		"analyzers", len(e.analyzers))

	jobs := make(chan grid.Run)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, r := range runs {
			select {
			case jobs <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for id := range workers {
		g.Go(func() error {
			return recovery.Guard(func() error {
				return e.work(gctx, id, jobs, len(runs))
			})
		})
	}

	return g.Wait()
}

// Finish asks every analyzer to write its artifact into dir. It must only be
// called after Run returns. Failures are logged and do not stop the others.
func (e *Engine) Finish(dir string) error {
	var errs []error
	for _, a := range e.analyzers {
		if err := a.Finish(dir); err != nil {
			e.logger.Warn("analyzer produced no output", "analyzer", a.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Measure runs the grid and finishes the analyzers into dir. Aggregates are
// not written when the run is interrupted.
func (e *Engine) Measure(ctx context.Context, runs []grid.Run, dir string) error {
	if err := e.Run(ctx, runs); err != nil {
		return err
	}
	return e.Finish(dir)
}
