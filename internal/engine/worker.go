// internal/engine/worker.go
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/ColonelBlimp/fxprobe/internal/analyzer"
	"github.com/ColonelBlimp/fxprobe/internal/grid"
	"github.com/ColonelBlimp/fxprobe/internal/signal"
	"github.com/ColonelBlimp/fxprobe/internal/unit"
)

// worker owns one unit instance and its block buffers.
type worker struct {
	e   *Engine
	id  int
	u   unit.Unit
	in  *signal.Buffer
	out *signal.Buffer
}

func (e *Engine) work(ctx context.Context, id int, jobs <-chan grid.Run, total int) error {
	u, err := e.factory()
	if err != nil {
		return fmt.Errorf("worker %d: create unit: %w", id, err)
	}
	if c, ok := u.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				e.logger.Warn("unit close failed", "worker", id, "error", err)
			}
		}()
	}

	w := &worker{
		e:   e,
		id:  id,
		u:   u,
		in:  signal.NewBuffer(e.cfg.Channels, e.cfg.BlockSize),
		out: signal.NewBuffer(e.cfg.Channels, e.cfg.BlockSize),
	}

	for r := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.run(r); err != nil {
			return err
		}
		e.completed(r, total)
	}
	return nil
}

func (e *Engine) completed(r grid.Run, total int) {
	done := int(e.done.Add(1))
	if done == 1 || done%e.every == 0 || done == total {
		e.logger.Info("progress", "done", done, "total", total, "run", r.ID)
	}
	if e.progress != nil {
		e.progress(done, total)
	}
}

func (w *worker) configure(r grid.Run) {
	w.u.Reset()
	for _, name := range w.e.cfg.ParamNames {
		v, ok := r.Params[name]
		if !ok {
			continue
		}
		if err := w.u.SetParameter(name, v); err != nil {
			w.e.logger.Warn("parameter skipped", "run", r.ID, "param", name, "error", err)
		}
	}
}

// run streams one grid run; blocks of a run reach analyzers strictly in order.
func (w *worker) run(r grid.Run) error {
	cfg := w.e.cfg
	w.configure(r)

	gen, err := signal.New(cfg.Signal, signal.DBToLinear(r.InputGainDB), r.ID)
	if err != nil {
		return fmt.Errorf("run %d: %w", r.ID, err)
	}
	w.e.logger.Debug("run started", "worker", w.id, "run", r.ID, "params", r.Params, "gain_db", r.InputGainDB)

	params := r.ParamVector(cfg.ParamNames)
	total := w.e.TotalSamples()
	for pos := int64(0); pos < total; pos += int64(cfg.BlockSize) {
		n := int(min(int64(cfg.BlockSize), total-pos))
		gen.Fill(w.in, n)
		in, out := w.in.Slice(n), w.out.Slice(n)
		out.CopyFrom(in)
		if err := w.u.Process(out); err != nil {
			return fmt.Errorf("run %d: process block at %d: %w", r.ID, pos, err)
		}

		bc := &analyzer.BlockContext{
			RunID:       r.ID,
			FirstSample: pos,
			SampleRate:  cfg.Signal.SampleRate,
			Frames:      n,
			InL:         in.Channel(0),
			OutL:        out.Channel(0),
			Params:      params,
			NamedParams: r.Params,
			InputGainDB: r.InputGainDB,
		}
		if cfg.Channels > 1 {
			bc.InR, bc.OutR = in.Channel(1), out.Channel(1)
		}
		for _, a := range w.e.analyzers {
			a.ProcessBlock(bc)
		}
	}

	for _, a := range w.e.analyzers {
		if re, ok := a.(analyzer.RunEnder); ok {
			re.EndRun(r.ID)
		}
	}
	return nil
}
