// internal/analyzer/raw.go
package analyzer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ColonelBlimp/fxprobe/internal/sink"
)

// RawFile is the name of the per-sample dump
const RawFile = "raw.csv"

// RawCsv streams every sample of every run to raw.csv as blocks arrive.
// Rows of different runs may interleave when workers run in parallel.
type RawCsv struct {
	opts Options

	mu      sync.Mutex
	file    *os.File
	w       *csv.Writer
	record  []string
	header  bool // header already written to the file
	failed  bool
	failErr error // reported once by Finish
	pending bool // rows written since the last Finish
	once    finishOnce
}

// NewRawCsv creates the analyzer writing into opts.OutputDir. Rows stream
// to disk while runs are measured, so the directory is required up front.
func NewRawCsv(opts Options) (*RawCsv, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("%s: %w", NameRawCsv, ErrNoOutputDir)
	}
	return &RawCsv{opts: opts.withDefaults()}, nil
}

func (a *RawCsv) Name() string { return NameRawCsv }

func (a *RawCsv) columns() []string {
	if a.opts.Channels > 1 {
		return []string{"runId", "sample", "time_sec", "inL", "inR", "outL", "outR"}
	}
	return []string{"runId", "sample", "time_sec", "inL", "outL"}
}

// open creates raw.csv on first use, or reopens it for append after a Finish.
func (a *RawCsv) open(dir string) bool {
	if a.w != nil {
		return true
	}
	if a.failed {
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.fail(err)
		return false
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if a.header {
		flags = os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(filepath.Join(dir, RawFile), flags, 0o644)
	if err != nil {
		a.fail(err)
		return false
	}
	a.file = f
	a.w = csv.NewWriter(f)
	if !a.header {
		if err := a.w.Write(a.columns()); err != nil {
			a.fail(err)
			return false
		}
		a.header = true
	}
	return true
}

func (a *RawCsv) fail(err error) {
	a.failed = true
	a.failErr = fmt.Errorf("%s: %w", RawFile, err)
	a.opts.Logger.Warn("raw dump disabled", "file", RawFile, "error", err)
	if a.file != nil {
		_ = a.file.Close()
		a.file, a.w = nil, nil
	}
}

func (a *RawCsv) ProcessBlock(ctx *BlockContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open(a.opts.OutputDir) {
		return
	}

	stereo := a.opts.Channels > 1
	for i := 0; i < ctx.Frames; i++ {
		s := ctx.FirstSample + int64(i)
		rec := append(a.record[:0],
			sink.FormatCell(ctx.RunID),
			sink.FormatCell(s),
			sink.FormatCell(float64(s)/ctx.SampleRate),
			sink.FormatCell(ctx.InL[i]))
		if stereo {
			rec = append(rec, sink.FormatCell(sampleAt(ctx.InR, i)))
		}
		rec = append(rec, sink.FormatCell(ctx.OutL[i]))
		if stereo {
			rec = append(rec, sink.FormatCell(sampleAt(ctx.OutR, i)))
		}
		a.record = rec
		if err := a.w.Write(rec); err != nil {
			a.fail(err)
			return
		}
	}
	a.pending = true
}

func sampleAt(x []float64, i int) float64 {
	if i < len(x) {
		return x[i]
	}
	return 0
}

// EndRun flushes buffered rows so a finished run is on disk.
func (a *RawCsv) EndRun(int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w == nil {
		return
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		a.fail(err)
	}
}

// Finish flushes and closes raw.csv. With no blocks at all it writes a
// header-only file. The file always lives in the streaming directory, so
// the Finish directory is not used; a write failure is returned once.
func (a *RawCsv) Finish(string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.failErr; err != nil {
		a.failErr = nil
		return err
	}
	if !a.once.shouldEmit(boolToInt(a.pending)) {
		return nil
	}
	a.pending = false
	if a.w == nil && !a.header && !a.open(a.opts.OutputDir) {
		err := a.failErr
		a.failErr = nil
		return err
	}
	if a.w == nil {
		return nil
	}

	a.w.Flush()
	err := a.w.Error()
	if cerr := a.file.Close(); err == nil {
		err = cerr
	}
	a.file, a.w = nil, nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
