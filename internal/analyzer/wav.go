// internal/analyzer/wav.go
package analyzer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavDir is the sub-directory holding per-run captures
const WavDir = "wav"

const (
	wavBitDepth = 24
	wavPCM      = 1
)

type wavState struct {
	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer
	err  error
}

// Wav records each run as a stereo file: left is the input, right the output.
type Wav struct {
	opts Options
	runs *store[wavState]
}

// NewWav creates the analyzer writing into opts.OutputDir/wav.
func NewWav(opts Options) (*Wav, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("%s: %w", NameWav, ErrNoOutputDir)
	}
	opts = opts.withDefaults()
	a := &Wav{opts: opts}
	a.runs = newStore(a.create)
	return a, nil
}

func (a *Wav) Name() string { return NameWav }

// Path returns the capture file of a run.
func (a *Wav) Path(runID int) string {
	return filepath.Join(a.opts.OutputDir, WavDir, fmt.Sprintf("run_%d.wav", runID))
}

func (a *Wav) create(ctx *BlockContext) *wavState {
	path := a.Path(ctx.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return a.failed(ctx.RunID, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return a.failed(ctx.RunID, err)
	}
	sr := int(ctx.SampleRate)
	return &wavState{
		file: f,
		enc:  wav.NewEncoder(f, sr, wavBitDepth, 2, wavPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sr},
			SourceBitDepth: wavBitDepth,
		},
	}
}

func (a *Wav) failed(runID int, err error) *wavState {
	a.opts.Logger.Warn("wav capture disabled for run", "run", runID, "error", err)
	return &wavState{err: err}
}

func (a *Wav) ProcessBlock(ctx *BlockContext) {
	a.runs.update(ctx, func(s *wavState) {
		if s.err != nil {
			return
		}
		data := s.buf.Data[:0]
		for i := 0; i < ctx.Frames; i++ {
			data = append(data, toPCM(ctx.InL[i]), toPCM(ctx.OutL[i]))
		}
		s.buf.Data = data
		if err := s.enc.Write(s.buf); err != nil {
			s.err = err
			a.opts.Logger.Warn("wav write failed", "run", ctx.RunID, "error", err)
		}
	})
}

func toPCM(x float64) int {
	const full = 1<<(wavBitDepth-1) - 1
	return int(math.Round(min(max(x, -1), 1) * full))
}

// EndRun finalizes the run's file header and closes it.
func (a *Wav) EndRun(runID int) {
	if s := a.runs.take(runID); s != nil {
		if err := a.close(s); err != nil {
			a.opts.Logger.Warn("wav close failed", "run", runID, "error", err)
		}
	}
}

func (a *Wav) close(s *wavState) error {
	if s.file == nil {
		return s.err
	}
	err := s.enc.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

// Finish closes any run that never saw EndRun.
func (a *Wav) Finish(string) error {
	var errs []error
	for _, r := range a.runs.drain() {
		if err := a.close(r.state); err != nil {
			errs = append(errs, fmt.Errorf("run %d: %w", r.runID, err))
		}
	}
	return errors.Join(errs...)
}
