// internal/analyzer/store.go
package analyzer

import (
	"sort"
	"sync"
)

// store maps run id to an accumulator created on first access. Each entry has
// its own lock, so workers on different runs never contend on state.
type store[T any] struct {
	mu    sync.Mutex
	runs  map[int]*slot[T]
	fresh func(*BlockContext) *T
}

type slot[T any] struct {
	mu    sync.Mutex
	state *T
}

type runState[T any] struct {
	runID int
	state *T
}

func newStore[T any](fresh func(*BlockContext) *T) *store[T] {
	return &store[T]{runs: make(map[int]*slot[T]), fresh: fresh}
}

// update runs fn with exclusive access to the state of ctx.RunID.
func (s *store[T]) update(ctx *BlockContext, fn func(*T)) {
	s.mu.Lock()
	sl, ok := s.runs[ctx.RunID]
	if !ok {
		sl = &slot[T]{state: s.fresh(ctx)}
		s.runs[ctx.RunID] = sl
	}
	s.mu.Unlock()

	sl.mu.Lock()
	fn(sl.state)
	sl.mu.Unlock()
}

// take removes and returns one run's state, or nil.
func (s *store[T]) take(runID int) *T {
	s.mu.Lock()
	sl, ok := s.runs[runID]
	delete(s.runs, runID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state
}

// drain removes every run and returns them sorted by run id.
func (s *store[T]) drain() []runState[T] {
	s.mu.Lock()
	runs := s.runs
	s.runs = make(map[int]*slot[T])
	s.mu.Unlock()

	out := make([]runState[T], 0, len(runs))
	for id, sl := range runs {
		sl.mu.Lock()
		out = append(out, runState[T]{runID: id, state: sl.state})
		sl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].runID < out[j].runID })
	return out
}
