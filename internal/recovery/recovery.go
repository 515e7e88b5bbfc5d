// internal/recovery/recovery.go
// Package recovery turns panics into a fatal report at the top of main, or
// into ordinary errors inside measurement workers.
package recovery

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
)

// ErrPanic wraps a panic recovered by Guard
var ErrPanic = errors.New("recovered panic")

// HandlePanic should be deferred at the top of main().
// It prints the panic and stack trace and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		os.Exit(1)
	}
}

// Guard runs fn and converts a panic into an error wrapping ErrPanic.
// The stack of the panicking goroutine is included in the message.
//
//	g.Go(func() error {
//		return recovery.Guard(func() error { return w.run(ctx) })
//	})
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn()
}
