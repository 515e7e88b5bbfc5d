// internal/sink/sink.go
// Package sink persists the tables analyzers produce at finish time.
package sink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownSink indicates an unsupported sink name
	ErrUnknownSink = errors.New("unknown sink")
	// ErrRowWidth indicates a row whose length differs from the header
	ErrRowWidth = errors.New("row width does not match header")
)

// Table is one analyzer's summary: a named header plus rows of
// int, int64, float64 or string cells.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Validate checks that every row matches the header width.
func (t Table) Validate() error {
	for i, r := range t.Rows {
		if len(r) != len(t.Header) {
			return fmt.Errorf("%w: table %s row %d has %d cells, header has %d",
				ErrRowWidth, t.Name, i, len(r), len(t.Header))
		}
	}
	return nil
}

// Sink writes tables into an output directory.
type Sink interface {
	Write(dir string, t Table) error
	Close() error
}

// New returns the sink registered under name ("csv" or "sqlite").
func New(name string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "csv":
		return CSV{}, nil
	case "sqlite":
		return NewSQLite(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
	}
}

// FormatCell renders a cell the way every text artifact does.
func FormatCell(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
