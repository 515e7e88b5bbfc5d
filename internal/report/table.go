// internal/report/table.go
// Package report reads measurement artifacts back for summaries and plots.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

var (
	// ErrMissingColumn indicates a required column is absent from a table
	ErrMissingColumn = errors.New("missing column")
	// ErrNoResults indicates none of the known artifacts exist in the directory
	ErrNoResults = errors.New("no result files found")
)

// Table is a numeric CSV artifact held column-wise.
type Table struct {
	Header []string
	cols   map[string][]float64
	rows   int
}

// Load reads a CSV artifact. Every cell must parse as a number.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV from r.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{Header: header, cols: make(map[string][]float64, len(header))}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i, cell := range rec {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[i], err)
			}
			t.cols[header[i]] = append(t.cols[header[i]], v)
		}
		t.rows++
	}
	return t, nil
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return t.rows
}

// Column returns the values of a column.
func (t *Table) Column(name string) ([]float64, error) {
	c, ok := t.cols[name]
	if !ok && t.rows > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return c, nil
}

// ParamColumns returns the header entries that are not in known, in order.
func (t *Table) ParamColumns(known ...string) []string {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[k] = true
	}
	var out []string
	for _, h := range t.Header {
		if !skip[h] {
			out = append(out, h)
		}
	}
	return out
}

// groupByGain returns row indices per input gain, gains ascending.
func groupByGain(gains []float64) ([]float64, map[float64][]int) {
	groups := make(map[float64][]int)
	for i, g := range gains {
		groups[g] = append(groups[g], i)
	}
	keys := make([]float64, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Float64s(keys)
	return keys, groups
}

func pick(col []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = col[j]
	}
	return out
}
