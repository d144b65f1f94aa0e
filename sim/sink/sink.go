// Package sink persists emitted statistics samples. Every writer implements
// sim.Sink and must be closed to flush buffered rows.
package sink

import (
	"fmt"
	"sort"
	"strings"

	"github.com/qnet-sim/qnet-sim/sim"
)

// Writer is a statistics sink backed by a file.
type Writer interface {
	sim.Sink
	Close() error
}

// opener creates a Writer for a path; runID tags every row.
type opener func(path, runID string) (Writer, error)

var openers = map[string]opener{
	"csv":     func(path, runID string) (Writer, error) { return NewCSVWriter(path, runID) },
	"sqlite":  func(path, runID string) (Writer, error) { return NewSQLiteWriter(path, runID) },
	"parquet": func(path, runID string) (Writer, error) { return NewParquetWriter(path, runID) },
	"prom":    func(path, runID string) (Writer, error) { return NewPrometheusWriter(path, runID), nil },
}

// Kinds returns the accepted sink kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(openers))
	for k := range openers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ParseSpec splits a "kind=path" sink specification.
func ParseSpec(spec string) (kind, path string, err error) {
	kind, path, ok := strings.Cut(spec, "=")
	if !ok || path == "" {
		return "", "", fmt.Errorf("sink %q: want kind=path", spec)
	}
	if _, known := openers[kind]; !known {
		return "", "", fmt.Errorf("sink %q: unknown kind %q (valid: %s)", spec, kind, strings.Join(Kinds(), ", "))
	}
	return kind, path, nil
}

// Open creates the writer described by a "kind=path" argument.
func Open(spec, runID string) (Writer, error) {
	kind, path, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	w, err := openers[kind](path, runID)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", kind, err)
	}
	return w, nil
}
