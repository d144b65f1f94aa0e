package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/qnet-sim/qnet-sim/sim"
)

var csvHeader = []string{"run_id", "replication", "name", "time", "value", "request"}

// CSVWriter stores samples in a CSV file. If the file already exists, it is
// overwritten.
type CSVWriter struct {
	runID string
	file  *os.File
	w     *csv.Writer

	buffered   int
	bufferSize int
}

// NewCSVWriter creates the file and writes the header row.
func NewCSVWriter(path, runID string) (*CSVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		file.Close()
		return nil, err
	}
	return &CSVWriter{runID: runID, file: file, w: w, bufferSize: 1000}, nil
}

// Record appends one row.
func (c *CSVWriter) Record(s sim.Sample) error {
	err := c.w.Write([]string{
		c.runID,
		strconv.Itoa(s.Replication),
		string(s.Name),
		strconv.FormatFloat(s.Time, 'g', -1, 64),
		strconv.FormatFloat(s.Value, 'g', -1, 64),
		strconv.FormatInt(s.RequestID, 10),
	})
	if err != nil {
		return err
	}
	c.buffered++
	if c.buffered >= c.bufferSize {
		return c.Flush()
	}
	return nil
}

// Flush writes buffered rows to the file.
func (c *CSVWriter) Flush() error {
	c.buffered = 0
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file.
func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		c.file.Close()
		return err
	}
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("failed to close csv file: %w", err)
	}
	return nil
}
