package sink

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/qnet-sim/qnet-sim/sim"
)

// SampleRow is the Parquet schema of one sample.
type SampleRow struct {
	RunID       string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Replication int32   `parquet:"name=replication, type=INT32"`
	Name        string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time        float64 `parquet:"name=time, type=DOUBLE"`
	Value       float64 `parquet:"name=value, type=DOUBLE"`
	RequestID   int64   `parquet:"name=request, type=INT64"`
}

// ParquetWriter stores samples in a Parquet file.
type ParquetWriter struct {
	writer    *writer.ParquetWriter
	file      source.ParquetFile
	runID     string
	batchSize int
	rows      []SampleRow
}

// NewParquetWriter creates the file at path.
func NewParquetWriter(path, runID string) (*ParquetWriter, error) {
	file, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}
	pw, err := writer.NewParquetWriter(file, new(SampleRow), 4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	return &ParquetWriter{
		writer:    pw,
		file:      file,
		runID:     runID,
		batchSize: 1000,
		rows:      make([]SampleRow, 0, 1000),
	}, nil
}

// Record adds a row to the batch and flushes if the batch is full.
func (pw *ParquetWriter) Record(s sim.Sample) error {
	pw.rows = append(pw.rows, SampleRow{
		RunID:       pw.runID,
		Replication: int32(s.Replication),
		Name:        string(s.Name),
		Time:        s.Time,
		Value:       s.Value,
		RequestID:   s.RequestID,
	})
	if len(pw.rows) >= pw.batchSize {
		return pw.flush()
	}
	return nil
}

func (pw *ParquetWriter) flush() error {
	for _, row := range pw.rows {
		if err := pw.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	pw.rows = pw.rows[:0]
	return nil
}

// Close flushes any remaining rows and closes the writer.
func (pw *ParquetWriter) Close() error {
	if err := pw.flush(); err != nil {
		return err
	}
	if err := pw.writer.WriteStop(); err != nil {
		return fmt.Errorf("failed to stop parquet writer: %w", err)
	}
	if err := pw.file.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}
