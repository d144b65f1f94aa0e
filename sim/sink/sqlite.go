package sink

import (
	"database/sql"
	"fmt"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/qnet-sim/qnet-sim/sim"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS samples (
	run_id      TEXT    NOT NULL,
	replication INTEGER NOT NULL,
	name        TEXT    NOT NULL,
	time        REAL    NOT NULL,
	value       REAL    NOT NULL,
	request     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_name ON samples (run_id, replication, name);
`

// SQLiteWriter stores samples in the samples table of a SQLite database.
// Rows are buffered and inserted in one transaction per batch. Several runs
// may share a database; run_id tells them apart.
type SQLiteWriter struct {
	*sql.DB
	statement *sql.Stmt

	runID     string
	pending   []sim.Sample
	batchSize int
}

// NewSQLiteWriter opens (or creates) the database at path.
func NewSQLiteWriter(path, runID string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create samples table: %w", err)
	}
	stmt, err := db.Prepare(`INSERT INTO samples (run_id, replication, name, time, value, request) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteWriter{
		DB:        db,
		statement: stmt,
		runID:     runID,
		batchSize: 10000,
	}, nil
}

// Record buffers s and flushes when the batch is full.
func (t *SQLiteWriter) Record(s sim.Sample) error {
	t.pending = append(t.pending, s)
	if len(t.pending) >= t.batchSize {
		return t.Flush()
	}
	return nil
}

// Flush writes all buffered samples in one transaction.
func (t *SQLiteWriter) Flush() error {
	if len(t.pending) == 0 {
		return nil
	}
	tx, err := t.Begin()
	if err != nil {
		return err
	}
	stmt := tx.Stmt(t.statement)
	for _, s := range t.pending {
		if _, err := stmt.Exec(t.runID, s.Replication, string(s.Name), s.Time, s.Value, s.RequestID); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert sample %+v: %w", s, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.pending = t.pending[:0]
	return nil
}

// Close flushes and closes the database.
func (t *SQLiteWriter) Close() error {
	flushErr := t.Flush()
	t.statement.Close()
	if err := t.DB.Close(); err != nil {
		return err
	}
	return flushErr
}
