package trace

import (
	"encoding/csv"
	"io"
	"strconv"
)

// TraceLevel controls the verbosity of lifecycle tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every delivered message.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// SimulationTrace collects event records during a run.
type SimulationTrace struct {
	Level  TraceLevel
	Events []EventRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(level TraceLevel) *SimulationTrace {
	return &SimulationTrace{
		Level:  level,
		Events: make([]EventRecord, 0),
	}
}

// Enabled reports whether records should be collected.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Level == TraceLevelEvents
}

// RecordEvent appends an event record.
func (st *SimulationTrace) RecordEvent(record EventRecord) {
	st.Events = append(st.Events, record)
}

// Issues returns the request-id -> issue-time sequence: one entry per
// "serve" delivery, in delivery order.
func (st *SimulationTrace) Issues() []EventRecord {
	var out []EventRecord
	for _, e := range st.Events {
		if e.Kind == "serve" {
			out = append(out, e)
		}
	}
	return out
}

var csvHeader = []string{"seq", "time", "kind", "component", "request", "client", "worker"}

// WriteCSV writes every record, header first.
func (st *SimulationTrace) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range st.Events {
		row := []string{
			strconv.FormatUint(e.Seq, 10),
			strconv.FormatFloat(e.Time, 'g', -1, 64),
			e.Kind,
			e.Component,
			strconv.FormatInt(e.RequestID, 10),
			strconv.Itoa(e.ClientID),
			strconv.Itoa(e.WorkerID),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
