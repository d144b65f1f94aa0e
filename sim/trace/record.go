// Package trace provides lifecycle-trace recording of delivered simulation events.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// EventRecord captures one delivered message.
type EventRecord struct {
	Seq       uint64  // scheduler insertion sequence, unique per run
	Time      float64 // virtual delivery time
	Kind      string  // message kind
	Component string  // receiving component
	RequestID int64   // -1 for client think timers
	ClientID  int
	WorkerID  int // 0 before stage 1 admission
}
