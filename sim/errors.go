package sim

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is. Neither is recoverable: both mean the
// topology or a component is broken, so the run is aborted.
var (
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrInvariantViolation = errors.New("invariant violation")
)

// ProtocolViolationError reports a message kind that the receiving component
// has no handler for.
type ProtocolViolationError struct {
	Component string
	Kind      MessageKind
	Detail    string
}

func (e *ProtocolViolationError) Error() string {
	msg := fmt.Sprintf("%s received an unknown message: %q", e.Component, e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ProtocolViolationError) Unwrap() error { return ErrProtocolViolation }

// InvariantViolationError identifies the request, worker and stage whose
// bookkeeping no longer adds up. RequestID and WorkerID are -1 / 0 when not
// applicable.
type InvariantViolationError struct {
	Component string
	RequestID int64
	WorkerID  int
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %s (request=%d worker=%d)", e.Component, e.Detail, e.RequestID, e.WorkerID)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

func invariantf(component string, requestID int64, workerID int, format string, args ...any) error {
	return &InvariantViolationError{
		Component: component,
		RequestID: requestID,
		WorkerID:  workerID,
		Detail:    fmt.Sprintf(format, args...),
	}
}
