// Defines the Request entity that flows through the three stages.
// Per-stage arrival timestamps and the bound worker travel with the request
// instead of living in side tables.

package sim

import (
	"fmt"
)

// RequestState represents the lifecycle state of a request.
type RequestState string

const (
	StateIssued        RequestState = "issued"
	StateStage1Waiting RequestState = "stage1_waiting"
	StateStage1Service RequestState = "stage1_service"
	StateStage2Waiting RequestState = "stage2_waiting"
	StateStage2Service RequestState = "stage2_service"
	StateStage3Service RequestState = "stage3_service"
	StateReturning     RequestState = "returning"
	StateCompleted     RequestState = "completed"
)

// NoWorker is the WorkerID of a request not bound to a stage 1 worker.
const NoWorker = 0

type Request struct {
	ID       int64 // Unique for the lifetime of the simulation, assigned in issue order
	ClientID int   // Originating client

	// WorkerID is assigned at stage 1 admission and carried unchanged through
	// stages 2 and 3 until stage 1 processes the final completion.
	WorkerID int

	State RequestState

	Stage1Arrival float64 // Set on entry to stage 1
	Stage2Arrival float64 // Set on entry to stage 2
	Stage3Arrival float64 // Set on entry to stage 3
}

// NewRequest creates a request in StateIssued with no worker bound.
func NewRequest(id int64, clientID int) *Request {
	return &Request{
		ID:       id,
		ClientID: clientID,
		WorkerID: NoWorker,
		State:    StateIssued,
	}
}

// This method returns a human-readable string representation of a Request.
func (req Request) String() string {
	return fmt.Sprintf("Request: (ID: %d, Client: %d, Worker: %d, State: %s)", req.ID, req.ClientID, req.WorkerID, req.State)
}
