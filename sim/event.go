package sim

import "fmt"

// MessageKind tags which transition a Message represents. Every component owns
// a dispatch table keyed by MessageKind; a kind missing from the table is a
// protocol violation.
type MessageKind string

const (
	KindThinkTimeExpired MessageKind = "startRequest"   // client self-timer
	KindServe            MessageKind = "serve"          // client -> stage 1
	KindStage1Done       MessageKind = "stage1Done"     // stage 1 self-timer
	KindStage2Arrive     MessageKind = "secondStage"    // stage 1 -> stage 2
	KindStage2Done       MessageKind = "endSecondStage" // stage 2 self-timer
	KindStage3Arrive     MessageKind = "thirdStage"     // stage 2 -> stage 3
	KindStage3Done       MessageKind = "stage3Done"     // stage 3 self-timer
	KindEnd              MessageKind = "end"            // stage 3 -> stage 2 -> stage 1 -> client
)

// Message is the single event payload exchanged between components.
// WorkerID is meaningful from stage 1 admission onward; Request is nil only
// for client think timers.
type Message struct {
	Kind      MessageKind
	RequestID int64
	ClientID  int
	WorkerID  int
	Request   *Request
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(request=%d client=%d worker=%d)", m.Kind, m.RequestID, m.ClientID, m.WorkerID)
}

// newRequestMessage copies the identity carried by req into a new message.
func newRequestMessage(kind MessageKind, req *Request) *Message {
	return &Message{
		Kind:      kind,
		RequestID: req.ID,
		ClientID:  req.ClientID,
		WorkerID:  req.WorkerID,
		Request:   req,
	}
}

// Component is a simulation entity that receives messages from the scheduler.
type Component interface {
	Name() string
	Handle(now float64, msg *Message) error
}

// Event is one pending delivery in the scheduler.
type Event struct {
	time   float64
	seqID  uint64
	Target Component
	Msg    *Message
}

// Timestamp returns the virtual time at which the event is delivered.
func (e *Event) Timestamp() float64 { return e.time }

// SeqID returns the insertion sequence number used to break timestamp ties.
func (e *Event) SeqID() uint64 { return e.seqID }

type handlerFunc func(now float64, msg *Message) error

// dispatchTable maps message kinds to handlers for one component.
type dispatchTable map[MessageKind]handlerFunc

func (d dispatchTable) dispatch(component string, now float64, msg *Message) error {
	h, ok := d[msg.Kind]
	if !ok {
		return &ProtocolViolationError{Component: component, Kind: msg.Kind}
	}
	return h(now, msg)
}
