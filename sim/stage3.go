package sim

import (
	"github.com/sirupsen/logrus"
)

// Stage3Name is the component and stream-prefix name of the pass-through stage.
const Stage3Name = "stage3"

// PassThroughStage is stage 3: every arriving request starts executing at once
// with its own completion timer. Concurrency is bounded only by stage 1
// admission, so at most poolCapacity requests are ever here.
//
// Gates: GateOut -> stage 2 (completion notices travel back through it).
type PassThroughStage struct {
	node
	inFlight int
	service  Sampler
	table    dispatchTable
}

// NewPassThroughStage creates stage 3 with the given service time sampler.
// Panics if service is nil.
func NewPassThroughStage(s *Simulator, rng *PartitionedRNG, sink Sink, replication int, service Sampler) *PassThroughStage {
	if service == nil {
		panic("NewPassThroughStage: service sampler must not be nil")
	}
	t := &PassThroughStage{
		node:    newNode(Stage3Name, s, rng, sink, replication),
		service: service,
	}
	t.table = dispatchTable{
		KindStage3Arrive: t.onArrive,
		KindStage3Done:   t.onComplete,
	}
	return t
}

// Handle dispatches msg by kind.
func (t *PassThroughStage) Handle(now float64, msg *Message) error {
	return t.table.dispatch(t.name, now, msg)
}

// InFlight returns the number of requests currently executing.
func (t *PassThroughStage) InFlight() int { return t.inFlight }

func (t *PassThroughStage) onArrive(now float64, msg *Message) error {
	req := msg.Request
	if req == nil || req.State != StateStage3Service {
		return invariantf(t.name, msg.RequestID, msg.WorkerID, "arrival of a request not released by stage 2")
	}
	if req.WorkerID == NoWorker {
		return invariantf(t.name, req.ID, NoWorker, "arrival without its stage 1 worker")
	}
	req.Stage3Arrival = now
	t.inFlight++
	delay := t.service.Sample(t.rng.Source(WorkerStream(t.name, req.WorkerID)))
	t.sim.ScheduleAt(now+delay, t, newRequestMessage(KindStage3Done, req))
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		t.requestLog(req).Debugf("executing, delay %g", delay)
	}
	return nil
}

func (t *PassThroughStage) onComplete(now float64, msg *Message) error {
	req := msg.Request
	if req == nil || req.State != StateStage3Service {
		return invariantf(t.name, msg.RequestID, msg.WorkerID, "completion of a request not executing here")
	}
	t.inFlight--
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		t.requestLog(req).Debugf("done after %g", now-req.Stage3Arrival)
	}
	req.State = StateReturning
	return t.send(GateOut, newRequestMessage(KindEnd, req))
}
