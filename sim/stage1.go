package sim

import (
	"github.com/sirupsen/logrus"
)

// Stage1Name is the component and stream-prefix name of the bounded pool.
const Stage1Name = "stage1"

// BoundedPool is stage 1: a fixed pool of interchangeable workers. A request is
// admitted when a worker is free and otherwise waits FIFO. The worker stays
// bound to the request through stages 2 and 3 and is freed (or handed to the
// oldest waiting request) only when the final completion comes back.
//
// Gates: GateOut -> stage 2, GateEndOut -> client generator.
type BoundedPool struct {
	node
	pool    *WorkerPool
	waiting WaitQueue
	service Sampler
	table   dispatchTable
}

// NewBoundedPool creates stage 1 with capacity workers and the given service
// time sampler. Panics if capacity < 1 or service is nil.
func NewBoundedPool(s *Simulator, rng *PartitionedRNG, sink Sink, replication, capacity int, service Sampler) *BoundedPool {
	if service == nil {
		panic("NewBoundedPool: service sampler must not be nil")
	}
	p := &BoundedPool{
		node:    newNode(Stage1Name, s, rng, sink, replication),
		pool:    NewWorkerPool(capacity),
		service: service,
	}
	p.table = dispatchTable{
		KindServe:      p.onServe,
		KindStage1Done: p.onServiceComplete,
		KindEnd:        p.onFinalCompletion,
	}
	return p
}

// Handle dispatches msg by kind.
func (p *BoundedPool) Handle(now float64, msg *Message) error {
	return p.table.dispatch(p.name, now, msg)
}

// Start emits the initial queue length.
func (p *BoundedPool) Start(now float64) error {
	return p.emit(StatQueueLengthStage1, now, 0, -1)
}

// Pool exposes the worker pool for inspection.
func (p *BoundedPool) Pool() *WorkerPool { return p.pool }

// Waiting exposes the wait queue for inspection.
func (p *BoundedPool) Waiting() *WaitQueue { return &p.waiting }

func (p *BoundedPool) onServe(now float64, msg *Message) error {
	req := msg.Request
	if req == nil {
		return invariantf(p.name, msg.RequestID, msg.WorkerID, "serve without a request")
	}
	if req.State != StateIssued {
		return invariantf(p.name, req.ID, req.WorkerID, "serve of a request in state %s", req.State)
	}
	req.Stage1Arrival = now

	worker, ok := p.pool.Acquire(req.ID)
	if !ok {
		req.State = StateStage1Waiting
		p.waiting.Enqueue(req)
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			p.requestLog(req).Debugf("queued, no free worker (queue=%d)", p.waiting.Len())
		}
		return p.emit(StatQueueLengthStage1, now, float64(p.waiting.Len()), -1)
	}
	req.WorkerID = worker
	p.startService(now, req)
	return nil
}

// startService schedules the end of req's stage 1 service on its bound worker.
// The delay is drawn from the worker's stream, whichever request occupies it.
func (p *BoundedPool) startService(now float64, req *Request) {
	req.State = StateStage1Service
	delay := p.service.Sample(p.rng.Source(WorkerStream(p.name, req.WorkerID)))
	p.sim.ScheduleAt(now+delay, p, newRequestMessage(KindStage1Done, req))
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		p.requestLog(req).Debugf("serving, delay %g", delay)
	}
}

func (p *BoundedPool) onServiceComplete(now float64, msg *Message) error {
	req := msg.Request
	if req == nil || req.State != StateStage1Service {
		return invariantf(p.name, msg.RequestID, msg.WorkerID, "service completion of a request not in service")
	}
	if holder, ok := p.pool.Holder(req.WorkerID); !ok || holder != req.ID {
		return invariantf(p.name, req.ID, req.WorkerID, "completing request does not hold its worker")
	}
	if err := p.emit(StatPartialResponseTimeStage1, now, now-req.Stage1Arrival, req.ID); err != nil {
		return err
	}
	return p.send(GateOut, newRequestMessage(KindStage2Arrive, req))
}

func (p *BoundedPool) onFinalCompletion(now float64, msg *Message) error {
	req := msg.Request
	if req == nil {
		return invariantf(p.name, msg.RequestID, msg.WorkerID, "final completion without a request")
	}
	worker := msg.WorkerID
	if holder, ok := p.pool.Holder(worker); !ok || holder != req.ID || req.WorkerID != worker {
		return invariantf(p.name, req.ID, worker, "final completion for a worker the request does not hold")
	}
	if req.State != StateReturning {
		return invariantf(p.name, req.ID, worker, "final completion of a request in state %s", req.State)
	}

	req.WorkerID = NoWorker
	done := newRequestMessage(KindEnd, req)
	done.WorkerID = worker
	if err := p.send(GateEndOut, done); err != nil {
		return err
	}

	next := p.waiting.Dequeue()
	if next == nil {
		if err := p.pool.Release(worker); err != nil {
			return invariantf(p.name, req.ID, worker, "%v", err)
		}
		return nil
	}
	// Hand the worker straight to the oldest waiting request.
	if err := p.pool.HandOff(worker, next.ID); err != nil {
		return invariantf(p.name, next.ID, worker, "%v", err)
	}
	next.WorkerID = worker
	p.startService(now, next)
	return p.emit(StatQueueLengthStage1, now, float64(p.waiting.Len()), -1)
}

// CheckInvariants verifies pool conservation and that queued requests are
// waiting and hold no worker.
func (p *BoundedPool) CheckInvariants() error {
	if err := p.pool.Check(); err != nil {
		return invariantf(p.name, -1, NoWorker, "worker pool: %v", err)
	}
	if p.waiting.Len() > 0 && p.pool.Free() > 0 {
		return invariantf(p.name, p.waiting.Peek().ID, NoWorker, "request waiting while %d workers are free", p.pool.Free())
	}
	for _, r := range p.waiting.Items() {
		if r.State != StateStage1Waiting || r.WorkerID != NoWorker {
			return invariantf(p.name, r.ID, r.WorkerID, "queued request in state %s", r.State)
		}
	}
	return nil
}
