package sim

import (
	"github.com/sirupsen/logrus"
)

// Stage2Name is the component and stream-prefix name of the critical section.
const Stage2Name = "stage2"

// MutexStage is stage 2: a single simulated lock. At most one request is in
// service; the rest wait FIFO. On completion the lock passes directly to the
// oldest waiter, so it is never observed free while someone is queued.
//
// Gates: GateOut -> stage 3, GateEndOut -> stage 1 (completion notices from
// stage 3 pass through unchanged).
type MutexStage struct {
	node
	held      bool
	inService *Request
	waiting   WaitQueue
	service   Sampler
	table     dispatchTable
}

// NewMutexStage creates stage 2 with the given service time sampler.
// Panics if service is nil.
func NewMutexStage(s *Simulator, rng *PartitionedRNG, sink Sink, replication int, service Sampler) *MutexStage {
	if service == nil {
		panic("NewMutexStage: service sampler must not be nil")
	}
	m := &MutexStage{
		node:    newNode(Stage2Name, s, rng, sink, replication),
		service: service,
	}
	m.table = dispatchTable{
		KindStage2Arrive: m.onArrive,
		KindStage2Done:   m.onComplete,
		KindEnd:          m.onEnd,
	}
	return m
}

// Handle dispatches msg by kind.
func (m *MutexStage) Handle(now float64, msg *Message) error {
	return m.table.dispatch(m.name, now, msg)
}

// Start emits the initial queue length.
func (m *MutexStage) Start(now float64) error {
	return m.emit(StatQueueLengthStage2, now, 0, -1)
}

// Held reports whether the lock is taken.
func (m *MutexStage) Held() bool { return m.held }

// InService returns the request holding the lock, or nil.
func (m *MutexStage) InService() *Request { return m.inService }

// Waiting exposes the wait queue for inspection.
func (m *MutexStage) Waiting() *WaitQueue { return &m.waiting }

func (m *MutexStage) onArrive(now float64, msg *Message) error {
	req := msg.Request
	if req == nil || req.State != StateStage1Service {
		return invariantf(m.name, msg.RequestID, msg.WorkerID, "arrival of a request not coming from stage 1")
	}
	if req.WorkerID == NoWorker || req.WorkerID != msg.WorkerID {
		return invariantf(m.name, req.ID, msg.WorkerID, "arrival without its stage 1 worker")
	}
	req.Stage2Arrival = now

	if m.held {
		req.State = StateStage2Waiting
		m.waiting.Enqueue(req)
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			m.requestLog(req).Debugf("lock taken, queued (queue=%d)", m.waiting.Len())
		}
		return m.emit(StatQueueLengthStage2, now, float64(m.waiting.Len()), -1)
	}
	m.held = true
	m.startService(now, req)
	return nil
}

// startService gives the lock to req and schedules its release.
func (m *MutexStage) startService(now float64, req *Request) {
	req.State = StateStage2Service
	m.inService = req
	delay := m.service.Sample(m.rng.Source(WorkerStream(m.name, req.WorkerID)))
	m.sim.ScheduleAt(now+delay, m, newRequestMessage(KindStage2Done, req))
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		m.requestLog(req).Debugf("lock acquired, delay %g", delay)
	}
}

func (m *MutexStage) onComplete(now float64, msg *Message) error {
	req := msg.Request
	if !m.held || req == nil || req != m.inService {
		return invariantf(m.name, msg.RequestID, msg.WorkerID, "completion of a request that does not hold the lock")
	}
	if err := m.emit(StatPartialResponseTimeStage2, now, now-req.Stage2Arrival, req.ID); err != nil {
		return err
	}

	if next := m.waiting.Dequeue(); next != nil {
		m.startService(now, next)
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			m.requestLog(req).Debugf("lock handed off to request %d", next.ID)
		}
		if err := m.emit(StatQueueLengthStage2, now, float64(m.waiting.Len()), -1); err != nil {
			return err
		}
	} else {
		m.held = false
		m.inService = nil
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			m.requestLog(req).Debug("no queued requests, lock released")
		}
	}

	req.State = StateStage3Service
	return m.send(GateOut, newRequestMessage(KindStage3Arrive, req))
}

// onEnd forwards a completion notice from stage 3 back to stage 1.
func (m *MutexStage) onEnd(_ float64, msg *Message) error {
	if msg.Request == nil {
		return invariantf(m.name, msg.RequestID, msg.WorkerID, "completion notice without a request")
	}
	return m.send(GateEndOut, newRequestMessage(KindEnd, msg.Request))
}

// CheckInvariants verifies that held is true iff a request is in service and
// that nobody waits while the lock is free.
func (m *MutexStage) CheckInvariants() error {
	if m.held != (m.inService != nil) {
		return invariantf(m.name, -1, NoWorker, "held=%v but in-service request present=%v", m.held, m.inService != nil)
	}
	if !m.held && m.waiting.Len() > 0 {
		return invariantf(m.name, m.waiting.Peek().ID, NoWorker, "requests waiting on a free lock")
	}
	if m.inService != nil && m.inService.State != StateStage2Service {
		return invariantf(m.name, m.inService.ID, m.inService.WorkerID, "lock holder in state %s", m.inService.State)
	}
	for _, r := range m.waiting.Items() {
		if r.State != StateStage2Waiting {
			return invariantf(m.name, r.ID, r.WorkerID, "queued request in state %s", r.State)
		}
	}
	return nil
}
