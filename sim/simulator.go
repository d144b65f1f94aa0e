// sim/simulator.go
package sim

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// EventQueue is a min-heap ordered by (timestamp, seqID). seqID is the
// insertion sequence, so events scheduled for the same instant are delivered
// in the order they were scheduled.
type EventQueue []*Event

func (eq EventQueue) Len() int { return len(eq) }

func (eq EventQueue) Less(i, j int) bool {
	if eq[i].time != eq[j].time {
		return eq[i].time < eq[j].time
	}
	return eq[i].seqID < eq[j].seqID
}

func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(*Event))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*eq = old[0 : n-1]
	return item
}

// Observer is called after every delivered event. A non-nil error aborts the run.
type Observer func(ev *Event) error

// Simulator owns virtual time and event delivery.
//
// Thread-safety: NOT thread-safe. All methods must be called from the goroutine
// that drives Run; components call back into it only from inside Handle.
type Simulator struct {
	Clock float64
	// Horizon bounds the run: events later than Horizon are never delivered.
	// Zero means no bound.
	Horizon float64

	queue     EventQueue
	nextSeqID uint64
	delivered uint64
	observers []Observer
	stopped   bool
}

// NewSimulator creates a simulator at virtual time 0.
// Panics if horizon is negative or NaN.
func NewSimulator(horizon float64) *Simulator {
	if horizon < 0 || math.IsNaN(horizon) {
		panic(fmt.Sprintf("NewSimulator: horizon must be >= 0, got %v", horizon))
	}
	return &Simulator{
		Horizon: horizon,
		queue:   make(EventQueue, 0),
	}
}

// ScheduleAt queues msg for delivery to target at virtual time t.
// Scheduling into the past is a programming error and panics.
func (s *Simulator) ScheduleAt(t float64, target Component, msg *Message) {
	if t < s.Clock || math.IsNaN(t) {
		panic(fmt.Sprintf("ScheduleAt: time %v is before clock %v", t, s.Clock))
	}
	if target == nil {
		panic("ScheduleAt: target must not be nil")
	}
	heap.Push(&s.queue, &Event{time: t, seqID: s.nextSeqID, Target: target, Msg: msg})
	s.nextSeqID++
}

// Send delivers msg to target at the current virtual time. Delivery still goes
// through the queue, behind everything already scheduled for this instant.
func (s *Simulator) Send(target Component, msg *Message) {
	s.ScheduleAt(s.Clock, target, msg)
}

// AddObserver registers fn to run after each delivered event.
func (s *Simulator) AddObserver(fn Observer) {
	s.observers = append(s.observers, fn)
}

// Pending returns the number of undelivered events.
func (s *Simulator) Pending() int { return len(s.queue) }

// Delivered returns the number of events delivered so far.
func (s *Simulator) Delivered() uint64 { return s.delivered }

// PendingEvents returns the undelivered events in heap order (not time order).
// The slice is the scheduler's storage and must not be modified.
func (s *Simulator) PendingEvents() []*Event { return s.queue }

// Step delivers the next event. It returns false when nothing was delivered
// because the queue is empty or the next event lies beyond the horizon.
func (s *Simulator) Step() (bool, error) {
	if len(s.queue) == 0 || s.stopped {
		return false, nil
	}
	if s.Horizon > 0 && s.queue[0].time > s.Horizon {
		s.stopped = true
		return false, nil
	}
	ev := heap.Pop(&s.queue).(*Event)
	s.Clock = ev.time
	s.delivered++
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("[t=%.6f] deliver %s -> %s", s.Clock, ev.Msg, ev.Target.Name())
	}
	if err := ev.Target.Handle(s.Clock, ev.Msg); err != nil {
		return true, fmt.Errorf("t=%g %s at %s: %w", s.Clock, ev.Msg.Kind, ev.Target.Name(), err)
	}
	for _, fn := range s.observers {
		if err := fn(ev); err != nil {
			return true, fmt.Errorf("t=%g after %s at %s: %w", s.Clock, ev.Msg.Kind, ev.Target.Name(), err)
		}
	}
	return true, nil
}

// Run delivers events until the queue drains, the horizon is reached, a
// component fails, or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := s.Step()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	logrus.Infof("[t=%.6f] Simulation ended after %d events", s.Clock, s.delivered)
	return nil
}

// EndTime is the virtual time the run covers: the horizon when the run was cut
// off by it, otherwise the time of the last delivered event.
func (s *Simulator) EndTime() float64 {
	if s.stopped {
		return s.Horizon
	}
	return s.Clock
}
