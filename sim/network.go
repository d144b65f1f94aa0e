package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/qnet-sim/qnet-sim/sim/trace"
)

// Option customizes a Network beyond its Config.
type Option func(*networkOptions)

type networkOptions struct {
	sinks   []Sink
	think   Sampler
	service map[string]Sampler
	trace   *trace.SimulationTrace
}

// WithSink adds a sink that receives every recorded sample (after warm-up).
func WithSink(s Sink) Option {
	return func(o *networkOptions) { o.sinks = append(o.sinks, s) }
}

// WithThinkSampler replaces the exponential think-time sampler.
func WithThinkSampler(s Sampler) Option {
	return func(o *networkOptions) { o.think = s }
}

// WithServiceSampler replaces the service time sampler of the named stage
// (Stage1Name, Stage2Name or Stage3Name).
func WithServiceSampler(stage string, s Sampler) Option {
	return func(o *networkOptions) { o.service[stage] = s }
}

// WithTrace records every delivered message into st when st is enabled.
func WithTrace(st *trace.SimulationTrace) Option {
	return func(o *networkOptions) { o.trace = st }
}

// Network is the wired model: clients -> stage 1 -> stage 2 -> stage 3, with
// completion notices returning stage 3 -> stage 2 -> stage 1 -> clients.
type Network struct {
	Config    Config
	Sim       *Simulator
	RNG       *PartitionedRNG
	Clients   *ClientGenerator
	Stage1    *BoundedPool
	Stage2    *MutexStage
	Stage3    *PassThroughStage
	Collector *Collector

	warmup *WarmupFilter
	hasRun bool
}

// NewNetwork validates cfg, builds every component and wires the topology.
func NewNetwork(cfg Config, opts ...Option) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &networkOptions{service: make(map[string]Sampler)}
	for _, opt := range opts {
		opt(o)
	}
	for stage := range o.service {
		if stage != Stage1Name && stage != Stage2Name && stage != Stage3Name {
			return nil, fmt.Errorf("service sampler for unknown stage %q", stage)
		}
	}

	collector := NewCollector()
	var sink Sink = MultiSink(append([]Sink{collector}, o.sinks...))
	var warmup *WarmupFilter
	if cfg.Run.Warmup > 0 {
		warmup = &WarmupFilter{Warmup: cfg.Run.Warmup, Next: sink}
		sink = warmup
	}

	s := NewSimulator(cfg.Run.Horizon)
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Run.Seed))
	rep := cfg.Run.Replication

	think := o.think
	if think == nil {
		think = ExponentialSampler{Mean: cfg.Clients.MeanThinkTime}
	}
	service := func(stage string, def Sampler) Sampler {
		if sm, ok := o.service[stage]; ok {
			return sm
		}
		return def
	}

	n := &Network{
		Config: cfg,
		Sim:    s,
		RNG:    rng,
		Clients: NewClientGenerator(s, rng, sink, rep, ClientGeneratorConfig{
			NumClients:  cfg.Clients.NumClients,
			Think:       think,
			ClosedLoop:  cfg.Clients.ClosedLoop,
			MaxRequests: cfg.Clients.MaxRequestsPerClient,
		}),
		Stage1: NewBoundedPool(s, rng, sink, rep, cfg.Stage1.Threads,
			service(Stage1Name, UniformSampler{Mean: cfg.Stage1.MeanServiceTime})),
		Stage2: NewMutexStage(s, rng, sink, rep,
			service(Stage2Name, cfg.Stage2.Sampler())),
		Stage3: NewPassThroughStage(s, rng, sink, rep,
			service(Stage3Name, UniformSampler{Mean: cfg.Stage3.MeanServiceTime})),
		Collector: collector,
		warmup:    warmup,
	}
	n.wire()

	if o.trace.Enabled() {
		st := o.trace
		s.AddObserver(func(ev *Event) error {
			st.RecordEvent(trace.EventRecord{
				Seq:       ev.SeqID(),
				Time:      ev.Timestamp(),
				Kind:      string(ev.Msg.Kind),
				Component: ev.Target.Name(),
				RequestID: ev.Msg.RequestID,
				ClientID:  ev.Msg.ClientID,
				WorkerID:  ev.Msg.WorkerID,
			})
			return nil
		})
	}
	if cfg.Run.CheckInvariants {
		s.AddObserver(func(*Event) error { return n.CheckInvariants() })
	}
	return n, nil
}

func (n *Network) wire() {
	n.Clients.Connect(GateOut, n.Stage1)
	n.Stage1.Connect(GateOut, n.Stage2)
	n.Stage1.Connect(GateEndOut, n.Clients)
	n.Stage2.Connect(GateOut, n.Stage3)
	n.Stage2.Connect(GateEndOut, n.Stage1)
	n.Stage3.Connect(GateOut, n.Stage2)
}

// Start emits the initial queue lengths and schedules the first client
// requests. Run calls it; tests that drive the scheduler by hand call it once.
func (n *Network) Start() error {
	now := n.Sim.Clock
	if err := n.Stage1.Start(now); err != nil {
		return err
	}
	if err := n.Stage2.Start(now); err != nil {
		return err
	}
	n.Clients.Start(now)
	return nil
}

// Run executes the simulation and returns its metrics.
// Returns an error if called more than once.
func (n *Network) Run(ctx context.Context) (*Metrics, error) {
	if n.hasRun {
		return nil, errors.New("Network.Run called more than once")
	}
	n.hasRun = true

	logrus.WithFields(logrus.Fields{
		"replication": n.Config.Run.Replication,
		"seed":        n.Config.Run.Seed,
		"clients":     n.Config.Clients.NumClients,
		"threads":     n.Config.Stage1.Threads,
	}).Info("Starting simulation")

	if err := n.Start(); err != nil {
		return nil, err
	}
	if err := n.Sim.Run(ctx); err != nil {
		return nil, err
	}
	// levels unchanged since before warm-up have not reached the sinks yet
	if n.warmup != nil && n.Sim.EndTime() >= n.warmup.Warmup {
		if err := n.warmup.Flush(); err != nil {
			return nil, err
		}
	}
	if n.Config.Run.CheckInvariants {
		if err := n.CheckNoRequestLost(); err != nil {
			return nil, err
		}
	}
	return NewMetrics(n), nil
}

// CheckInvariants verifies every stage's bookkeeping and the cross-stage
// bounds implied by stage 1 admission control.
func (n *Network) CheckInvariants() error {
	if err := n.Stage1.CheckInvariants(); err != nil {
		return err
	}
	if err := n.Stage2.CheckInvariants(); err != nil {
		return err
	}
	busy := n.Stage1.Pool().Busy()
	if n.Stage3.InFlight() > busy {
		return invariantf(Stage3Name, -1, NoWorker, "%d requests executing but only %d workers busy", n.Stage3.InFlight(), busy)
	}
	held := 0
	if n.Stage2.Held() {
		held = 1
	}
	if n.Stage2.Waiting().Len()+held > busy {
		return invariantf(Stage2Name, -1, NoWorker, "%d requests at stage 2 but only %d workers busy", n.Stage2.Waiting().Len()+held, busy)
	}
	if busy+n.Stage1.Waiting().Len() > n.Clients.PendingRequests() {
		return invariantf(Stage1Name, -1, NoWorker, "stage 1 tracks %d requests but clients wait on %d", busy+n.Stage1.Waiting().Len(), n.Clients.PendingRequests())
	}
	return nil
}

// Request locations reported by Locate.
const (
	LocationStage1Queue  = "stage1_queue"
	LocationStage1Worker = "stage1_worker"
	LocationScheduled    = "scheduled"
	LocationNowhere      = ""
)

// Locate reports where a pending request is tracked: waiting at stage 1,
// holding a stage 1 worker, or carried by an undelivered message.
// Requests at stages 2 and 3 always hold a stage 1 worker.
func (n *Network) Locate(id int64) string {
	if n.Stage1.Waiting().Contains(id) {
		return LocationStage1Queue
	}
	pool := n.Stage1.Pool()
	for w := 1; w <= pool.Capacity(); w++ {
		if holder, ok := pool.Holder(w); ok && holder == id {
			return LocationStage1Worker
		}
	}
	for _, ev := range n.Sim.PendingEvents() {
		if ev.Msg.RequestID == id {
			return LocationScheduled
		}
	}
	return LocationNowhere
}

// CheckNoRequestLost verifies that every request a client still waits on is
// tracked somewhere.
func (n *Network) CheckNoRequestLost() error {
	for id := int64(0); id < n.Clients.IssuedRequests(); id++ {
		if !n.Clients.IsPending(id) {
			continue
		}
		if n.Locate(id) == LocationNowhere {
			return invariantf(ClientName, id, NoWorker, "pending request is not tracked by any stage")
		}
	}
	return nil
}
