package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnet-sim/qnet-sim/sim/trace"
)

// newTestNetwork builds a network with constant service times and one request
// per client. Requests are injected with issueAt instead of think timers.
func newTestNetwork(t *testing.T, clients, threads int, d1, d2, d3 float64, opts ...Option) *Network {
	t.Helper()
	cfg := Config{
		Run:     RunConfig{Seed: 1, CheckInvariants: true},
		Clients: ClientConfig{NumClients: clients, MeanThinkTime: 1, MaxRequestsPerClient: 1},
		Stage1:  PoolStageConfig{Threads: threads},
		Stage3:  PassThroughStageConfig{},
	}
	opts = append(opts,
		WithServiceSampler(Stage1Name, ConstantSampler{Value: d1}),
		WithServiceSampler(Stage2Name, ConstantSampler{Value: d2}),
		WithServiceSampler(Stage3Name, ConstantSampler{Value: d3}),
	)
	n, err := NewNetwork(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, n.Stage1.Start(0))
	require.NoError(t, n.Stage2.Start(0))
	return n
}

// issueAt makes client issue its request at virtual time at.
func issueAt(n *Network, at float64, client int) {
	n.Sim.ScheduleAt(at, n.Clients, &Message{Kind: KindThinkTimeExpired, RequestID: -1, ClientID: client})
}

func randomConfig(seed int64) Config {
	return Config{
		Run:     RunConfig{Seed: seed, Horizon: 500, CheckInvariants: true},
		Clients: ClientConfig{NumClients: 6, MeanThinkTime: 10},
		Stage1:  PoolStageConfig{Threads: 2, MeanServiceTime: 1},
		Stage2:  MutexStageConfig{MeanServiceTime: 0.5},
		Stage3:  PassThroughStageConfig{MeanServiceTime: 1},
	}
}

func TestNetwork_SingleWorker_SecondRequestWaitsForHandOff(t *testing.T) {
	// GIVEN one stage 1 worker, stage 1 delay 5 and instantaneous stages 2 and 3
	n := newTestNetwork(t, 2, 1, 5, 0, 0)

	// WHEN R0 is issued at t=0 and R1 at t=1
	issueAt(n, 0, 0)
	issueAt(n, 1, 1)
	require.NoError(t, n.Sim.Run(context.Background()))

	// THEN R0 completes at 5 and R1, handed the worker at 5, completes at 10
	total := n.Collector.Series(StatTotalResponseTimeClient)
	assert.Equal(t, []float64{5, 10}, total.Times)
	assert.Equal(t, []float64{5, 9}, total.Values)
	assert.Equal(t, []int64{0, 1}, total.RequestIDs)

	// AND stage 1 queue length goes 0 -> 1 at t=1 and back to 0 at t=5
	q := n.Collector.Series(StatQueueLengthStage1)
	assert.Equal(t, []float64{0, 1, 5}, q.Times)
	assert.Equal(t, []float64{0, 1, 0}, q.Values)

	// AND R1's stage 1 time includes its wait
	partial := n.Collector.Series(StatPartialResponseTimeStage1)
	assert.Equal(t, []float64{5, 9}, partial.Values)

	// AND the worker is free again
	assert.Equal(t, 1, n.Stage1.Pool().Free())
	assert.Equal(t, 0, n.Clients.PendingRequests())
}

func TestNetwork_SingleWorker_ServesWaitersInArrivalOrder(t *testing.T) {
	// GIVEN one stage 1 worker with delay 10 and instantaneous stages 2 and 3
	var clients []int
	n := newTestNetwork(t, 4, 1, 10, 0, 0)
	n.Sim.AddObserver(func(ev *Event) error {
		if ev.Msg.Kind == KindStage3Arrive {
			clients = append(clients, ev.Msg.ClientID)
		}
		return nil
	})

	// WHEN client 0 takes the worker and clients 3, 1 and 2 queue behind it
	issueAt(n, 0, 0)
	issueAt(n, 1, 3)
	issueAt(n, 2, 1)
	issueAt(n, 3, 2)
	require.NoError(t, n.Sim.Run(context.Background()))

	// THEN the waiters are served in the order they arrived
	assert.Equal(t, []int{0, 3, 1, 2}, clients)
	partial := n.Collector.Series(StatPartialResponseTimeStage1)
	assert.Equal(t, []int64{0, 1, 2, 3}, partial.RequestIDs)
	assert.Equal(t, []float64{10, 19, 28, 37}, partial.Values)

	// AND the queue builds to 3 and drains one per hand-off
	q := n.Collector.Series(StatQueueLengthStage1)
	assert.Equal(t, []float64{0, 1, 2, 3, 10, 20, 30}, q.Times)
	assert.Equal(t, []float64{0, 1, 2, 3, 2, 1, 0}, q.Values)
}

func TestNetwork_MutexStage_SerializesSimultaneousArrivals(t *testing.T) {
	// GIVEN three workers, instantaneous stages 1 and 3 and stage 2 delay 2
	n := newTestNetwork(t, 3, 3, 0, 2, 0)

	// WHEN A, B and C reach stage 2 at t=0 in that order
	issueAt(n, 0, 0)
	issueAt(n, 0, 1)
	issueAt(n, 0, 2)
	require.NoError(t, n.Sim.Run(context.Background()))

	// THEN stage 2 completes them at 2, 4 and 6 in arrival order
	s2 := n.Collector.Series(StatPartialResponseTimeStage2)
	assert.Equal(t, []float64{2, 4, 6}, s2.Times)
	assert.Equal(t, []float64{2, 4, 6}, s2.Values)
	assert.Equal(t, []int64{0, 1, 2}, s2.RequestIDs)

	// AND the stage 2 queue grew to 2 and drained one by one
	q := n.Collector.Series(StatQueueLengthStage2)
	assert.Equal(t, []float64{0, 1, 2, 1, 0}, q.Values)
	assert.Equal(t, []float64{0, 0, 0, 2, 4}, q.Times)

	// AND the lock is free at the end
	assert.False(t, n.Stage2.Held())
	assert.Nil(t, n.Stage2.InService())
}

func TestNetwork_WorkerTravelsWithRequest(t *testing.T) {
	// GIVEN two workers and three requests issued at once
	var workers []int
	n := newTestNetwork(t, 3, 2, 1, 1, 1)
	n.Sim.AddObserver(func(ev *Event) error {
		if ev.Msg.Kind == KindStage3Arrive {
			workers = append(workers, ev.Msg.WorkerID)
		}
		return nil
	})
	issueAt(n, 0, 0)
	issueAt(n, 0, 1)
	issueAt(n, 0, 2)

	// WHEN the run completes
	require.NoError(t, n.Sim.Run(context.Background()))

	// THEN every request reaches stage 3 bound to a stage 1 worker,
	// and the third request reuses the first freed worker
	assert.Equal(t, []int{1, 2, 1}, workers)
	assert.Equal(t, int64(3), n.Clients.IssuedRequests())
	assert.Equal(t, 0, n.Clients.PendingRequests())
}

func TestNetwork_Locate(t *testing.T) {
	// GIVEN one worker busy with R0 and R1 queued behind it
	n := newTestNetwork(t, 2, 1, 5, 0, 0)
	issueAt(n, 0, 0)
	issueAt(n, 1, 1)
	for n.Sim.Clock < 1 || n.Sim.Pending() > 1 {
		ok, err := n.Sim.Step()
		require.NoError(t, err)
		require.True(t, ok)
	}

	// THEN each pending request is found where it is tracked
	assert.Equal(t, LocationStage1Worker, n.Locate(0))
	assert.Equal(t, LocationStage1Queue, n.Locate(1))
	assert.Equal(t, LocationNowhere, n.Locate(2))
	assert.NoError(t, n.CheckNoRequestLost())
}

func TestNetwork_UnknownCompletion_IsInvariantViolation(t *testing.T) {
	// GIVEN a network where no request was issued
	n := newTestNetwork(t, 1, 1, 1, 1, 1)

	// WHEN the client receives a completion for request 99
	n.Sim.ScheduleAt(0, n.Clients, &Message{Kind: KindEnd, RequestID: 99})
	err := n.Sim.Run(context.Background())

	// THEN the run aborts with an invariant violation naming the request
	require.ErrorIs(t, err, ErrInvariantViolation)
	var iv *InvariantViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, int64(99), iv.RequestID)
	assert.Equal(t, ClientName, iv.Component)
}

func TestNetwork_MisroutedMessage_IsProtocolViolation(t *testing.T) {
	n := newTestNetwork(t, 1, 1, 1, 1, 1)

	n.Sim.ScheduleAt(0, n.Stage3, &Message{Kind: KindEnd, RequestID: 0})
	err := n.Sim.Run(context.Background())

	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestNetwork_SameSeed_SameSamples(t *testing.T) {
	// GIVEN two networks built from the same config
	run := func(seed int64) *Collector {
		n, err := NewNetwork(randomConfig(seed))
		require.NoError(t, err)
		_, err = n.Run(context.Background())
		require.NoError(t, err)
		return n.Collector
	}

	// WHEN both run
	a, b, c := run(42), run(42), run(43)

	// THEN every series is identical, and a different seed changes them
	for _, name := range AllStats {
		assert.Equal(t, a.Series(name), b.Series(name), "series %s", name)
	}
	assert.NotEqual(t, a.Series(StatTotalResponseTimeClient).Values, c.Series(StatTotalResponseTimeClient).Values)
}

func TestNetwork_SingleClient_IssueSequenceIsReproducible(t *testing.T) {
	// GIVEN one client with mean think time 10 and zero service times
	cfg := Config{
		Run:     RunConfig{Seed: 9, Horizon: 10000, CheckInvariants: true},
		Clients: ClientConfig{NumClients: 1, MeanThinkTime: 10},
		Stage1:  PoolStageConfig{Threads: 1},
	}
	run := func() ([]trace.EventRecord, *Metrics) {
		st := trace.NewSimulationTrace(trace.TraceLevelEvents)
		n, err := NewNetwork(cfg, WithTrace(st))
		require.NoError(t, err)
		m, err := n.Run(context.Background())
		require.NoError(t, err)
		return st.Issues(), m
	}

	// WHEN it runs twice with the same seed
	a, m := run()
	b, _ := run()

	// THEN about horizon/think requests are issued, every one completes
	assert.InDelta(t, 1000, len(a), 150)
	assert.Equal(t, int64(len(a)), m.IssuedRequests)
	assert.Equal(t, m.IssuedRequests, m.CompletedRequests)

	// AND the request id -> issue time sequence is identical
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, int64(i), a[i].RequestID)
		assert.Equal(t, a[i].RequestID, b[i].RequestID)
		assert.Equal(t, a[i].Time, b[i].Time)
	}
}

func TestNetwork_RandomRun_KeepsInvariants(t *testing.T) {
	// GIVEN a contended random configuration with invariant checks after every event
	n, err := NewNetwork(randomConfig(7))
	require.NoError(t, err)

	// WHEN it runs to the horizon
	m, err := n.Run(context.Background())
	require.NoError(t, err)

	// THEN work flowed through every stage
	require.Greater(t, m.CompletedRequests, int64(50))
	assert.Equal(t, 500.0, m.SimEndedTime)
	assert.Equal(t, m.IssuedRequests, m.CompletedRequests+int64(m.InFlightRequests))

	// AND every completed request produced exactly one total response time
	total := n.Collector.Series(StatTotalResponseTimeClient)
	assert.Equal(t, int(m.CompletedRequests), total.Len())
	seen := make(map[int64]bool)
	for _, id := range total.RequestIDs {
		assert.False(t, seen[id], "request %d completed twice", id)
		seen[id] = true
	}

	// AND every request left stage 1 service at most once, completed ones exactly once
	servedS1 := make(map[int64]bool)
	for _, id := range n.Collector.Series(StatPartialResponseTimeStage1).RequestIDs {
		assert.False(t, servedS1[id], "request %d left stage 1 twice", id)
		servedS1[id] = true
	}
	for id := range seen {
		assert.True(t, servedS1[id], "request %d completed without a stage 1 time", id)
	}

	// AND stage 1 service completions bound the later stages
	s1 := n.Collector.Series(StatPartialResponseTimeStage1).Len()
	s2 := n.Collector.Series(StatPartialResponseTimeStage2).Len()
	assert.GreaterOrEqual(t, s1, s2)
	assert.GreaterOrEqual(t, s2, total.Len())

	// AND no response time is negative
	for _, v := range total.Values {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestNetwork_MaxRequests_DrainsWithoutHorizon(t *testing.T) {
	// GIVEN no horizon and 4 requests per client
	cfg := randomConfig(3)
	cfg.Run.Horizon = 0
	cfg.Clients.MaxRequestsPerClient = 4

	// WHEN the network runs
	n, err := NewNetwork(cfg)
	require.NoError(t, err)
	m, err := n.Run(context.Background())
	require.NoError(t, err)

	// THEN every request completes and all resources are free
	assert.Equal(t, int64(24), m.IssuedRequests)
	assert.Equal(t, int64(24), m.CompletedRequests)
	assert.Equal(t, 0, m.InFlightRequests)
	assert.Equal(t, 2, n.Stage1.Pool().Free())
	assert.False(t, n.Stage2.Held())
	assert.Equal(t, 0, n.Stage3.InFlight())
	for _, c := range n.Clients.Clients() {
		assert.Equal(t, int64(4), c.Issued)
	}
}

func TestNetwork_ClosedLoop_OneOutstandingPerClient(t *testing.T) {
	// GIVEN closed-loop clients
	cfg := randomConfig(5)
	cfg.Clients.ClosedLoop = true
	n, err := NewNetwork(cfg)
	require.NoError(t, err)
	n.Sim.AddObserver(func(*Event) error {
		for _, c := range n.Clients.Clients() {
			if c.Outstanding() > 1 {
				t.Errorf("client %d has %d outstanding requests", c.ID, c.Outstanding())
			}
		}
		return nil
	})

	// WHEN it runs
	m, err := n.Run(context.Background())

	// THEN no client ever waits on two requests
	require.NoError(t, err)
	assert.LessOrEqual(t, m.InFlightRequests, cfg.Clients.NumClients)
}

func TestNetwork_Warmup_DropsEarlySamples(t *testing.T) {
	cfg := randomConfig(11)
	cfg.Run.Warmup = 100
	n, err := NewNetwork(cfg)
	require.NoError(t, err)
	_, err = n.Run(context.Background())
	require.NoError(t, err)

	for _, name := range AllStats {
		for _, ts := range n.Collector.Series(name).Times {
			assert.GreaterOrEqual(t, ts, 100.0, "series %s", name)
		}
	}
}

func TestNetwork_Warmup_CarriesQueueLevelAcrossBoundary(t *testing.T) {
	// GIVEN one worker busy for 300 and a second request queued behind it at t=0
	cfg := Config{
		Run:     RunConfig{Seed: 1, Horizon: 250, Warmup: 100, CheckInvariants: true},
		Clients: ClientConfig{NumClients: 2, MeanThinkTime: 1, MaxRequestsPerClient: 1},
		Stage1:  PoolStageConfig{Threads: 1},
	}
	n, err := NewNetwork(cfg,
		WithThinkSampler(ConstantSampler{Value: 0}),
		WithServiceSampler(Stage1Name, ConstantSampler{Value: 300}),
	)
	require.NoError(t, err)

	// WHEN it runs past warm-up with no queue change after it
	m, err := n.Run(context.Background())
	require.NoError(t, err)

	// THEN the queue counts as 1 for the whole window [100, 250]
	assert.Equal(t, 250.0, m.SimEndedTime)
	assert.Equal(t, []float64{100}, n.Collector.Series(StatQueueLengthStage1).Times)
	assert.InDelta(t, 1.0, m.QueueLength[StatQueueLengthStage1], 1e-12)
	assert.Equal(t, 1.0, m.PeakQueueLength[StatQueueLengthStage1])
	assert.Equal(t, 0.0, m.QueueLength[StatQueueLengthStage2])
	assert.Equal(t, int64(0), m.CompletedRequests)
}

func TestNetwork_ExtraSinkSeesReplication(t *testing.T) {
	var got []Sample
	cfg := randomConfig(1)
	cfg.Run.Replication = 3
	n, err := NewNetwork(cfg, WithSink(SinkFunc(func(s Sample) error {
		got = append(got, s)
		return nil
	})))
	require.NoError(t, err)
	_, err = n.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, got)
	for _, s := range got {
		assert.Equal(t, 3, s.Replication)
	}
	// initial queue samples come first
	assert.Equal(t, StatQueueLengthStage1, got[0].Name)
	assert.Equal(t, StatQueueLengthStage2, got[1].Name)
}

func TestNetwork_Trace_RecordsEveryDelivery(t *testing.T) {
	// GIVEN an event trace
	st := trace.NewSimulationTrace(trace.TraceLevelEvents)
	n := newTestNetwork(t, 1, 1, 1, 1, 1, WithTrace(st))
	issueAt(n, 0, 0)

	// WHEN one request runs to completion
	require.NoError(t, n.Sim.Run(context.Background()))

	// THEN every delivery is recorded in order
	require.Len(t, st.Events, int(n.Sim.Delivered()))
	kinds := make([]string, len(st.Events))
	for i, e := range st.Events {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []string{
		"startRequest", "serve", "stage1Done", "secondStage", "endSecondStage",
		"thirdStage", "stage3Done", "end", "end", "end",
	}, kinds)
	assert.Len(t, st.Issues(), 1)
}

func TestNetwork_RunTwice_Fails(t *testing.T) {
	n, err := NewNetwork(randomConfig(1))
	require.NoError(t, err)
	_, err = n.Run(context.Background())
	require.NoError(t, err)

	_, err = n.Run(context.Background())
	assert.Error(t, err)
}

func TestNewNetwork_InvalidConfig(t *testing.T) {
	cfg := randomConfig(1)
	cfg.Stage1.Threads = 0
	_, err := NewNetwork(cfg)
	assert.ErrorContains(t, err, "stage1.threads")

	_, err = NewNetwork(randomConfig(1), WithServiceSampler("stage4", ConstantSampler{}))
	assert.ErrorContains(t, err, "stage4")
}
