// Package sim provides the discrete-event engine and the components of a
// closed three-stage queueing network.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - event.go: Message kinds, the Component interface and kind dispatch
//   - simulator.go: The event queue (time, then insertion order) and the run loop
//   - request.go: Request lifecycle (issued → stage 1 → stage 2 → stage 3 → completed)
//
// Then follow a request through the network:
//   - client.go: Think timers, request issue and total response time
//   - stage1.go: Bounded worker pool with FIFO waiting and direct worker hand-off
//   - stage2.go: Single lock with FIFO waiting and direct lock hand-off
//   - stage3.go: Pass-through stage with one completion timer per request
//   - network.go: Wiring, observers, invariant checks and Run
//
// # Randomness
//
// Every random draw comes from a named stream of PartitionedRNG (rng.go):
// one stream per client for think times and one per stage worker for service
// times. Adding a client or a worker never perturbs the draws of the others.
//
// # Statistics
//
// Components emit Samples (stats.go) into a Sink chain: the in-memory
// Collector used by Metrics (metrics.go) plus any sinks from sim/sink.
package sim
