package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// ClientStream returns the stream name of client id.
func ClientStream(id int) string {
	return fmt.Sprintf("client_%d", id)
}

// WorkerStream returns the stream name of worker id inside the named stage.
// A stage 1 worker's identity is refined per stage: the request it carries
// draws its stage 1, 2 and 3 service times from three streams (stage1/worker_w,
// stage2/worker_w, stage3/worker_w). Each stream still belongs to exactly one
// worker, so a changed stage 2 distribution never shifts stage 1 or 3 draws.
func WorkerStream(stage string, worker int) string {
	return fmt.Sprintf("%s/worker_%d", stage, worker)
}

// PartitionedRNG provides one deterministic, isolated stream per named entity.
//
// Derivation: seed = masterSeed XOR fnv1a64(name), fed to a PCG generator
// together with the name hash. Streams are created lazily, so the draws of one
// entity never depend on which other entities exist or in what order they are
// first used.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.PCG
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		streams: make(map[string]*rand.PCG),
	}
}

// Source returns the generator of the named stream. The same name always
// returns the same instance. Never returns nil.
func (p *PartitionedRNG) Source(name string) rand.Source {
	if src, ok := p.streams[name]; ok {
		return src
	}
	h := fnv1a64(name)
	src := rand.NewPCG(uint64(int64(p.key)^h), uint64(h))
	p.streams[name] = src
	return src
}

// ForStream returns a *rand.Rand drawing from the named stream.
func (p *PartitionedRNG) ForStream(name string) *rand.Rand {
	return rand.New(p.Source(name))
}

// Streams returns the number of streams created so far.
func (p *PartitionedRNG) Streams() int { return len(p.streams) }

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
