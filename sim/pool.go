package sim

import "fmt"

// WorkerPool is the fixed set of stage 1 worker identifiers, 1..capacity.
// Every id is either free (FIFO order) or busy with exactly one request.
//
// Invariant: len(free) + len(busy) == capacity.
type WorkerPool struct {
	capacity int
	free     []int
	busy     map[int]int64 // worker id -> request id
}

// NewWorkerPool creates a pool with all workers free, in id order.
// Panics if capacity < 1.
func NewWorkerPool(capacity int) *WorkerPool {
	if capacity < 1 {
		panic(fmt.Sprintf("NewWorkerPool: capacity must be >= 1, got %d", capacity))
	}
	free := make([]int, 0, capacity)
	for i := 1; i <= capacity; i++ {
		free = append(free, i)
	}
	return &WorkerPool{
		capacity: capacity,
		free:     free,
		busy:     make(map[int]int64, capacity),
	}
}

// Acquire binds the oldest free worker to requestID.
// Returns false if every worker is busy.
func (p *WorkerPool) Acquire(requestID int64) (int, bool) {
	if len(p.free) == 0 {
		return NoWorker, false
	}
	w := p.free[0]
	p.free = p.free[1:]
	p.busy[w] = requestID
	return w, true
}

// HandOff rebinds a busy worker from its current request to requestID without
// passing through the free list.
func (p *WorkerPool) HandOff(worker int, requestID int64) error {
	if _, ok := p.busy[worker]; !ok {
		return fmt.Errorf("hand-off of worker %d which is not busy", worker)
	}
	p.busy[worker] = requestID
	return nil
}

// Release returns a busy worker to the back of the free list.
func (p *WorkerPool) Release(worker int) error {
	if _, ok := p.busy[worker]; !ok {
		return fmt.Errorf("release of worker %d which is not busy", worker)
	}
	delete(p.busy, worker)
	p.free = append(p.free, worker)
	return nil
}

// Holder returns the request bound to worker.
func (p *WorkerPool) Holder(worker int) (int64, bool) {
	id, ok := p.busy[worker]
	return id, ok
}

func (p *WorkerPool) Capacity() int { return p.capacity }
func (p *WorkerPool) Free() int     { return len(p.free) }
func (p *WorkerPool) Busy() int     { return len(p.busy) }

// Check verifies conservation: every id in 1..capacity appears exactly once
// across free and busy, and no request holds two workers.
func (p *WorkerPool) Check() error {
	if len(p.free)+len(p.busy) != p.capacity {
		return fmt.Errorf("free(%d) + busy(%d) != capacity(%d)", len(p.free), len(p.busy), p.capacity)
	}
	seen := make(map[int]bool, p.capacity)
	for _, w := range p.free {
		if w < 1 || w > p.capacity {
			return fmt.Errorf("free worker id %d out of range", w)
		}
		if seen[w] {
			return fmt.Errorf("worker %d is free twice", w)
		}
		if _, ok := p.busy[w]; ok {
			return fmt.Errorf("worker %d is both free and busy", w)
		}
		seen[w] = true
	}
	holders := make(map[int64]int, len(p.busy))
	for w, req := range p.busy {
		if w < 1 || w > p.capacity {
			return fmt.Errorf("busy worker id %d out of range", w)
		}
		if other, ok := holders[req]; ok {
			return fmt.Errorf("request %d holds workers %d and %d", req, other, w)
		}
		holders[req] = w
	}
	return nil
}
