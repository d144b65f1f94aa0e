// Implements the WaitQueue, which holds requests waiting for a stage resource.

package sim

import (
	"fmt"
	"strings"
)

// WaitQueue represents a FIFO queue of requests waiting for a free worker
// (stage 1) or for the critical section (stage 2). Arrival order is service
// order.
type WaitQueue struct {
	queue []*Request
}

// Enqueue adds a request to the back of the wait queue.
func (wq *WaitQueue) Enqueue(r *Request) {
	if r == nil {
		panic("Enqueue: request must not be nil")
	}
	wq.queue = append(wq.queue, r)
}

// Dequeue removes and returns the request at the front of the queue.
// Returns nil if the queue is empty.
func (wq *WaitQueue) Dequeue() *Request {
	if len(wq.queue) == 0 {
		return nil
	}
	r := wq.queue[0]
	wq.queue[0] = nil
	wq.queue = wq.queue[1:]
	return r
}

// Len returns the number of requests in the queue.
func (wq *WaitQueue) Len() int {
	return len(wq.queue)
}

// Peek returns the request at the front of the queue without removing it.
// Returns nil if the queue is empty.
func (wq *WaitQueue) Peek() *Request {
	if len(wq.queue) == 0 {
		return nil
	}
	return wq.queue[0]
}

// Contains reports whether a request with the given id is queued.
func (wq *WaitQueue) Contains(id int64) bool {
	for _, r := range wq.queue {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Items returns the queue contents in service order.
// The returned slice is the queue's internal storage; callers MUST NOT modify it.
func (wq *WaitQueue) Items() []*Request {
	return wq.queue
}

func (wq *WaitQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, r := range wq.queue {
		sb.WriteString(fmt.Sprint(r.ID))
		if i < len(wq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
