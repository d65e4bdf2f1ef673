package redpipe

import (
	"slices"
	"sync"
)

// pendingEntry links a sent command batch to the call waiting for it and
// the number of replies it expects. Arrival order is the only correlation
// key: the wire format carries no request ID, so the protocol-level
// precondition is that the peer answers batches strictly in send order.
type pendingEntry struct {
	id    CallID
	count int
}

// pipelineQueue is the per-connection FIFO of in-flight batches. The send
// path pushes, the receive path pops, and both go through a single narrow
// mutex. That mutex is deliberately not shared with the call table: under
// heavy fan-in the receive path contends on this queue constantly, and
// coupling it to call bookkeeping measurably inflates receive latency.
type pipelineQueue struct {
	mu      sync.Mutex
	entries []pendingEntry
	closed  bool
}

// push appends an entry at the tail. Called once per batch, after
// serialization succeeds and before any bytes reach the wire. Returns
// false once the queue is drained for teardown; the caller then fails
// the entry itself instead of leaving it stranded.
func (q *pipelineQueue) push(e pendingEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.entries = append(q.entries, e)
	return true
}

// pop removes and returns the head entry. The receive path calls it
// before knowing whether enough bytes arrived to complete the batch.
func (q *pipelineQueue) pop() (pendingEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return pendingEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// giveback undoes a pop when decoding found the data insufficient,
// restoring the entry at the head so the next pop sees the exact order
// from before.
func (q *pipelineQueue) giveback(e pendingEntry) {
	q.mu.Lock()
	q.entries = slices.Insert(q.entries, 0, e)
	q.mu.Unlock()
}

// drain closes the queue and returns the remaining entries in FIFO
// order, for connection teardown to fail them. Pushes after drain are
// refused.
func (q *pipelineQueue) drain() []pendingEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	entries := q.entries
	q.entries = nil
	return entries
}

func (q *pipelineQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
