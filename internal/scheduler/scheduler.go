// Package scheduler implements the cooperative ready-queue from spec.md
// §4.5: a priority-ordered queue of runnable components, used by the
// service loop to give components another chance to run after handling
// all inbound messages.
package scheduler

import (
	"container/heap"
	"sync"

	"github.com/afcore/dsp-audio-framework/internal/registry"
)

// Component is the minimal identity a scheduler entry needs; the full
// component type lives in the root afcore package. Sharing
// registry.ClientID as the identity type (rather than a bare uint32) is
// what lets internal/dispatch embed both worker.Processor and
// scheduler.Component in one interface without an ID() signature clash.
type Component interface {
	ID() registry.ClientID
}

type entry struct {
	component Component
	priority  int // lower runs first, matching worker index ordering
	seq       int // insertion sequence, for FIFO tiebreaking
	index     int // heap.Interface bookkeeping
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is the scheduler's ready-queue: a binary-heap-backed priority
// queue of components, ordered by priority with FIFO tiebreak so
// sched_get is deterministic under test. A worker's Run goroutine calls
// Get concurrently with Put calls arriving from whichever goroutine is
// dispatching on the component's behalf, so every method is guarded by
// mu rather than assuming a single caller.
type Queue struct {
	mu      sync.Mutex
	h       entryHeap
	seq     int
	indexed map[registry.ClientID]*entry
}

// New returns an empty ready-queue.
func New() *Queue {
	return &Queue{indexed: make(map[registry.ClientID]*entry)}
}

// Put inserts c into the ready-queue at priority prio. If c is already
// present, its priority is updated and its position in the heap
// recomputed rather than inserting a duplicate entry - a component has
// pending work in at most one place at a time (spec.md §8 invariant).
func (q *Queue) Put(c Component, prio int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.indexed[c.ID()]; ok {
		e.priority = prio
		heap.Fix(&q.h, e.index)
		return
	}
	e := &entry{component: c, priority: prio, seq: q.seq}
	q.seq++
	q.indexed[c.ID()] = e
	heap.Push(&q.h, e)
}

// Get removes and returns the highest-priority runnable component, or
// nil if the ready-queue is empty.
func (q *Queue) Get() Component {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.h).(*entry)
	delete(q.indexed, e.component.ID())
	return e.component
}

// Len reports how many components are currently ready.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Remove drops c from the ready-queue if present, used when a component
// is torn down while still scheduled.
func (q *Queue) Remove(id registry.ClientID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.indexed[id]
	if !ok {
		return
	}
	heap.Remove(&q.h, e.index)
	delete(q.indexed, id)
}
