package transport

import (
	"sync/atomic"

	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// descriptorSize is used only to size the flush/invalidate byte range
// that stands in for the descriptor's footprint in shared memory; the
// descriptor itself is a Go value passed by pointer, not laid out in
// Region at a fixed offset (see SPEC_FULL.md §4.1: this is a simulation,
// not a literal ABI match).
const descriptorSize = 16

// Queue is a ring-buffered descriptor queue, the Remote or Local IPC
// queue from spec.md §4.1. Coherent controls whether flush/invalidate are
// exercised: Local IPC queues between cores that share real cache
// coherency set this true and skip the dance, matching "same discipline
// conditionally enabled per core."
type Queue struct {
	region   *Region
	doorbell *Doorbell // nil for queues with no cross-core wake to raise
	coherent bool

	ring []*wire.Descriptor
	mask uint32
	head atomic.Uint32
	tail atomic.Uint32
}

// NewQueue builds a queue with room for `capacity` descriptors (rounded
// up internally is not performed - capacity must already be a power of
// two, matching the ring-buffer discipline spec.md describes). region
// may be nil for a local, coherent queue such as a component's response
// queue, and doorbell may be nil when no peer needs waking.
func NewQueue(capacity int, region *Region, doorbell *Doorbell, coherent bool) *Queue {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("transport: queue capacity must be a power of two")
	}
	return &Queue{
		region:   region,
		doorbell: doorbell,
		coherent: coherent,
		ring:     make([]*wire.Descriptor, capacity),
		mask:     uint32(capacity - 1),
	}
}

// Enqueue appends d to the queue. Returns false if the queue is full;
// per spec.md §4.1 this is not a synchronous failure the sender reports
// upstream - it is expected that pools are sized so this never happens,
// and the caller's only recourse is to retry or log.
func (q *Queue) Enqueue(d *wire.Descriptor) bool {
	for {
		tail := q.tail.Load()
		head := q.head.Load()
		if tail-head >= uint32(len(q.ring)) {
			return false
		}
		if q.tail.CompareAndSwap(tail, tail+1) {
			if !q.coherent && q.region != nil {
				q.region.Flush(0, descriptorSize)
			}
			q.ring[tail&q.mask] = d
			if q.doorbell != nil {
				_ = q.doorbell.Ring()
			}
			return true
		}
	}
}

// Dequeue returns the oldest entry, or nil if the queue is empty.
func (q *Queue) Dequeue() (*wire.Descriptor, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		if head == tail {
			return nil, false
		}
		if q.head.CompareAndSwap(head, head+1) {
			idx := head & q.mask
			d := q.ring[idx]
			q.ring[idx] = nil
			if !q.coherent && q.region != nil {
				q.region.Invalidate(0, descriptorSize)
			}
			return d, true
		}
	}
}

// Len reports the number of entries currently queued.
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap reports the queue's fixed capacity.
func (q *Queue) Cap() int {
	return len(q.ring)
}
