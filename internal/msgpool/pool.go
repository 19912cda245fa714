// Package msgpool implements the fixed-count message descriptor pools
// described in spec.md §4.2: a pre-allocated array of descriptors handed
// out by a lock-free free list. Acquire returns nil once the pool is
// exhausted rather than growing, so every owner (device, proxy, worker)
// sizes its pool to the traffic it expects, matching the transport's
// "queue full never fails synchronously" discipline in §4.1.
package msgpool

import (
	"sync/atomic"
	"unsafe"

	"github.com/afcore/dsp-audio-framework/internal/interfaces"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// empty is the free-list sentinel, all bits set so it is never a valid
// index - playing the role of the client registry's MAX_CLIENTS sentinel
// in internal/registry.
const empty = ^uint32(0)

// Pool is a fixed-capacity pool of wire.Descriptor values. The descriptor
// array is allocated once at construction and never resized; Acquire and
// Release only ever shuffle a Treiber-stack free list built from an
// intrusive next-index array, the same index-based-arena shape spec.md
// §9 prescribes for the component chain.
type Pool struct {
	descriptors []wire.Descriptor
	next        []uint32
	head        atomic.Uint32
	destroyed   atomic.Bool

	name     string
	observer interfaces.Observer
}

// SetObserver names this pool for acquire-pressure reporting and wires
// obs to receive an ObserveAcquire call on every subsequent Acquire.
// Called once at construction time, before the pool is handed to any
// caller that can Acquire from it.
func (p *Pool) SetObserver(name string, obs interfaces.Observer) {
	p.name = name
	p.observer = obs
}

// New allocates a pool of the given capacity. capacity must be > 0.
func New(capacity int) *Pool {
	p := &Pool{
		descriptors: make([]wire.Descriptor, capacity),
		next:        make([]uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		if i == capacity-1 {
			p.next[i] = empty
		} else {
			p.next[i] = uint32(i + 1)
		}
	}
	p.head.Store(0)
	return p
}

// Cap returns the pool's fixed descriptor count.
func (p *Pool) Cap() int {
	return len(p.descriptors)
}

// Acquire returns a fresh descriptor, or nil if the pool is exhausted,
// reporting the outcome to this pool's Observer if one is set.
func (p *Pool) Acquire() *wire.Descriptor {
	d := p.acquire()
	if p.observer != nil {
		p.observer.ObserveAcquire(p.name, d != nil)
	}
	return d
}

func (p *Pool) acquire() *wire.Descriptor {
	for {
		head := p.head.Load()
		if head == empty {
			return nil
		}
		newHead := p.next[head]
		if p.head.CompareAndSwap(head, newHead) {
			d := &p.descriptors[head]
			d.Reset()
			return d
		}
	}
}

// Release returns a descriptor to the pool. Releasing a descriptor to a
// destroyed pool is a usage bug per spec.md §4.2 ("implementations may
// assert"); this implementation panics rather than silently corrupting
// the free list.
func (p *Pool) Release(d *wire.Descriptor) {
	if p.destroyed.Load() {
		panic("msgpool: release to destroyed pool")
	}
	idx := p.indexOf(d)
	for {
		head := p.head.Load()
		p.next[idx] = head
		if p.head.CompareAndSwap(head, idx) {
			return
		}
	}
}

// Destroy marks the pool destroyed. Further Release calls panic; Acquire
// continues to behave as if exhausted (callers that still hold a
// reference to the pool after its owner is torn down get null, not a
// crash, matching spec.md's acquire-never-fails-hard contract).
func (p *Pool) Destroy() {
	p.destroyed.Store(true)
	p.head.Store(empty)
}

func (p *Pool) indexOf(d *wire.Descriptor) uint32 {
	base := unsafe.Pointer(&p.descriptors[0])
	off := uintptr(unsafe.Pointer(d)) - uintptr(base)
	return uint32(off / unsafe.Sizeof(wire.Descriptor{}))
}
