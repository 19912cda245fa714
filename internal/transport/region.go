// Package transport implements the bidirectional message queue discipline
// from spec.md §4.1: shared-memory-backed rings between host and DSP (and
// between DSP cores), with explicit flush/invalidate at the ownership
// boundary and a doorbell wake signal.
package transport

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Region is a real anonymous mmap'd byte region standing in for the
// non-coherent shared memory described in spec.md §4.1. Flush/Invalidate
// insert an atomic fence at exactly the call sites where real cache
// maintenance instructions would go on the target DSP; a test can assert
// each is called exactly once per enqueue/dequeue (see SPEC_FULL.md §4.1).
type Region struct {
	mem         []byte
	flushes     atomic.Uint64
	invalidates atomic.Uint64
}

// fence is a no-op CAS used purely to force the ordering the comment at
// each call site documents; Go's memory model already guarantees more
// than this region simulation needs, but the call site is the point of
// record for where a real flush/invalidate instruction belongs.
var fence atomic.Uint32

// NewRegion allocates a size-byte anonymous shared-memory-shaped region.
func NewRegion(size int) (*Region, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Region{mem: mem}, nil
}

// Bytes returns the underlying region storage.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Close unmaps the region.
func (r *Region) Close() error {
	return unix.Munmap(r.mem)
}

// Flush publishes writes in mem[off:off+length] to a non-coherent peer -
// the sender-side half of the cache-coherency contract in spec.md §4.1.
func (r *Region) Flush(off, length int) {
	_ = r.mem[off : off+length]
	fence.Add(1)
	r.flushes.Add(1)
}

// Invalidate discards any stale cached view of mem[off:off+length] before
// the receiver reads it - the receiver-side half of the contract.
func (r *Region) Invalidate(off, length int) {
	_ = r.mem[off : off+length]
	fence.Add(1)
	r.invalidates.Add(1)
}

// FlushCount and InvalidateCount expose the call counters for tests.
func (r *Region) FlushCount() uint64      { return r.flushes.Load() }
func (r *Region) InvalidateCount() uint64 { return r.invalidates.Load() }
