package afcore

import "sync"

// byteAllocator services ALLOC/FREE proxy commands (spec.md §4.8) from a
// simple free-list of fixed-size byte slices, the host-side stand-in for
// the DSP's shared-memory heap. Grounded on the teacher's memory-backed
// disk allocation pattern, generalized from disk-block storage to
// component scratch-buffer allocation.
type byteAllocator struct {
	mu       sync.Mutex
	bufSize  int
	freeList [][]byte
}

func newByteAllocator(bufSize int) *byteAllocator {
	return &byteAllocator{bufSize: bufSize}
}

// Alloc satisfies dispatch.Allocator. Requests larger than the
// configured buffer size fail rather than silently growing - callers
// size ALLOC requests to the framework's declared buffer size, per
// spec.md §4.2's fixed-size-pool discipline.
func (a *byteAllocator) Alloc(size int) ([]byte, error) {
	if size > a.bufSize {
		return nil, NewError("alloc", ErrMemory, "requested size exceeds configured buffer size")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.freeList); n > 0 {
		buf := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		return buf[:size], nil
	}
	return make([]byte, size, a.bufSize), nil
}

// Free satisfies dispatch.Allocator, returning buf's backing array to the
// free list for reuse.
func (a *byteAllocator) Free(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeList = append(a.freeList, full)
}
