// Package registry implements the per-core client registry from spec.md
// §4.3: a fixed-size array of MAX_CLIENTS slots, each either free (holding
// the index of the next free slot, an intrusive singly-linked free list)
// or live (holding a component reference).
package registry

import (
	"sync"
)

// ClientID is a small integer identifying a registered component on one
// core. It is reused after the component is deleted.
type ClientID uint16

// Component is the minimal capability set the registry needs from a
// registered value; internal/dispatch and the root afcore package define
// the full Component type and satisfy this interface.
type Component interface {
	ID() ClientID
}

// Registry is the MAX_CLIENTS-sized free-list allocator. It must be
// constructed with a power-of-two capacity (spec.md §3: "typically 64").
type Registry struct {
	mu    sync.Mutex
	next  []ClientID // next[i] > maxClients means slot i is live
	slots []Component
	free  ClientID // head of the free list
	max   ClientID
	live  int
}

// New builds a registry with room for maxClients clients. maxClients must
// be a power of two; New panics otherwise, matching the teacher's
// fail-fast constructor-time validation style.
func New(maxClients int) *Registry {
	if maxClients <= 0 || maxClients&(maxClients-1) != 0 {
		panic("registry: maxClients must be a power of two")
	}
	max := ClientID(maxClients)
	r := &Registry{
		next:  make([]ClientID, maxClients),
		slots: make([]Component, maxClients),
		max:   max,
	}
	for i := 0; i < maxClients; i++ {
		if ClientID(i) == max-1 {
			r.next[i] = max // sentinel: end of free list
		} else {
			r.next[i] = ClientID(i + 1)
		}
	}
	r.free = 0
	return r
}

// MaxClients returns the registry's fixed capacity.
func (r *Registry) MaxClients() int {
	return int(r.max)
}

// Alloc reserves the current free-list head and stores c there, returning
// its new ClientID. Returns (max, false) when the registry is exhausted
// (spec.md §4.3: "alloc() ... returns MAX_CLIENTS when exhausted").
func (r *Registry) Alloc(c Component) (ClientID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.free >= r.max {
		return r.max, false
	}
	id := r.free
	r.free = r.next[id]
	r.next[id] = r.max + 1 // mark live: strictly greater than max
	r.slots[id] = c
	r.live++
	return id, true
}

// Free returns id to the free list. Freeing an id that is not currently
// live is a no-op (mirrors double-delete being caught earlier, at the
// lifecycle layer, rather than corrupting the free list here).
func (r *Registry) Free(id ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= r.max || r.next[id] <= r.max {
		return
	}
	r.slots[id] = nil
	r.next[id] = r.free
	r.free = id
	r.live--
}

// Lookup returns the component stored at id, and whether the slot is live.
func (r *Registry) Lookup(id ClientID) (Component, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= r.max || r.next[id] <= r.max {
		return nil, false
	}
	return r.slots[id], true
}

// Live returns the number of currently allocated client ids.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// CheckInvariant walks the free chain and confirms it visits every
// non-live slot exactly once and terminates at max - the invariant from
// spec.md §8. Intended for tests, not the hot path.
func (r *Registry) CheckInvariant() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	visited := make([]bool, r.max)
	n := r.free
	steps := 0
	for n != r.max {
		if n > r.max || visited[n] {
			return false
		}
		visited[n] = true
		n = r.next[n]
		steps++
		if steps > int(r.max) {
			return false
		}
	}
	for i := ClientID(0); i < r.max; i++ {
		live := r.next[i] > r.max
		if live && visited[i] {
			return false
		}
		if !live && !visited[i] {
			return false
		}
	}
	return true
}
